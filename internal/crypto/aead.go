package crypto

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize and NonceSize match spec.md §4.A's ChaCha20-Poly1305 parameters.
const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSize
	TagSize   = chacha20poly1305.Overhead
)

// ErrAuthFailure is returned when an AEAD tag fails to verify. Per spec.md
// §4.F this must never distinguish itself from other decrypt failures to a
// network attacker; callers drop silently rather than branch on it.
var ErrAuthFailure = errors.New("crypto: aead authentication failure")

// Seal encrypts plaintext with ChaCha20-Poly1305, appending the 16-byte tag.
func Seal(key [KeySize]byte, nonce [NonceSize]byte, plaintext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce[:], plaintext, aad), nil
}

// Open authenticates and decrypts ciphertext. Any failure — bad tag, bad
// AAD, truncated input — collapses to ErrAuthFailure so callers cannot
// distinguish failure modes (constant-time at the decision boundary; the
// underlying chacha20poly1305.Open is already constant-time in the tag
// comparison via crypto/subtle).
func Open(key [KeySize]byte, nonce [NonceSize]byte, ciphertext, aad []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailure
	}
	return pt, nil
}

// ConstantTimeEqual compares two secret-derived buffers without leaking
// timing information, for constant-time comparisons outside of AEAD tag
// checks (e.g. fingerprint checks).
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// NonceFromCounter builds the 96-bit AEAD nonce from a 64-bit counter as
// spec.md §4.F describes: big-endian counter, right-padded with zero bytes.
func NonceFromCounter(counter uint64) [NonceSize]byte {
	var n [NonceSize]byte
	n[0] = byte(counter >> 56)
	n[1] = byte(counter >> 48)
	n[2] = byte(counter >> 40)
	n[3] = byte(counter >> 32)
	n[4] = byte(counter >> 24)
	n[5] = byte(counter >> 16)
	n[6] = byte(counter >> 8)
	n[7] = byte(counter)
	return n
}
