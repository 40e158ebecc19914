package crypto

import (
	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/kyber/kyber768"
)

// kemScheme is the post-quantum KEM used for the transport handshake
// (spec.md §4.A: "Kyber-like KEM"; §4.F normative note: a real KEM, not a
// raw Diffie-Hellman step). Kept as a package-level Scheme so a debug mock
// can be swapped in during tests without touching callers (spec.md §9
// "polymorphism" design note).
var kemScheme kem.Scheme = kyber768.Scheme()

// KEMPublicKey and KEMPrivateKey wrap circl's opaque key types so the rest
// of the module never imports circl directly.
type KEMPublicKey struct{ inner kem.PublicKey }
type KEMPrivateKey struct{ inner kem.PrivateKey }

// KEMCiphertextSize and KEMPublicKeySize describe the wire sizes callers
// need when sizing handshake buffers.
var (
	KEMCiphertextSize = kemScheme.CiphertextSize()
	KEMPublicKeySize  = kemScheme.PublicKeySize()
)

// GenerateKEMKeyPair creates a fresh KEM keypair (kem_keypair in spec.md §4.A).
func GenerateKEMKeyPair() (KEMPublicKey, KEMPrivateKey, error) {
	pk, sk, err := kemScheme.GenerateKeyPair()
	if err != nil {
		return KEMPublicKey{}, KEMPrivateKey{}, err
	}
	return KEMPublicKey{pk}, KEMPrivateKey{sk}, nil
}

// MarshalKEMPublicKey serializes a public key for inclusion in a handshake
// message.
func MarshalKEMPublicKey(pk KEMPublicKey) ([]byte, error) {
	return pk.inner.MarshalBinary()
}

// ParseKEMPublicKey deserializes a public key received over the wire.
func ParseKEMPublicKey(buf []byte) (KEMPublicKey, error) {
	pk, err := kemScheme.UnmarshalBinaryPublicKey(buf)
	if err != nil {
		return KEMPublicKey{}, err
	}
	return KEMPublicKey{pk}, nil
}

// Encapsulate is kem_encapsulate(pk) -> (ct, ss) from spec.md §4.A. Per the
// §4.F normative note, the responder calls this against the initiator's
// public key and returns ct in HS_RESP.
func Encapsulate(pk KEMPublicKey) (ciphertext []byte, sharedSecret [Size]byte, err error) {
	ct, ss, err := kemScheme.Encapsulate(pk.inner)
	if err != nil {
		return nil, [Size]byte{}, err
	}
	copy(sharedSecret[:], ss)
	return ct, sharedSecret, nil
}

// Decapsulate is kem_decapsulate(sk, ct) -> ss from spec.md §4.A. Per the
// §4.F normative note, the initiator calls this with sk_I against the
// ciphertext carried in HS_RESP.
func Decapsulate(sk KEMPrivateKey, ciphertext []byte) (sharedSecret [Size]byte, err error) {
	ss, err := kemScheme.Decapsulate(sk.inner, ciphertext)
	if err != nil {
		return [Size]byte{}, err
	}
	copy(sharedSecret[:], ss)
	return sharedSecret, nil
}
