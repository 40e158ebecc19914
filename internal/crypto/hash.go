// Package crypto is the capability surface the rest of the module builds on:
// hashing, an extendable-output KDF, an AEAD, a post-quantum KEM and a
// post-quantum signature scheme. Callers never reach for golang.org/x/crypto
// or circl directly — everything routes through here so the primitive set
// can be swapped (e.g. for a debug mock in tests) without touching callers.
package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
	"lukechampine.com/blake3"
)

// Size is the output size in bytes of Hash, and of all derived key material
// in this package unless stated otherwise.
const Size = 32

// Hash returns BLAKE3(data). Used for all state and operation hashing.
func Hash(data []byte) [Size]byte {
	return blake3.Sum256(data)
}

// HashConcat hashes the concatenation of parts without an intermediate
// allocation of the joined buffer, matching the "BLAKE3(a || b || ...)"
// constructions used for the master key, device key, and entropy chain.
func HashConcat(parts ...[]byte) [Size]byte {
	h := blake3.New(Size, nil)
	for _, p := range parts {
		h.Write(p) //nolint:errcheck // hash.Hash.Write never fails
	}
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// XOF fills output with SHAKE256(parts...), growing it to len(output) bytes.
// Used by the transport handshake to derive enc_key/mac_key from the shared
// secret and handshake transcript (spec.md §4.F step 6).
func XOF(output []byte, parts ...[]byte) {
	h := sha3.NewShake256()
	for _, p := range parts {
		h.Write(p) //nolint:errcheck // sha3.ShakeHash.Write never fails
	}
	if _, err := h.Read(output); err != nil {
		// ShakeHash.Read never errors; a panic here means the
		// golang.org/x/crypto/sha3 contract changed underneath us.
		panic("crypto: shake256 read: " + err.Error())
	}
}

// DomainXOF is XOF with a length-prefixed domain separator mixed in first,
// grounded on the Quantum-Go kdf.go DeriveKey construction.
func DomainXOF(output []byte, domain string, parts ...[]byte) {
	var lenBuf [4]byte
	db := []byte(domain)

	all := make([][]byte, 0, len(parts)+2)
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(db)))
	all = append(all, append([]byte{}, lenBuf[:]...), db)
	for _, p := range parts {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(p)))
		all = append(all, l[:], p)
	}
	XOF(output, all...)
}

// Zero overwrites a secret-bearing buffer in place.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
