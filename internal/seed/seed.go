// Package seed implements the recovery-entropy and key-derivation
// functions of spec.md §4.B: a deterministic path from recovery entropy to
// a master key, a fingerprint, and per-device keys.
package seed

import (
	"encoding/binary"

	"github.com/dsm-network/dsm/internal/crypto"
)

const (
	masterKeyLabel = "master_key"
	deviceKeyLabel = "device_key"
)

// FromPassphrase stands in for the standard mnemonic-wordlist decoder that
// spec.md §4.B and §1 explicitly put out of scope ("mnemonic wordlist
// handling...treated as a seeded byte-entropy source"). It stretches an
// arbitrary passphrase into 32 bytes of entropy via the module's XOF so
// callers without a real wordlist table still have deterministic entropy to
// exercise the rest of the pipeline with.
func FromPassphrase(passphrase string) []byte {
	out := make([]byte, crypto.Size)
	crypto.DomainXOF(out, "dsm-seed-v1", []byte(passphrase))
	return out
}

// Fingerprint is a 32-bit truncation of BLAKE3(master_key), used for quick
// identity checks (spec.md GLOSSARY).
type Fingerprint uint32

// DeriveMasterKey computes master = BLAKE3(entropy || "master_key") and
// fingerprint = big-endian first 4 bytes of BLAKE3(master), exactly as
// spec.md §4.B specifies.
func DeriveMasterKey(entropy []byte) (master [crypto.Size]byte, fingerprint Fingerprint) {
	master = crypto.HashConcat(entropy, []byte(masterKeyLabel))
	fpHash := crypto.Hash(master[:])
	fingerprint = Fingerprint(binary.BigEndian.Uint32(fpHash[:4]))
	return master, fingerprint
}

// DeriveDeviceKey computes BLAKE3(master || device_index_le || "device_key"),
// exactly as spec.md §4.B specifies (fixed-width little-endian index).
func DeriveDeviceKey(master [crypto.Size]byte, deviceIndex uint32) [crypto.Size]byte {
	var idxLE [4]byte
	binary.LittleEndian.PutUint32(idxLE[:], deviceIndex)
	return crypto.HashConcat(master[:], idxLE[:], []byte(deviceKeyLabel))
}
