// Package store implements the "collaborator blob store" spec.md §6 treats
// as an external dependency of the core: a content-addressed put/get/has
// surface keyed by the BLAKE3 hash of a stored State's canonical encoding.
// Two implementations are provided: Memory (an in-memory map, for tests and
// single-process use) and SQLite (gorm-backed, for anything that needs the
// store to survive a restart).
package store

import (
	"fmt"

	"github.com/dsm-network/dsm/internal/crypto"
	"github.com/dsm-network/dsm/internal/errs"
)

// Store is the blob-store collaborator interface spec.md §6 names.
type Store interface {
	Put(hash [crypto.Size]byte, data []byte) error
	Get(hash [crypto.Size]byte) ([]byte, error)
	Has(hash [crypto.Size]byte) bool
}

// ErrNotFound is returned by Get when no blob is stored under the given hash.
var ErrNotFound = fmt.Errorf("store: blob not found")

func keyString(hash [crypto.Size]byte) string {
	return string(hash[:])
}

// validateKey enforces that callers address blobs by their actual content
// hash (spec.md §6: "Keys are always the BLAKE3 hash of the canonical
// encoding of the stored State"), rather than trusting an arbitrary caller-
// supplied key.
func validateKey(hash [crypto.Size]byte, data []byte) error {
	want := crypto.Hash(data)
	if want != hash {
		return errs.New(errs.KindInvariantViolation, map[string]any{
			"what": "store key does not match content hash",
		}, nil)
	}
	return nil
}
