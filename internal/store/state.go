package store

import (
	"fmt"

	"github.com/dsm-network/dsm/internal/crypto"
	"github.com/dsm-network/dsm/internal/dsmstate"
)

// PutState persists state keyed by its content hash (spec.md §6: "Keys are
// always the BLAKE3 hash of the canonical encoding of the stored State").
// It stores state.CanonicalEncode(), not state.Marshal(): Marshal appends
// the cached Hash after the canonical encoding, and BLAKE3 of that longer
// byte string is not state.Hash, so Marshal's output can never satisfy
// validateKey. CanonicalEncode() is exactly the hash's preimage.
func PutState(s Store, state dsmstate.State) error {
	return s.Put(state.Hash, state.CanonicalEncode())
}

// GetState retrieves the state stored under hash and reconstructs it. The
// stored bytes are state.CanonicalEncode() (see PutState), so hash itself
// supplies the Hash field dsmstate.Unmarshal expects after the canonical
// encoding.
func GetState(s Store, hash [crypto.Size]byte) (dsmstate.State, error) {
	canonical, err := s.Get(hash)
	if err != nil {
		return dsmstate.State{}, err
	}
	buf := append(append([]byte(nil), canonical...), hash[:]...)
	state, err := dsmstate.Unmarshal(buf)
	if err != nil {
		return dsmstate.State{}, fmt.Errorf("store: reconstruct state %x: %w", hash, err)
	}
	return state, nil
}
