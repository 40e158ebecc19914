// Package ids generates the random identifiers spec.md §2 component G
// calls "connection IDs": crypto/rand-backed, so they are unguessable
// across a restart the way a handshake's anti-replay properties assume.
package ids

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// NewConnectionID returns a random, non-zero u64 connection id (spec.md
// §4.F step 1: "connection_id cid (random u64)").
func NewConnectionID() (uint64, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("ids: generate connection id: %w", err)
		}
		id := binary.BigEndian.Uint64(buf[:])
		if id != 0 {
			return id, nil
		}
	}
}
