// Package dsmstate implements the data model of spec.md §3: the Operation
// and DeviceInfo value types, the State record that a StateMachine chains
// together, and the canonical encoding both hashing and wire transfer are
// built on.
//
// Canonical encoding uses fixed field order, fixed-width little-endian
// integers, and length-prefixed byte strings: every value has exactly one
// serialized form, so two States that decode equal always encode
// identically and hash identically.
package dsmstate

import (
	"encoding/binary"
	"fmt"
)

// maxFieldLen caps any single length-prefixed field (spec.md §4.C /
// §7: OperationTooLarge). 1 MiB is generous for the "message" and "data"
// fields spec.md's operations carry while still bounding memory use against
// a malicious or corrupt prev-hash chain.
const maxFieldLen = 1 << 20

// encodeBytes appends a 4-byte little-endian length prefix followed by b.
func encodeBytes(buf []byte, b []byte) []byte {
	var lenLE [4]byte
	binary.LittleEndian.PutUint32(lenLE[:], uint32(len(b)))
	buf = append(buf, lenLE[:]...)
	return append(buf, b...)
}

// decodeBytes reads a length-prefixed byte string starting at buf[0] and
// returns the payload and the number of bytes consumed.
func decodeBytes(buf []byte) (out []byte, consumed int, err error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("dsmstate: truncated length prefix")
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	if n > maxFieldLen {
		return nil, 0, fmt.Errorf("dsmstate: field length %d exceeds cap %d", n, maxFieldLen)
	}
	end := 4 + int(n)
	if end > len(buf) {
		return nil, 0, fmt.Errorf("dsmstate: truncated field body")
	}
	return buf[4:end], end, nil
}

func encodeUint32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func decodeUint32(buf []byte) (uint32, int, error) {
	if len(buf) < 4 {
		return 0, 0, fmt.Errorf("dsmstate: truncated uint32")
	}
	return binary.LittleEndian.Uint32(buf[:4]), 4, nil
}

func encodeUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func decodeUint64(buf []byte) (uint64, int, error) {
	if len(buf) < 8 {
		return 0, 0, fmt.Errorf("dsmstate: truncated uint64")
	}
	return binary.LittleEndian.Uint64(buf[:8]), 8, nil
}
