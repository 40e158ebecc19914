package dsmstate

import (
	"fmt"

	"github.com/dsm-network/dsm/internal/crypto"
	"github.com/dsm-network/dsm/internal/errs"
)

// MaxOperationBytes bounds the canonical-encoded size of a single
// Operation (spec.md §7: OperationTooLarge). Equal to maxFieldLen, so an
// operation that passes this check also fits the length-prefixed operation
// field of a State's canonical encoding.
const MaxOperationBytes = 1 << 20

// State is one link in a device's hash chain (spec.md §3 and §4.C).
// Index is the chain position starting at 0 for genesis; PrevHash is the
// Hash of the preceding State (all-zero for genesis); Entropy is this
// State's contribution to the chain's entropy ratchet; Payload is
// Operation.DerivePayload() captured at transition time; Hash is
// BLAKE3(CanonicalEncode()) computed over every other field.
type State struct {
	Index     uint64
	PrevHash  [crypto.Size]byte
	Operation Operation
	Device    DeviceInfo
	Entropy   []byte
	Payload   []byte
	Hash      [crypto.Size]byte
}

// ValidateOperationSize enforces spec.md §7's OperationTooLarge limit
// before an operation is allowed into a transition.
func ValidateOperationSize(op Operation) error {
	if n := len(op.Encode()); n > MaxOperationBytes {
		return errs.New(errs.KindOperationTooLarge, map[string]any{"size": n, "limit": MaxOperationBytes}, nil)
	}
	return nil
}

// CanonicalEncode serializes every field except Hash, in the fixed order
// index, prev_hash, operation, device, entropy, payload. This is exactly
// the byte string BLAKE3 is applied to when computing Hash (spec.md
// §4.C step 4: "hash = BLAKE3(canonical_encode(state_without_hash))").
func (s State) CanonicalEncode() []byte {
	buf := make([]byte, 0, 64+len(s.Entropy)+len(s.Payload))
	buf = encodeUint64(buf, s.Index)
	buf = append(buf, s.PrevHash[:]...)
	buf = encodeBytes(buf, s.Operation.Encode())
	buf = encodeBytes(buf, s.Device.Encode())
	buf = encodeBytes(buf, s.Entropy)
	buf = encodeBytes(buf, s.Payload)
	return buf
}

// ComputeHash returns BLAKE3 of CanonicalEncode(); it does not mutate s.
func (s State) ComputeHash() [crypto.Size]byte {
	return crypto.Hash(s.CanonicalEncode())
}

// Marshal serializes the full State, including Hash, for storage and wire
// transfer (CanonicalEncode() followed by the raw 32-byte hash).
func (s State) Marshal() []byte {
	buf := s.CanonicalEncode()
	return append(buf, s.Hash[:]...)
}

// Unmarshal parses the form written by State.Marshal. It does not
// recompute or verify Hash against the decoded fields; callers that need
// that guarantee should compare against ComputeHash() themselves (the
// StateMachine's verification path does this as part of spec.md §4.C's
// chain-verification algorithm).
func Unmarshal(buf []byte) (State, error) {
	var s State
	idx, n, err := decodeUint64(buf)
	if err != nil {
		return State{}, fmt.Errorf("dsmstate: index: %w", err)
	}
	pos := n
	if len(buf) < pos+crypto.Size {
		return State{}, fmt.Errorf("dsmstate: truncated prev_hash")
	}
	copy(s.PrevHash[:], buf[pos:pos+crypto.Size])
	pos += crypto.Size

	opBytes, n, err := decodeBytes(buf[pos:])
	if err != nil {
		return State{}, fmt.Errorf("dsmstate: operation: %w", err)
	}
	pos += n
	op, _, err := DecodeOperation(opBytes)
	if err != nil {
		return State{}, fmt.Errorf("dsmstate: operation body: %w", err)
	}

	devBytes, n, err := decodeBytes(buf[pos:])
	if err != nil {
		return State{}, fmt.Errorf("dsmstate: device: %w", err)
	}
	pos += n
	dev, _, err := DecodeDeviceInfo(devBytes)
	if err != nil {
		return State{}, fmt.Errorf("dsmstate: device body: %w", err)
	}

	entropy, n, err := decodeBytes(buf[pos:])
	if err != nil {
		return State{}, fmt.Errorf("dsmstate: entropy: %w", err)
	}
	pos += n

	payload, n, err := decodeBytes(buf[pos:])
	if err != nil {
		return State{}, fmt.Errorf("dsmstate: payload: %w", err)
	}
	pos += n

	if len(buf) < pos+crypto.Size {
		return State{}, fmt.Errorf("dsmstate: truncated hash")
	}
	var hash [crypto.Size]byte
	copy(hash[:], buf[pos:pos+crypto.Size])

	s.Index = idx
	s.Operation = op
	s.Device = dev
	s.Entropy = entropy
	s.Payload = payload
	s.Hash = hash
	return s, nil
}

// Equal reports whether two States are identical across every field,
// including the cached Hash.
func (s State) Equal(other State) bool {
	if s.Index != other.Index || s.PrevHash != other.PrevHash || s.Hash != other.Hash {
		return false
	}
	if !s.Operation.Equal(other.Operation) {
		return false
	}
	if !s.Device.Equal(other.Device) {
		return false
	}
	return bytesEqual(s.Entropy, other.Entropy) && bytesEqual(s.Payload, other.Payload)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
