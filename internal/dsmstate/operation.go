package dsmstate

import "fmt"

// Kind tags which Operation variant a State carries, encoded as the
// single leading byte spec.md §4.C calls out for "ordered variant tags".
type Kind uint8

const (
	// KindGenesis marks the sentinel operation that seeds a chain's first
	// State (spec.md §4.C step 1). It carries no fields of its own.
	KindGenesis Kind = iota
	// KindGeneric is the catch-all operation used by every transition the
	// spec names outside of the reserved token-accounting variants.
	KindGeneric
	// KindReserved carries the Transfer/Mint/Burn-shaped variants spec.md
	// §3 names as reserved for future token-accounting use without
	// specifying their semantics (explicitly out of scope per spec.md's
	// Non-goals). It is encoded so a chain that contains one round-trips,
	// but dsmstate applies no accounting rules to it.
	KindReserved
)

func (k Kind) String() string {
	switch k {
	case KindGenesis:
		return "genesis"
	case KindGeneric:
		return "generic"
	case KindReserved:
		return "reserved"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Operation is the transition payload a State carries (spec.md §3:
// "Operation: the instruction that produced a State from its
// predecessor"). Only one of the variant-specific fields is meaningful,
// selected by Kind; Equal and the canonical encoder only ever look at the
// field for the operation's own Kind.
type Operation struct {
	Kind Kind

	// Generic fields, valid when Kind == KindGeneric.
	OperationType string
	Data          []byte
	// Message is spec.md §9's resolved ambiguity: the source left an
	// optional "message" field inconsistently present; this module treats
	// it as a required string (possibly empty) on every Generic operation
	// so canonical encoding never has to represent "absent" differently
	// from "empty".
	Message string

	// Reserved fields, valid when Kind == KindReserved.
	ReservedTag uint32
	Reserved    []byte
}

// Genesis is the sentinel operation spec.md §4.C uses to seed a chain.
func Genesis() Operation { return Operation{Kind: KindGenesis} }

// NewGeneric builds a Generic operation.
func NewGeneric(operationType string, data []byte, message string) Operation {
	return Operation{
		Kind:          KindGeneric,
		OperationType: operationType,
		Data:          data,
		Message:       message,
	}
}

// DerivePayload computes the operation's contribution to State.Payload
// (spec.md §4.C step 3: "payload = operation.derive_payload()"). No
// operation variant in scope defines a non-empty derived payload, so this
// is the identity default spec.md describes; a future token-accounting
// variant under KindReserved would override it here.
func (op Operation) DerivePayload() []byte { return nil }

// Encode produces the canonical byte representation used both for hashing
// (via State.CanonicalEncode) and for standalone wire transfer.
func (op Operation) Encode() []byte {
	buf := make([]byte, 0, 1+len(op.Data)+len(op.Message)+len(op.OperationType)+16)
	buf = append(buf, byte(op.Kind))
	switch op.Kind {
	case KindGenesis:
		// No fields.
	case KindGeneric:
		buf = encodeBytes(buf, []byte(op.OperationType))
		buf = encodeBytes(buf, op.Data)
		buf = encodeBytes(buf, []byte(op.Message))
	case KindReserved:
		buf = encodeUint32(buf, op.ReservedTag)
		buf = encodeBytes(buf, op.Reserved)
	}
	return buf
}

// DecodeOperation parses the canonical form written by Operation.Encode,
// returning the operation and the number of bytes consumed from buf.
func DecodeOperation(buf []byte) (Operation, int, error) {
	if len(buf) < 1 {
		return Operation{}, 0, fmt.Errorf("dsmstate: empty operation buffer")
	}
	kind := Kind(buf[0])
	pos := 1
	op := Operation{Kind: kind}
	switch kind {
	case KindGenesis:
		// No fields.
	case KindGeneric:
		opType, n, err := decodeBytes(buf[pos:])
		if err != nil {
			return Operation{}, 0, fmt.Errorf("dsmstate: operation_type: %w", err)
		}
		pos += n
		data, n, err := decodeBytes(buf[pos:])
		if err != nil {
			return Operation{}, 0, fmt.Errorf("dsmstate: data: %w", err)
		}
		pos += n
		msg, n, err := decodeBytes(buf[pos:])
		if err != nil {
			return Operation{}, 0, fmt.Errorf("dsmstate: message: %w", err)
		}
		pos += n
		op.OperationType = string(opType)
		op.Data = data
		op.Message = string(msg)
	case KindReserved:
		tag, n, err := decodeUint32(buf[pos:])
		if err != nil {
			return Operation{}, 0, fmt.Errorf("dsmstate: reserved_tag: %w", err)
		}
		pos += n
		reserved, n, err := decodeBytes(buf[pos:])
		if err != nil {
			return Operation{}, 0, fmt.Errorf("dsmstate: reserved: %w", err)
		}
		pos += n
		op.ReservedTag = tag
		op.Reserved = reserved
	default:
		return Operation{}, 0, fmt.Errorf("dsmstate: unknown operation kind %d", kind)
	}
	return op, pos, nil
}

// Equal reports whether two operations are byte-identical in canonical
// form.
func (op Operation) Equal(other Operation) bool {
	a, b := op.Encode(), other.Encode()
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
