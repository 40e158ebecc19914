package dsmstate

import (
	"bytes"
	"testing"
)

func TestOperationEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Operation{
		Genesis(),
		NewGeneric("transfer_intent", []byte{1, 2, 3}, "hello"),
		NewGeneric("noop", nil, ""),
		{Kind: KindReserved, ReservedTag: 7, Reserved: []byte{0xAA, 0xBB}},
	}
	for _, op := range cases {
		enc := op.Encode()
		got, n, err := DecodeOperation(enc)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if n != len(enc) {
			t.Fatalf("consumed %d, want %d", n, len(enc))
		}
		if !got.Equal(op) {
			t.Fatalf("round trip mismatch: %+v != %+v", got, op)
		}
	}
}

func TestOperationEncodeDeterministic(t *testing.T) {
	op := NewGeneric("transfer_intent", []byte{1, 2, 3}, "hello")
	a := op.Encode()
	b := op.Encode()
	if !bytes.Equal(a, b) {
		t.Fatalf("Encode not deterministic")
	}
}

func TestDeviceInfoEncodeDecodeRoundTrip(t *testing.T) {
	d := DeviceInfo{DeviceID: "d0", DeviceKey: []byte{0xAA, 0xAA, 0xAA}}
	enc := d.Encode()
	got, n, err := DecodeDeviceInfo(enc)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(enc) {
		t.Fatalf("consumed %d, want %d", n, len(enc))
	}
	if !got.Equal(d) {
		t.Fatalf("round trip mismatch: %+v != %+v", got, d)
	}
}

func buildFixtureState() State {
	dev := DeviceInfo{DeviceID: "d0", DeviceKey: bytes.Repeat([]byte{0xAA}, 16)}
	s := State{
		Index:     0,
		Operation: Genesis(),
		Device:    dev,
		Entropy:   []byte{0x01, 0x02, 0x03, 0x04},
		Payload:   nil,
	}
	s.Hash = s.ComputeHash()
	return s
}

func TestStateMarshalUnmarshalRoundTrip(t *testing.T) {
	s := buildFixtureState()
	buf := s.Marshal()
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(s) {
		t.Fatalf("round trip mismatch: %+v != %+v", got, s)
	}
}

func TestStateHashDeterministicAndSensitiveToFields(t *testing.T) {
	a := buildFixtureState()
	b := buildFixtureState()
	if a.ComputeHash() != b.ComputeHash() {
		t.Fatalf("identical states hashed differently")
	}

	c := buildFixtureState()
	c.Index = 1
	if c.ComputeHash() == a.ComputeHash() {
		t.Fatalf("changing index did not change hash")
	}

	d := buildFixtureState()
	d.Entropy = []byte{0x01, 0x02, 0x03, 0x05}
	if d.ComputeHash() == a.ComputeHash() {
		t.Fatalf("changing entropy did not change hash")
	}

	e := buildFixtureState()
	e.Device.DeviceID = "d1"
	if e.ComputeHash() == a.ComputeHash() {
		t.Fatalf("changing device did not change hash")
	}
}

func TestValidateOperationSizeRejectsOversized(t *testing.T) {
	op := NewGeneric("t", bytes.Repeat([]byte{0}, MaxOperationBytes+1), "")
	if err := ValidateOperationSize(op); err == nil {
		t.Fatalf("expected oversized operation to be rejected")
	}
	small := NewGeneric("t", []byte{1}, "")
	if err := ValidateOperationSize(small); err != nil {
		t.Fatalf("unexpected error for small operation: %v", err)
	}
}
