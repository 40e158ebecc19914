package recovery

import (
	"encoding/hex"
	"testing"

	"github.com/dsm-network/dsm/internal/dsmstate"
	"github.com/dsm-network/dsm/internal/seed"
	"github.com/dsm-network/dsm/internal/statemachine"
)

// TestReconstructEquivalence is spec.md §8 scenario 4: a machine built by
// new_genesis + two transitions and one built by Reconstruct(E, 0,
// [op_a, op_b]) must have byte-equal head states.
func TestReconstructEquivalence(t *testing.T) {
	entropy := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	opA := dsmstate.NewGeneric("t", []byte{0}, "")
	opB := dsmstate.NewGeneric("t", []byte{1}, "")

	master, _ := seed.DeriveMasterKey(entropy)
	deviceKey := seed.DeriveDeviceKey(master, 0)
	// Reconstruct derives device_id = "device_" + hex(device_key[0:4])
	// (recovery.go); device_id is part of State.CanonicalEncode, so the
	// "direct" genesis must use the same derived id for the two heads to
	// be byte-equal.
	device := dsmstate.DeviceInfo{
		DeviceID:  "device_" + hex.EncodeToString(deviceKey[0:4]),
		DeviceKey: deviceKey[:],
	}
	entropyPrefix := deviceKey[4:20]

	direct, err := statemachine.NewGenesis(nil, entropyPrefix, device)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := direct.ExecuteTransition(opA); err != nil {
		t.Fatal(err)
	}
	wantHead, err := direct.ExecuteTransition(opB)
	if err != nil {
		t.Fatal(err)
	}

	mgr := New(nil, 1)
	reconstructed, err := mgr.Reconstruct(entropy, 0, []dsmstate.Operation{opA, opB})
	if err != nil {
		t.Fatal(err)
	}
	gotHead, ok := reconstructed.CurrentState()
	if !ok {
		t.Fatal("reconstructed machine has no current state")
	}

	if gotHead.Hash != wantHead.Hash {
		t.Fatalf("head hash mismatch: %x != %x", gotHead.Hash, wantHead.Hash)
	}
	if !gotHead.Equal(wantHead) {
		t.Fatalf("head states not byte-equal")
	}

	if err := VerifyAgainst(reconstructed, wantHead.Hash); err != nil {
		t.Fatalf("VerifyAgainst failed: %v", err)
	}
}

func TestReconstructDeterministicDeviceID(t *testing.T) {
	mgr := New(nil, 1)
	m1, err := mgr.Reconstruct([]byte{1, 2, 3, 4}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := mgr.Reconstruct([]byte{1, 2, 3, 4}, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	s1, _ := m1.CurrentState()
	s2, _ := m2.CurrentState()
	if s1.Device.DeviceID != s2.Device.DeviceID {
		t.Fatalf("device_id not deterministic")
	}
	if s1.Hash != s2.Hash {
		t.Fatalf("reconstruction not deterministic")
	}
}

func TestReconstructFailureIsAllOrNothing(t *testing.T) {
	mgr := New(nil, 1)
	oversized := dsmstate.NewGeneric("t", make([]byte, dsmstate.MaxOperationBytes+1), "")
	m, err := mgr.Reconstruct([]byte{1, 2, 3, 4}, 0, []dsmstate.Operation{
		dsmstate.NewGeneric("t", []byte{0}, ""),
		oversized,
	})
	if err == nil {
		t.Fatal("expected Reconstruct to fail on an oversized operation")
	}
	if m != nil {
		t.Fatal("expected no partially-replayed machine to be returned on failure")
	}
}

func TestReconstructEmergencyRequiresThreshold(t *testing.T) {
	mgr := New(nil, 3)
	_, err := mgr.ReconstructEmergency([]byte{1, 2, 3, 4}, 0, nil, 2)
	if err == nil {
		t.Fatal("expected insufficient approvals to be rejected")
	}
	if _, err := mgr.ReconstructEmergency([]byte{1, 2, 3, 4}, 0, nil, 3); err != nil {
		t.Fatalf("expected approvals meeting threshold to succeed: %v", err)
	}
}
