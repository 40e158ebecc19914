// Package recovery implements spec.md §4.D: reconstructing a StateMachine
// from recovery entropy and a replay log of operations, with an optional
// threshold gate for emergency (multi-party-approved) recovery flows.
package recovery

import (
	"encoding/hex"
	"log/slog"

	"github.com/dsm-network/dsm/internal/crypto"
	"github.com/dsm-network/dsm/internal/dsmstate"
	"github.com/dsm-network/dsm/internal/errs"
	"github.com/dsm-network/dsm/internal/seed"
	"github.com/dsm-network/dsm/internal/statemachine"
)

// Manager reconstructs chains from entropy + a replay log (spec.md §4.D).
type Manager struct {
	threshold uint32
	log       *slog.Logger
}

// New builds a Manager. threshold gates ReconstructEmergency: normal
// Reconstruct is always permitted regardless of its value (spec.md §4.D:
// "the threshold gates emergency recovery flows...below threshold, only
// normal reconstruction is permitted").
func New(log *slog.Logger, threshold uint32) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{threshold: threshold, log: log.With("component", "recovery")}
}

// Threshold returns the configured emergency-approval threshold.
func (r *Manager) Threshold() uint32 { return r.threshold }

// Reconstruct rebuilds a StateMachine from entropy, a device index, and a
// replay log of operations (spec.md §4.D steps 1-4). Reconstruction is
// all-or-nothing: the returned machine is only handed back once every
// operation has applied cleanly; a mid-replay failure discards the
// partially-built scratch machine and reports RecoveryFailed{index, cause}
// without ever exposing a partial chain.
func (r *Manager) Reconstruct(entropy []byte, deviceIndex uint32, ops []dsmstate.Operation) (*statemachine.Machine, error) {
	// Step 1.
	master, _ := seed.DeriveMasterKey(entropy)
	deviceKey := seed.DeriveDeviceKey(master, deviceIndex)

	// Step 2: device_id = "device_" + hex(device_key[0:4]).
	device := dsmstate.DeviceInfo{
		DeviceID:  "device_" + hex.EncodeToString(deviceKey[0:4]),
		DeviceKey: append([]byte(nil), deviceKey[:]...),
	}

	// Step 3: entropy_prefix = derive_device_key(master, device_index)[4:20].
	entropyPrefix := append([]byte(nil), deviceKey[4:20]...)

	m, err := statemachine.NewGenesis(r.log, entropyPrefix, device)
	if err != nil {
		return nil, errs.New(errs.KindRecoveryFailed, map[string]any{
			"index": 0, "cause": err.Error(),
		}, err)
	}

	// Step 4: apply each operation in order.
	for i, op := range ops {
		if _, err := m.ExecuteTransition(op); err != nil {
			return nil, errs.New(errs.KindRecoveryFailed, map[string]any{
				"index": i + 1, "cause": err.Error(),
			}, err)
		}
	}

	r.log.Debug("reconstructed chain", "device_id", device.DeviceID, "ops", len(ops))
	return m, nil
}

// ReconstructEmergency is Reconstruct gated by a minimum number of
// approvals, for the multi-party-approved emergency recovery flow spec.md
// §4.D's threshold exists to support.
func (r *Manager) ReconstructEmergency(entropy []byte, deviceIndex uint32, ops []dsmstate.Operation, approvals uint32) (*statemachine.Machine, error) {
	if approvals < r.threshold {
		return nil, errs.New(errs.KindRecoveryFailed, map[string]any{
			"cause": "insufficient approvals for emergency recovery", "approvals": approvals, "threshold": r.threshold,
		}, nil)
	}
	return r.Reconstruct(entropy, deviceIndex, ops)
}

// VerifyAgainst checks a reconstructed machine's head hash against an
// expected value (spec.md §4.D: "verify_against(expected_head_hash) —
// post-reconstruction check").
func VerifyAgainst(m *statemachine.Machine, expectedHeadHash [crypto.Size]byte) error {
	current, ok := m.CurrentState()
	if !ok {
		return errs.New(errs.KindRecoveryFailed, map[string]any{"cause": "no current state to verify"}, nil)
	}
	if current.Hash != expectedHeadHash {
		return errs.New(errs.KindRecoveryFailed, map[string]any{
			"cause": "head hash mismatch", "got": current.Hash, "want": expectedHeadHash,
		}, nil)
	}
	return nil
}
