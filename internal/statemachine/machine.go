// Package statemachine implements spec.md §4.C: the transition function,
// hash-chain construction, in-memory history, and chain verification built
// on top of internal/dsmstate's canonical State/Operation types.
//
// Locking uses a sync.RWMutex guarding a map, with narrow critical
// sections, adapted to a single-writer chain: one mutex serializes the
// writer side (ExecuteTransition/SetState), while CurrentState reads the
// head through an atomic.Pointer so readers never block on the writer.
package statemachine

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dsm-network/dsm/internal/crypto"
	"github.com/dsm-network/dsm/internal/dsmstate"
	"github.com/dsm-network/dsm/internal/errs"
)

// Machine is a single device's hash chain (spec.md §4.C). The zero value
// is not usable; construct with New or NewGenesis.
type Machine struct {
	head atomic.Pointer[dsmstate.State]

	writeMu sync.Mutex // serializes ExecuteTransition/SetState

	historyMu sync.RWMutex
	history   map[uint64]dsmstate.State // index -> state, for VerifyChain

	log *slog.Logger
}

// New returns an empty Machine with no state installed (spec.md §4.C:
// "new() -> Machine — empty, no state set").
func New(log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		history: make(map[uint64]dsmstate.State),
		log:     log.With("component", "statemachine"),
	}
}

// NewGenesis builds and installs a genesis State (spec.md §4.C tie-break:
// "new_genesis(entropy, device) — index=0, prev_hash=[0;32],
// operation=Genesis, entropy taken directly, hash computed as above").
func NewGenesis(log *slog.Logger, entropy []byte, device dsmstate.DeviceInfo) (*Machine, error) {
	m := New(log)
	genesis := dsmstate.State{
		Index:     0,
		Operation: dsmstate.Genesis(),
		Device:    device,
		Entropy:   append([]byte(nil), entropy...),
	}
	genesis.Hash = genesis.ComputeHash()
	if err := m.SetState(genesis); err != nil {
		return nil, err
	}
	return m, nil
}

// SetState installs state as the current head (spec.md §4.C: "used for
// recovery/testing. Fails with InvariantViolation if state.hash mismatches
// recomputation"). It also records the state into history so VerifyChain
// can walk ranges that include it.
func (m *Machine) SetState(state dsmstate.State) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if want := state.ComputeHash(); want != state.Hash {
		return errs.New(errs.KindInvariantViolation, map[string]any{
			"what":  "state.hash mismatches recomputation",
			"index": state.Index,
		}, nil)
	}

	m.historyMu.Lock()
	m.history[state.Index] = state
	m.historyMu.Unlock()

	stored := state
	m.head.Store(&stored)
	m.log.Debug("state installed", "index", state.Index, "hash", state.Hash)
	return nil
}

// CurrentState returns the current head, or ok=false if no state has been
// set (spec.md §4.C: "current_state() -> Option<&State>"). Lock-free: it
// only ever dereferences the atomically-stored head pointer.
func (m *Machine) CurrentState() (state dsmstate.State, ok bool) {
	p := m.head.Load()
	if p == nil {
		return dsmstate.State{}, false
	}
	return *p, true
}

// ExecuteTransition runs spec.md §4.C's transition algorithm against the
// current head and installs the result as the new head, returning it.
func (m *Machine) ExecuteTransition(op dsmstate.Operation) (dsmstate.State, error) {
	if err := dsmstate.ValidateOperationSize(op); err != nil {
		return dsmstate.State{}, err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	p := m.head.Load()
	if p == nil {
		return dsmstate.State{}, errs.ErrNoCurrentState
	}
	current := *p

	// Step 2: op_hash.
	opHash := crypto.Hash(op.Encode())
	// Step 3: next_entropy = BLAKE3(current.entropy || op_hash).
	nextEntropy := crypto.HashConcat(current.Entropy, opHash[:])
	// Step 4: build candidate.
	candidate := dsmstate.State{
		Index:     current.Index + 1,
		PrevHash:  current.Hash,
		Operation: op,
		Device:    current.Device,
		Entropy:   nextEntropy[:],
		Payload:   op.DerivePayload(),
	}
	// Step 5: hash.
	candidate.Hash = candidate.ComputeHash()

	// Step 6: atomically swap head, record history.
	m.historyMu.Lock()
	m.history[candidate.Index] = candidate
	m.historyMu.Unlock()
	stored := candidate
	m.head.Store(&stored)

	m.log.Debug("transition executed", "index", candidate.Index, "hash", candidate.Hash)
	return candidate, nil
}

// VerifyChain walks states[from..to] (inclusive) checking every invariant
// spec.md §4.C's verification algorithm names: index contiguity, prev_hash
// linkage, hash recomputation, device stability, and entropy recomputation.
// Any violation is reported as InvariantViolation{index, what}; spec.md §4.D
// calls this shape ChainCorrupt{index, reason} but §7's formal taxonomy has
// no separate kind for it, so it is surfaced as InvariantViolation with that
// context, matching scenario 3 in spec.md §8.
func (m *Machine) VerifyChain(from, to uint64) error {
	if to < from {
		return errs.New(errs.KindInvariantViolation, map[string]any{"what": "to < from"}, nil)
	}

	m.historyMu.RLock()
	defer m.historyMu.RUnlock()

	var prev *dsmstate.State
	for i := from; i <= to; i++ {
		s, ok := m.history[i]
		if !ok {
			return errs.New(errs.KindInvariantViolation, map[string]any{
				"index": i, "what": "missing state at index",
			}, nil)
		}

		if s.Index != i {
			return errs.New(errs.KindInvariantViolation, map[string]any{
				"index": i, "what": "index field does not match position",
			}, nil)
		}

		if prev != nil {
			if s.Index != prev.Index+1 {
				return errs.New(errs.KindInvariantViolation, map[string]any{
					"index": i, "what": "index not contiguous with predecessor",
				}, nil)
			}
			if s.PrevHash != prev.Hash {
				return errs.New(errs.KindInvariantViolation, map[string]any{
					"index": i, "what": "prev_hash does not match predecessor hash",
				}, nil)
			}
			if !s.Device.Equal(prev.Device) {
				return errs.New(errs.KindInvariantViolation, map[string]any{
					"index": i, "what": "device changed along chain",
				}, nil)
			}
			opHash := crypto.Hash(s.Operation.Encode())
			wantEntropy := crypto.HashConcat(prev.Entropy, opHash[:])
			if string(s.Entropy) != string(wantEntropy[:]) {
				return errs.New(errs.KindInvariantViolation, map[string]any{
					"index": i, "what": "entropy does not match prev.entropy || op_hash",
				}, nil)
			}
		}

		if got := s.ComputeHash(); got != s.Hash {
			return errs.New(errs.KindInvariantViolation, map[string]any{
				"index": i, "what": "hash mismatches recomputation",
			}, nil)
		}

		sCopy := s
		prev = &sCopy
	}
	return nil
}

// StateAt returns the recorded state at a given index, if any, so callers
// and tests can inspect history without reaching into the machine's
// internals.
func (m *Machine) StateAt(index uint64) (dsmstate.State, bool) {
	m.historyMu.RLock()
	defer m.historyMu.RUnlock()
	s, ok := m.history[index]
	return s, ok
}
