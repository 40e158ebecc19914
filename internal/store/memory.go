package store

import (
	"sync"

	"github.com/dsm-network/dsm/internal/crypto"
)

// Memory is an in-process Store backed by a map, guarded with the same
// narrow-critical-section RWMutex idiom used elsewhere in this module for
// shared tables.
type Memory struct {
	mu   sync.RWMutex
	blob map[string][]byte
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{blob: make(map[string][]byte)}
}

func (m *Memory) Put(hash [crypto.Size]byte, data []byte) error {
	if err := validateKey(hash, data); err != nil {
		return err
	}
	cp := append([]byte(nil), data...)
	m.mu.Lock()
	m.blob[keyString(hash)] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(hash [crypto.Size]byte) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.blob[keyString(hash)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Has(hash [crypto.Size]byte) bool {
	m.mu.RLock()
	_, ok := m.blob[keyString(hash)]
	m.mu.RUnlock()
	return ok
}
