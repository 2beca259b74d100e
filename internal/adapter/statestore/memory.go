package statestore

import (
	"context"
	"sync"

	"cinemate/internal/domain"
)

// MemoryStore is a process-local StateStore used by tests and by rigs that
// run without a Redis server.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
	sets   map[string]int
}

var _ domain.StateStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: make(map[string]string),
		sets:   make(map[string]int),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", domain.NewSubSystemError("state", "MemoryStore.Get", domain.ErrNotFound, key)
	}
	return v, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	m.values[key] = value
	m.sets[key]++
	m.mu.Unlock()
	return nil
}

// SetCount returns how many times key was written.
func (m *MemoryStore) SetCount(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets[key]
}
