package access

import (
	"context"
	"sync"
)

const (
	// StateKeyImpersonation holds the serialized override, present only while
	// an impersonation is active.
	StateKeyImpersonation = "access:impersonation"
	// StateKeyLogout holds the logout-in-progress flag, present only during
	// the logout transition.
	StateKeyLogout = "access:logout"

	// stateFlagSet is the value written for boolean flags.
	stateFlagSet = "1"
)

// MemoryStateStore is an in-memory StateStore. It backs tests and short-lived
// processes; production uses the bun-backed StateRepository.
type MemoryStateStore struct {
	mu     sync.RWMutex
	values map[string]string
}

var _ StateStore = (*MemoryStateStore)(nil)

// NewMemoryStateStore returns an empty in-memory store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{values: map[string]string{}}
}

// Get returns the value for key and whether it was present.
func (m *MemoryStateStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryStateStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// Delete removes key. Removing an absent key is a no-op.
func (m *MemoryStateStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}
