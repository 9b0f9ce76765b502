package store

import (
	"context"
	"sort"
	"sync"

	"github.com/justprosound/miclink/internal/connstate"
)

// MemoryStore is an in-memory implementation of [Store].
//
// MemoryStore keeps one connection record per device behind a read-write
// mutex. It is the default when no database is configured; records do not
// survive a restart, which matches a monitoring setup where the fleet is
// defined by configuration and bookkeeping starts fresh.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]connstate.State
}

// NewMemoryStore creates an empty in-memory [Store].
//
// The store is immediately ready for use. No cleanup is required when done.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]connstate.State),
	}
}

// Register returns the existing record for the device or creates one in the
// default disconnected state.
func (m *MemoryStore) Register(_ context.Context, deviceID string, connType connstate.ConnType, maxAttempts int) (connstate.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.states[deviceID]; ok {
		return s, nil
	}
	s := connstate.New(deviceID, connType)
	if maxAttempts > 0 {
		s.MaxReconnectAttempts = maxAttempts
	}
	m.states[deviceID] = s
	return s, nil
}

// SaveState stores the record, replacing any previous version for the same
// device.
func (m *MemoryStore) SaveState(_ context.Context, s connstate.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[s.DeviceID] = s
	return nil
}

// LoadState returns the record for a device, or [ErrNotFound].
func (m *MemoryStore) LoadState(_ context.Context, deviceID string) (connstate.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.states[deviceID]
	if !ok {
		return connstate.State{}, ErrNotFound
	}
	return s, nil
}

// States returns a snapshot of all records ordered by device ID.
func (m *MemoryStore) States(_ context.Context) ([]connstate.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]connstate.State, 0, len(m.states))
	for _, s := range m.states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// Remove deletes a device's record. Removing an absent record is a no-op.
func (m *MemoryStore) Remove(_ context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, deviceID)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
