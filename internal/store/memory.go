package store

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-memory Store, keyed on (user_id, client_id). It backs
// unit tests and any deployment that doesn't need durability.
type Memory struct {
	mu      sync.RWMutex
	records map[loginKey]time.Time
}

type loginKey struct {
	userID   string
	clientID string
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[loginKey]time.Time)}
}

// StoreLogin implements Store. It always succeeds and is idempotent:
// re-storing the same pair just refreshes its last-seen timestamp.
func (m *Memory) StoreLogin(_ context.Context, userID, clientID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[loginKey{userID, clientID}] = time.Now().UTC()
	return nil
}

// FetchClientIDs implements Store.
func (m *Memory) FetchClientIDs(_ context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for k := range m.records {
		if k.userID == userID {
			ids = append(ids, k.clientID)
		}
	}
	return ids, nil
}

// Close implements Store; there is nothing to release.
func (m *Memory) Close() {}
