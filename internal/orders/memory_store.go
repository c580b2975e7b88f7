package orders

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory order store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Save(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	stored := *rec
	if existing, ok := m.records[rec.TransactionID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	m.records[rec.TransactionID] = &stored
	return nil
}

func (m *MemoryStore) FindByTransactionID(_ context.Context, transactionID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

var _ Store = (*MemoryStore)(nil)
