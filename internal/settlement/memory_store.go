package settlement

import (
	"context"
	"sync"
	"time"

	"github.com/onixgrid/bapbridge/internal/idgen"
)

// MemoryStore is an in-memory settlement store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record // keyed by transactionID + "|" + role
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (m *MemoryStore) Create(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.TransactionID + "|" + rec.Role
	if _, ok := m.records[key]; ok {
		return ErrDuplicate
	}
	stored := *rec
	if stored.ID == "" {
		stored.ID = idgen.WithPrefix("stl_")
	}
	stored.CreatedAt = time.Now().UTC()
	m.records[key] = &stored
	return nil
}

func (m *MemoryStore) FindByTransactionID(_ context.Context, transactionID string) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Record
	for _, rec := range m.records {
		if rec.TransactionID == transactionID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
