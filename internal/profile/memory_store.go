package profile

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory profile store for demo/development mode.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile // subject → profile
}

// NewMemoryStore creates a new in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*Profile)}
}

func (m *MemoryStore) Create(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.Subject] = &cp
	return nil
}

func (m *MemoryStore) FindVerifiedBuyer(_ context.Context, subject string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[subject]
	if !ok || !p.Verified {
		return nil, ErrNoProfile
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) FindByAPIKeyHash(_ context.Context, hash string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.profiles {
		if p.APIKeyHash != "" && p.APIKeyHash == hash {
			cp := *p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// Compile-time assertion.
var _ Store = (*MemoryStore)(nil)
