package policy

import (
	"context"
	"sync"

	"github.com/Gokhanagingil/grc-sub011/internal/apperr"
)

// MemoryStore is an in-memory Store for tests and single-node development.
// The mutex gives the same one-row-per-tenant guarantee the Postgres
// ON CONFLICT upsert provides.
type MemoryStore struct {
	mu       sync.RWMutex
	policies map[string]*Policy
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{policies: make(map[string]*Policy)}
}

func (s *MemoryStore) Upsert(_ context.Context, p *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.policies[p.TenantID]; ok {
		cp := *p
		cp.CreatedAt = existing.CreatedAt
		s.policies[p.TenantID] = &cp
		return nil
	}
	cp := *p
	s.policies[p.TenantID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenantID string) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[tenantID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *p
	cp.AllowedTools = append(cp.AllowedTools[:0:0], p.AllowedTools...)
	return &cp, nil
}
