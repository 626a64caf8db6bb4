package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/Gokhanagingil/grc-sub011/internal/apperr"
	"github.com/Gokhanagingil/grc-sub011/internal/tools"
)

// MemoryStore is an in-memory Store for tests and single-node development.
type MemoryStore struct {
	mu      sync.RWMutex
	configs map[string]*Config // id → config, soft-deleted rows retained
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{configs: make(map[string]*Config)}
}

func (s *MemoryStore) Insert(_ context.Context, cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	s.configs[cfg.ID] = &cp
	return nil
}

func (s *MemoryStore) Update(_ context.Context, cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.configs[cfg.ID]
	if !ok || existing.Deleted || existing.TenantID != cfg.TenantID {
		return apperr.ErrNotFound
	}
	cp := *cfg
	cp.CreatedAt = existing.CreatedAt
	s.configs[cfg.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, tenantID, id string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[id]
	if !ok || cfg.Deleted || cfg.TenantID != tenantID {
		return nil, apperr.ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

func (s *MemoryStore) List(_ context.Context, tenantID string) ([]*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Config
	for _, cfg := range s.configs {
		if cfg.Deleted || cfg.TenantID != tenantID {
			continue
		}
		cp := *cfg
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) FirstEnabledByFamily(_ context.Context, tenantID string, family tools.ProviderFamily) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var candidates []*Config
	for _, cfg := range s.configs {
		if cfg.Deleted || !cfg.Enabled || cfg.TenantID != tenantID || cfg.Family != family {
			continue
		}
		candidates = append(candidates, cfg)
	}
	if len(candidates) == 0 {
		return nil, apperr.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

func (s *MemoryStore) SoftDelete(_ context.Context, tenantID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[id]
	if !ok || cfg.Deleted || cfg.TenantID != tenantID {
		return apperr.ErrNotFound
	}
	cfg.Deleted = true
	cfg.Enabled = false
	return nil
}
