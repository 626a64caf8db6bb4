package provider

import (
	"context"

	"github.com/Gokhanagingil/grc-sub011/internal/tools"
)

// Store persists provider configurations. Implementations scope every
// lookup by tenant inside the query predicate itself and never return
// soft-deleted rows from Get, List, or FirstEnabledByFamily.
type Store interface {
	Insert(ctx context.Context, cfg *Config) error
	Update(ctx context.Context, cfg *Config) error
	Get(ctx context.Context, tenantID, id string) (*Config, error)
	List(ctx context.Context, tenantID string) ([]*Config, error)

	// FirstEnabledByFamily returns an enabled, non-deleted provider for the
	// family, or apperr.ErrNotFound when none is configured.
	FirstEnabledByFamily(ctx context.Context, tenantID string, family tools.ProviderFamily) (*Config, error)

	// SoftDelete sets is_deleted and clears is_enabled in one statement.
	// Returns apperr.ErrNotFound when the row is absent or already deleted.
	SoftDelete(ctx context.Context, tenantID, id string) error
}
