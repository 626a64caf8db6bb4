package policy

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Gokhanagingil/grc-sub011/internal/apperr"
	"github.com/Gokhanagingil/grc-sub011/internal/provider"
	"github.com/Gokhanagingil/grc-sub011/internal/tools"
)

// Service validates and applies policy writes and answers status queries.
type Service struct {
	store     Store
	providers provider.Store
	logger    *zap.Logger
}

// NewService creates a Service. The provider store is consulted only for the
// derived hasUsableProvider flag, never mutated.
func NewService(store Store, providers provider.Store, logger *zap.Logger) *Service {
	return &Service{store: store, providers: providers, logger: logger}
}

// UpsertInput carries a policy write. Omitted limits take defaults.
type UpsertInput struct {
	ToolsEnabled       bool     `json:"isToolsEnabled"`
	AllowedTools       []string `json:"allowedTools"`
	RateLimitPerMinute *int     `json:"rateLimitPerMinute"`
	MaxCallsPerRun     *int     `json:"maxToolCallsPerRun"`
}

// Upsert creates or replaces the tenant's policy. Unknown tool identifiers
// reject the whole write with no partial state change.
func (s *Service) Upsert(ctx context.Context, tenantID string, in UpsertInput, actorUserID string) (*Policy, error) {
	keys, invalid := tools.ValidateKeys(in.AllowedTools)
	if len(invalid) > 0 {
		return nil, &apperr.ValidationError{Msg: "unknown tool identifiers", Fields: invalid}
	}

	rateLimit := DefaultRateLimitPerMinute
	if in.RateLimitPerMinute != nil {
		rateLimit = *in.RateLimitPerMinute
	}
	maxPerRun := DefaultMaxCallsPerRun
	if in.MaxCallsPerRun != nil {
		maxPerRun = *in.MaxCallsPerRun
	}
	if rateLimit < 0 {
		return nil, apperr.Validation("rateLimitPerMinute must not be negative")
	}
	if maxPerRun < 0 {
		return nil, apperr.Validation("maxToolCallsPerRun must not be negative")
	}

	now := time.Now().UTC()
	p := &Policy{
		TenantID:           tenantID,
		ToolsEnabled:       in.ToolsEnabled,
		AllowedTools:       keys,
		RateLimitPerMinute: rateLimit,
		MaxCallsPerRun:     maxPerRun,
		UpdatedBy:          actorUserID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.Upsert(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("tool policy upserted",
		zap.String("tenant_id", tenantID),
		zap.String("actor_user_id", actorUserID),
		zap.Bool("tools_enabled", p.ToolsEnabled),
		zap.Int("allowed_tools", len(p.AllowedTools)),
	)
	return p, nil
}

// Status is the answer to getToolStatus.
type Status struct {
	ToolsEnabled      bool            `json:"isToolsEnabled"`
	AvailableTools    []tools.ToolKey `json:"availableTools"`
	HasUsableProvider bool            `json:"hasUsableProvider"`
}

// Status distinguishes "permitted by policy" from "actually configured":
// HasUsableProvider is true when at least one allowlisted tool's family has
// an enabled, non-deleted provider. No policy row means disabled.
func (s *Service) Status(ctx context.Context, tenantID string) (*Status, error) {
	p, err := s.store.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return &Status{AvailableTools: []tools.ToolKey{}}, nil
		}
		return nil, err
	}

	st := &Status{
		ToolsEnabled:   p.ToolsEnabled,
		AvailableTools: append([]tools.ToolKey{}, p.AllowedTools...),
	}

	checked := make(map[tools.ProviderFamily]bool)
	for _, key := range p.AllowedTools {
		family := key.Family()
		if checked[family] {
			continue
		}
		checked[family] = true
		if _, err := s.providers.FirstEnabledByFamily(ctx, tenantID, family); err == nil {
			st.HasUsableProvider = true
			break
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}
	return st, nil
}
