package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Gokhanagingil/grc-sub011/internal/apperr"
	"github.com/Gokhanagingil/grc-sub011/internal/ssrf"
	"github.com/Gokhanagingil/grc-sub011/internal/tools"
	"github.com/Gokhanagingil/grc-sub011/internal/vault"
)

const maxDisplayName = 200

// Registry manages provider configurations: SSRF-validates endpoints,
// encrypts secrets on the way in, and redacts everything on the way out.
type Registry struct {
	store  Store
	guard  *ssrf.Guard
	vault  *vault.Vault
	logger *zap.Logger
}

// NewRegistry creates a Registry.
func NewRegistry(store Store, guard *ssrf.Guard, v *vault.Vault, logger *zap.Logger) *Registry {
	return &Registry{store: store, guard: guard, vault: v, logger: logger}
}

// CreateInput carries a new provider configuration. Secret fields left nil
// or empty are stored as absent.
type CreateInput struct {
	Family        string  `json:"providerFamily"`
	DisplayName   string  `json:"displayName"`
	Enabled       *bool   `json:"isEnabled"`
	BaseURL       string  `json:"baseUrl"`
	AuthMode      string  `json:"authMode"`
	Username      *string `json:"username"`
	Password      *string `json:"password"`
	Token         *string `json:"token"`
	CustomHeaders *string `json:"customHeaders"`
}

// UpdateInput carries a partial update. A nil secret field keeps the prior
// ciphertext; an explicit empty string clears the slot.
type UpdateInput struct {
	DisplayName   *string `json:"displayName"`
	Enabled       *bool   `json:"isEnabled"`
	BaseURL       *string `json:"baseUrl"`
	AuthMode      *string `json:"authMode"`
	Username      *string `json:"username"`
	Password      *string `json:"password"`
	Token         *string `json:"token"`
	CustomHeaders *string `json:"customHeaders"`
}

// Create validates and persists a new provider, returning the redacted view.
// An unsafe base URL is rejected before anything is written.
func (r *Registry) Create(ctx context.Context, tenantID string, in CreateInput) (*Redacted, error) {
	family, ok := tools.ParseFamily(in.Family)
	if !ok {
		return nil, apperr.Validation("unknown provider family %q", in.Family)
	}
	displayName := strings.TrimSpace(in.DisplayName)
	if displayName == "" || len(displayName) > maxDisplayName {
		return nil, apperr.Validation("displayName must be 1-%d characters", maxDisplayName)
	}
	authMode, ok := ParseAuthMode(in.AuthMode)
	if !ok {
		return nil, apperr.Validation("unknown auth mode %q", in.AuthMode)
	}
	if err := r.validateBaseURL(ctx, tenantID, in.BaseURL); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cfg := &Config{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Family:      family,
		DisplayName: displayName,
		Enabled:     in.Enabled == nil || *in.Enabled,
		BaseURL:     in.BaseURL,
		AuthMode:    authMode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var err error
	if cfg.Username, err = r.encryptOptional(in.Username); err != nil {
		return nil, err
	}
	if cfg.Password, err = r.encryptOptional(in.Password); err != nil {
		return nil, err
	}
	if cfg.Token, err = r.encryptOptional(in.Token); err != nil {
		return nil, err
	}
	if cfg.CustomHeaders, err = r.encryptOptional(in.CustomHeaders); err != nil {
		return nil, err
	}

	if err := r.store.Insert(ctx, cfg); err != nil {
		return nil, err
	}
	r.logger.Info("provider created",
		zap.String("tenant_id", tenantID),
		zap.String("provider_id", cfg.ID),
		zap.String("family", string(family)),
	)
	return cfg.Redacted(), nil
}

// Update applies a partial update, re-validating the base URL only when it
// changed.
func (r *Registry) Update(ctx context.Context, tenantID, id string, in UpdateInput) (*Redacted, error) {
	cfg, err := r.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if name == "" || len(name) > maxDisplayName {
			return nil, apperr.Validation("displayName must be 1-%d characters", maxDisplayName)
		}
		cfg.DisplayName = name
	}
	if in.Enabled != nil {
		cfg.Enabled = *in.Enabled
	}
	if in.AuthMode != nil {
		mode, ok := ParseAuthMode(*in.AuthMode)
		if !ok {
			return nil, apperr.Validation("unknown auth mode %q", *in.AuthMode)
		}
		cfg.AuthMode = mode
	}
	if in.BaseURL != nil && *in.BaseURL != cfg.BaseURL {
		if err := r.validateBaseURL(ctx, tenantID, *in.BaseURL); err != nil {
			return nil, err
		}
		cfg.BaseURL = *in.BaseURL
	}

	if cfg.Username, err = r.updateSecret(cfg.Username, in.Username); err != nil {
		return nil, err
	}
	if cfg.Password, err = r.updateSecret(cfg.Password, in.Password); err != nil {
		return nil, err
	}
	if cfg.Token, err = r.updateSecret(cfg.Token, in.Token); err != nil {
		return nil, err
	}
	if cfg.CustomHeaders, err = r.updateSecret(cfg.CustomHeaders, in.CustomHeaders); err != nil {
		return nil, err
	}

	cfg.UpdatedAt = time.Now().UTC()
	if err := r.store.Update(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg.Redacted(), nil
}

// Get returns the redacted view, or apperr.ErrNotFound when the provider is
// absent, soft-deleted, or owned by another tenant.
func (r *Registry) Get(ctx context.Context, tenantID, id string) (*Redacted, error) {
	cfg, err := r.store.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return cfg.Redacted(), nil
}

// List returns all live providers for the tenant, redacted.
func (r *Registry) List(ctx context.Context, tenantID string) ([]*Redacted, error) {
	configs, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]*Redacted, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, cfg.Redacted())
	}
	return out, nil
}

// Delete soft-deletes a provider. A second delete of the same id returns
// apperr.ErrNotFound.
func (r *Registry) Delete(ctx context.Context, tenantID, id string) error {
	if err := r.store.SoftDelete(ctx, tenantID, id); err != nil {
		return err
	}
	r.logger.Info("provider deleted",
		zap.String("tenant_id", tenantID),
		zap.String("provider_id", id),
	)
	return nil
}

// validateBaseURL screens the URL and surfaces a generic validation error on
// rejection; the guard's classification stays in the server log only.
func (r *Registry) validateBaseURL(ctx context.Context, tenantID, baseURL string) error {
	res := r.guard.ValidateURL(ctx, baseURL)
	if !res.Valid {
		r.logger.Warn("provider base url rejected",
			zap.String("tenant_id", tenantID),
			zap.String("reason", res.Reason),
		)
		return apperr.Validation("baseUrl is not allowed")
	}
	return nil
}

func (r *Registry) encryptOptional(value *string) (vault.Secret, error) {
	if value == nil || *value == "" {
		return vault.Clear(), nil
	}
	ct, err := r.vault.Encrypt(*value)
	if err != nil {
		return vault.Clear(), fmt.Errorf("encrypt secret: %w", err)
	}
	return vault.NewSecret(ct), nil
}

func (r *Registry) updateSecret(prior vault.Secret, value *string) (vault.Secret, error) {
	if value == nil {
		return prior, nil
	}
	if *value == "" {
		return vault.Clear(), nil
	}
	ct, err := r.vault.Encrypt(*value)
	if err != nil {
		return vault.Clear(), fmt.Errorf("encrypt secret: %w", err)
	}
	return vault.NewSecret(ct), nil
}
