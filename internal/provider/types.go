// Package provider stores per-tenant connection configurations for external
// systems. Every read path returns a redacted view; ciphertext never leaves
// the package boundary except toward the vault.
package provider

import (
	"time"

	"github.com/Gokhanagingil/grc-sub011/internal/tools"
	"github.com/Gokhanagingil/grc-sub011/internal/vault"
)

// AuthMode selects how the connector authenticates to the external system.
type AuthMode string

const (
	AuthNone  AuthMode = "none"
	AuthBasic AuthMode = "basic"
	AuthToken AuthMode = "token"
)

// ParseAuthMode validates an auth mode string.
func ParseAuthMode(s string) (AuthMode, bool) {
	switch AuthMode(s) {
	case AuthNone, AuthBasic, AuthToken:
		return AuthMode(s), true
	}
	return "", false
}

// Config is one configured connection to an external system, owned by a
// tenant. Secret slots hold ciphertext only.
type Config struct {
	ID            string
	TenantID      string
	Family        tools.ProviderFamily
	DisplayName   string
	Enabled       bool
	BaseURL       string
	AuthMode      AuthMode
	Username      vault.Secret
	Password      vault.Secret
	Token         vault.Secret
	CustomHeaders vault.Secret
	Deleted       bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Redacted is the only provider shape that crosses the API boundary. Secret
// slots are projected to presence flags by construction.
type Redacted struct {
	ID               string               `json:"id"`
	TenantID         string               `json:"tenantId"`
	Family           tools.ProviderFamily `json:"providerFamily"`
	DisplayName      string               `json:"displayName"`
	Enabled          bool                 `json:"isEnabled"`
	BaseURL          string               `json:"baseUrl"`
	AuthMode         AuthMode             `json:"authMode"`
	HasUsername      bool                 `json:"hasUsername"`
	HasPassword      bool                 `json:"hasPassword"`
	HasToken         bool                 `json:"hasToken"`
	HasCustomHeaders bool                 `json:"hasCustomHeaders"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// Redacted projects the safe view of a config.
func (c *Config) Redacted() *Redacted {
	return &Redacted{
		ID:               c.ID,
		TenantID:         c.TenantID,
		Family:           c.Family,
		DisplayName:      c.DisplayName,
		Enabled:          c.Enabled,
		BaseURL:          c.BaseURL,
		AuthMode:         c.AuthMode,
		HasUsername:      c.Username.Present(),
		HasPassword:      c.Password.Present(),
		HasToken:         c.Token.Present(),
		HasCustomHeaders: c.CustomHeaders.Present(),
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}
