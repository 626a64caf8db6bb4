// Package policy holds the per-tenant authorization policy for tool
// invocations. The absence of a policy row means tools are disabled: every
// consumer must fail closed.
package policy

import (
	"context"
	"time"

	"github.com/Gokhanagingil/grc-sub011/internal/tools"
)

// Defaults applied when an upsert omits the limits.
const (
	DefaultRateLimitPerMinute = 60
	DefaultMaxCallsPerRun     = 20
)

// Policy is the single authorization policy of one tenant.
type Policy struct {
	TenantID           string          `json:"tenantId"`
	ToolsEnabled       bool            `json:"isToolsEnabled"`
	AllowedTools       []tools.ToolKey `json:"allowedTools"`
	RateLimitPerMinute int             `json:"rateLimitPerMinute"`
	MaxCallsPerRun     int             `json:"maxToolCallsPerRun"`
	UpdatedBy          string          `json:"updatedBy,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// Allows reports whether the policy permits the tool.
func (p *Policy) Allows(key tools.ToolKey) bool {
	if !p.ToolsEnabled {
		return false
	}
	for _, k := range p.AllowedTools {
		if k == key {
			return true
		}
	}
	return false
}

// Store persists tenant policies. Upsert must be atomic: two concurrent
// first-time upserts for the same tenant must converge on one row.
type Store interface {
	Upsert(ctx context.Context, p *Policy) error

	// Get returns apperr.ErrNotFound when the tenant has no policy row.
	Get(ctx context.Context, tenantID string) (*Policy, error)
}
