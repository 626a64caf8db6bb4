// Package connector binds each provider family to a client for its external
// system. Connectors receive decrypted credentials only for the duration of
// one call and must never log them.
package connector

import (
	"context"
	"encoding/json"

	"github.com/Gokhanagingil/grc-sub011/internal/provider"
	"github.com/Gokhanagingil/grc-sub011/internal/tools"
)

// Credentials holds decrypted secrets for a single invocation.
// Never serialized, never logged.
type Credentials struct {
	Username      string
	Password      string
	Token         string
	CustomHeaders map[string]string
}

// Request is one read-only query against an external system.
type Request struct {
	Tool     tools.ToolKey
	TenantID string
	BaseURL  string
	AuthMode provider.AuthMode
	Creds    Credentials
	Input    map[string]any
}

// Connector executes read-only queries for one provider family.
type Connector interface {
	Family() tools.ProviderFamily
	Execute(ctx context.Context, req *Request) (json.RawMessage, error)
}

// Registry maps provider families to connectors.
type Registry struct {
	byFamily map[tools.ProviderFamily]Connector
}

// NewRegistry creates a Registry with the given connectors.
func NewRegistry(connectors ...Connector) *Registry {
	m := make(map[tools.ProviderFamily]Connector, len(connectors))
	for _, c := range connectors {
		m[c.Family()] = c
	}
	return &Registry{byFamily: m}
}

// ForFamily returns the connector bound to a family.
func (r *Registry) ForFamily(family tools.ProviderFamily) (Connector, bool) {
	c, ok := r.byFamily[family]
	return c, ok
}
