package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Gokhanagingil/grc-sub011/internal/apperr"
	"github.com/Gokhanagingil/grc-sub011/internal/tools"
)

// PostgresStore persists policies in the tool_policies table, one row per
// tenant enforced by the primary key.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore over an existing pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Upsert(ctx context.Context, p *Policy) error {
	allowed, err := json.Marshal(p.AllowedTools)
	if err != nil {
		return fmt.Errorf("policy.Upsert: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tool_policies (
			tenant_id, is_tools_enabled, allowed_tools,
			rate_limit_per_minute, max_tool_calls_per_run,
			updated_by, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (tenant_id) DO UPDATE SET
			is_tools_enabled = EXCLUDED.is_tools_enabled,
			allowed_tools = EXCLUDED.allowed_tools,
			rate_limit_per_minute = EXCLUDED.rate_limit_per_minute,
			max_tool_calls_per_run = EXCLUDED.max_tool_calls_per_run,
			updated_by = EXCLUDED.updated_by,
			updated_at = EXCLUDED.updated_at
	`,
		p.TenantID, p.ToolsEnabled, string(allowed),
		p.RateLimitPerMinute, p.MaxCallsPerRun,
		p.UpdatedBy, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("policy.Upsert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID string) (*Policy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT tenant_id, is_tools_enabled, allowed_tools,
		       rate_limit_per_minute, max_tool_calls_per_run,
		       updated_by, created_at, updated_at
		FROM tool_policies
		WHERE tenant_id = $1
	`, tenantID)

	var p Policy
	var allowed string
	err := row.Scan(
		&p.TenantID, &p.ToolsEnabled, &allowed,
		&p.RateLimitPerMinute, &p.MaxCallsPerRun,
		&p.UpdatedBy, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("policy.Get: %w", err)
	}

	var rawKeys []string
	if allowed != "" {
		if err := json.Unmarshal([]byte(allowed), &rawKeys); err != nil {
			return nil, fmt.Errorf("policy.Get: allowed_tools: %w", err)
		}
	}
	// Rows written by an older enumeration are filtered, never trusted.
	seen := make(map[tools.ToolKey]bool, len(rawKeys))
	for _, raw := range rawKeys {
		k, ok := tools.Parse(raw)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		p.AllowedTools = append(p.AllowedTools, k)
	}
	return &p, nil
}
