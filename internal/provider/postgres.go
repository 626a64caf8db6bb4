package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Gokhanagingil/grc-sub011/internal/apperr"
	"github.com/Gokhanagingil/grc-sub011/internal/tools"
	"github.com/Gokhanagingil/grc-sub011/internal/vault"
)

const providerColumns = `
	id, tenant_id, provider_family, display_name, is_enabled, base_url,
	auth_mode, username_enc, password_enc, token_enc, custom_headers_enc,
	is_deleted, created_at, updated_at`

// PostgresStore persists provider configurations in the tool_providers table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgresStore over an existing pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, cfg *Config) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_providers (
			id, tenant_id, provider_family, display_name, is_enabled, base_url,
			auth_mode, username_enc, password_enc, token_enc, custom_headers_enc,
			is_deleted, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		cfg.ID, cfg.TenantID, string(cfg.Family), cfg.DisplayName, cfg.Enabled, cfg.BaseURL,
		string(cfg.AuthMode),
		nullable(cfg.Username.Ciphertext()), nullable(cfg.Password.Ciphertext()),
		nullable(cfg.Token.Ciphertext()), nullable(cfg.CustomHeaders.Ciphertext()),
		cfg.Deleted, cfg.CreatedAt, cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("provider.Insert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, cfg *Config) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tool_providers SET
			display_name = $3, is_enabled = $4, base_url = $5, auth_mode = $6,
			username_enc = $7, password_enc = $8, token_enc = $9,
			custom_headers_enc = $10, updated_at = $11
		WHERE id = $1 AND tenant_id = $2 AND is_deleted = FALSE
	`,
		cfg.ID, cfg.TenantID, cfg.DisplayName, cfg.Enabled, cfg.BaseURL, string(cfg.AuthMode),
		nullable(cfg.Username.Ciphertext()), nullable(cfg.Password.Ciphertext()),
		nullable(cfg.Token.Ciphertext()), nullable(cfg.CustomHeaders.Ciphertext()),
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("provider.Update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("provider.Update: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, id string) (*Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+providerColumns+`
		FROM tool_providers
		WHERE id = $1 AND tenant_id = $2 AND is_deleted = FALSE
	`, id, tenantID)
	return scanProvider(row)
}

func (s *PostgresStore) List(ctx context.Context, tenantID string) ([]*Config, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+providerColumns+`
		FROM tool_providers
		WHERE tenant_id = $1 AND is_deleted = FALSE
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("provider.List: %w", err)
	}
	defer rows.Close()

	var configs []*Config
	for rows.Next() {
		cfg, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("provider.List: %w", err)
	}
	return configs, nil
}

func (s *PostgresStore) FirstEnabledByFamily(ctx context.Context, tenantID string, family tools.ProviderFamily) (*Config, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+providerColumns+`
		FROM tool_providers
		WHERE tenant_id = $1 AND provider_family = $2
		  AND is_enabled = TRUE AND is_deleted = FALSE
		ORDER BY created_at
		LIMIT 1
	`, tenantID, string(family))
	return scanProvider(row)
}

func (s *PostgresStore) SoftDelete(ctx context.Context, tenantID, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tool_providers
		SET is_deleted = TRUE, is_enabled = FALSE, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND is_deleted = FALSE
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("provider.SoftDelete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("provider.SoftDelete: %w", err)
	}
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProvider(row rowScanner) (*Config, error) {
	var cfg Config
	var family, authMode string
	var username, password, token, customHeaders sql.NullString
	err := row.Scan(
		&cfg.ID, &cfg.TenantID, &family, &cfg.DisplayName, &cfg.Enabled, &cfg.BaseURL,
		&authMode, &username, &password, &token, &customHeaders,
		&cfg.Deleted, &cfg.CreatedAt, &cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("provider.scan: %w", err)
	}
	cfg.Family = tools.ProviderFamily(family)
	cfg.AuthMode = AuthMode(authMode)
	cfg.Username = vault.NewSecret(username.String)
	cfg.Password = vault.NewSecret(password.String)
	cfg.Token = vault.NewSecret(token.String)
	cfg.CustomHeaders = vault.NewSecret(customHeaders.String)
	return &cfg, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
