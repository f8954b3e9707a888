package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/glowcloud/glow/internal/connector"
)

// PostgresDialect implements connector.Dialect for PostgreSQL. Per-key
// locking uses transaction-scoped advisory locks, so every gateway instance
// sharing the database serializes on the same key.
type PostgresDialect struct{}

// New creates a new PostgresDialect.
func New() connector.Dialect {
	return &PostgresDialect{}
}

// Open connects through the pgx stdlib driver.
func (d *PostgresDialect) Open(cfg connector.ConnectionConfig) (*sqlx.DB, error) {
	return connector.Open("pgx", cfg)
}

// Schema returns the bootstrap DDL.
func (d *PostgresDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			key_hash TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			permissions TEXT NOT NULL DEFAULT '{}',
			max_amount_sats BIGINT,
			budget_sats BIGINT,
			budget_period TEXT,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS budget_usage (
			id TEXT PRIMARY KEY,
			api_key_id TEXT NOT NULL REFERENCES api_keys(id),
			amount_sats BIGINT NOT NULL CHECK (amount_sats > 0),
			operation TEXT NOT NULL DEFAULT 'send',
			period_start TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_budget_usage_key_period ON budget_usage(api_key_id, period_start)`,
	}
}

// LockKey takes pg_advisory_xact_lock on the key's lock id. Postgres drops
// the lock itself at commit or rollback.
func (d *PostgresDialect) LockKey(ctx context.Context, tx *sqlx.Tx, keyID string) (connector.Unlock, error) {
	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", connector.LockID(keyID)); err != nil {
		return nil, fmt.Errorf("advisory lock: %w", err)
	}
	return func() {}, nil
}

// IsDuplicateObject matches duplicate_table / duplicate_object SQLSTATEs.
func (d *PostgresDialect) IsDuplicateObject(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P07" || pgErr.Code == "42710"
	}
	return false
}

// DriverName returns the driver identifier for PostgreSQL.
func (d *PostgresDialect) DriverName() string { return "postgres" }
