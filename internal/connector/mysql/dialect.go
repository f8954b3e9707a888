package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/glowcloud/glow/internal/connector"
)

// MySQLDialect implements connector.Dialect for MySQL/MariaDB (InnoDB).
// Per-key locking takes a row lock on the key's own api_keys row.
type MySQLDialect struct{}

// New creates a new MySQLDialect.
func New() connector.Dialect {
	return &MySQLDialect{}
}

// Open connects through go-sql-driver/mysql.
func (d *MySQLDialect) Open(cfg connector.ConnectionConfig) (*sqlx.DB, error) {
	return connector.Open("mysql", cfg)
}

// Schema returns the bootstrap DDL. MySQL has no CREATE INDEX IF NOT EXISTS,
// so the usage index is declared inline.
func (d *MySQLDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			key_hash CHAR(64) NOT NULL UNIQUE,
			name VARCHAR(100) NOT NULL,
			permissions VARCHAR(255) NOT NULL DEFAULT '{}',
			max_amount_sats BIGINT NULL,
			budget_sats BIGINT NULL,
			budget_period VARCHAR(16) NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at DATETIME(6) NOT NULL
		) ENGINE=InnoDB`,
		`CREATE TABLE IF NOT EXISTS budget_usage (
			id VARCHAR(36) NOT NULL PRIMARY KEY,
			api_key_id VARCHAR(36) NOT NULL,
			amount_sats BIGINT NOT NULL,
			operation VARCHAR(16) NOT NULL DEFAULT 'send',
			period_start DATETIME(6) NOT NULL,
			created_at DATETIME(6) NOT NULL,
			INDEX idx_budget_usage_key_period (api_key_id, period_start),
			CONSTRAINT fk_budget_usage_key FOREIGN KEY (api_key_id) REFERENCES api_keys(id)
		) ENGINE=InnoDB`,
	}
}

// LockKey locks the key's api_keys row with SELECT ... FOR UPDATE. InnoDB
// releases it when the transaction ends.
func (d *MySQLDialect) LockKey(ctx context.Context, tx *sqlx.Tx, keyID string) (connector.Unlock, error) {
	var id string
	err := tx.QueryRowxContext(ctx, "SELECT id FROM api_keys WHERE id = ? FOR UPDATE", keyID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("row lock: key %s does not exist", keyID)
		}
		return nil, fmt.Errorf("row lock: %w", err)
	}
	return func() {}, nil
}

// IsDuplicateObject matches ER_TABLE_EXISTS_ERROR and ER_DUP_KEYNAME.
func (d *MySQLDialect) IsDuplicateObject(err error) bool {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1050 || myErr.Number == 1061
	}
	return false
}

// DriverName returns the driver identifier for MySQL.
func (d *MySQLDialect) DriverName() string { return "mysql" }
