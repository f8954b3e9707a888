package mssql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	mssqldriver "github.com/microsoft/go-mssqldb"

	"github.com/glowcloud/glow/internal/connector"
)

// lockTimeoutMs bounds how long sp_getapplock waits. The caller's context
// deadline normally fires first.
const lockTimeoutMs = 30000

// MSSQLDialect implements connector.Dialect for SQL Server. Per-key locking
// uses application locks owned by the transaction.
type MSSQLDialect struct{}

// New creates a new MSSQLDialect.
func New() connector.Dialect {
	return &MSSQLDialect{}
}

// Open connects through go-mssqldb.
func (d *MSSQLDialect) Open(cfg connector.ConnectionConfig) (*sqlx.DB, error) {
	return connector.Open("sqlserver", cfg)
}

// Schema returns the bootstrap DDL, guarded by OBJECT_ID checks.
func (d *MSSQLDialect) Schema() []string {
	return []string{
		`IF OBJECT_ID(N'api_keys', N'U') IS NULL
		CREATE TABLE api_keys (
			id NVARCHAR(36) NOT NULL PRIMARY KEY,
			key_hash CHAR(64) NOT NULL UNIQUE,
			name NVARCHAR(100) NOT NULL,
			permissions NVARCHAR(255) NOT NULL DEFAULT '{}',
			max_amount_sats BIGINT NULL,
			budget_sats BIGINT NULL,
			budget_period NVARCHAR(16) NULL,
			is_active BIT NOT NULL DEFAULT 1,
			created_at DATETIME2 NOT NULL
		)`,
		`IF OBJECT_ID(N'budget_usage', N'U') IS NULL
		CREATE TABLE budget_usage (
			id NVARCHAR(36) NOT NULL PRIMARY KEY,
			api_key_id NVARCHAR(36) NOT NULL REFERENCES api_keys(id),
			amount_sats BIGINT NOT NULL CHECK (amount_sats > 0),
			operation NVARCHAR(16) NOT NULL DEFAULT 'send',
			period_start DATETIME2 NOT NULL,
			created_at DATETIME2 NOT NULL,
			INDEX idx_budget_usage_key_period NONCLUSTERED (api_key_id, period_start)
		)`,
	}
}

// LockKey takes an exclusive sp_getapplock owned by the transaction. A
// negative return code means the lock was not granted.
func (d *MSSQLDialect) LockKey(ctx context.Context, tx *sqlx.Tx, keyID string) (connector.Unlock, error) {
	const q = `DECLARE @rc INT;
		EXEC @rc = sp_getapplock @Resource = @p1, @LockMode = 'Exclusive',
			@LockOwner = 'Transaction', @LockTimeout = @p2;
		SELECT @rc;`

	var rc int
	if err := tx.QueryRowxContext(ctx, q, "glow:key:"+keyID, lockTimeoutMs).Scan(&rc); err != nil {
		return nil, fmt.Errorf("applock: %w", err)
	}
	if rc < 0 {
		return nil, fmt.Errorf("applock: not granted (code %d)", rc)
	}
	return func() {}, nil
}

// IsDuplicateObject matches "There is already an object named ..." (2714).
func (d *MSSQLDialect) IsDuplicateObject(err error) bool {
	var msErr mssqldriver.Error
	if errors.As(err, &msErr) {
		return msErr.Number == 2714
	}
	return false
}

// DriverName returns the driver identifier for SQL Server.
func (d *MSSQLDialect) DriverName() string { return "mssql" }
