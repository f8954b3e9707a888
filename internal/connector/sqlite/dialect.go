package sqlite

import (
	"context"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/glowcloud/glow/internal/connector"
)

const lockShards = 64

// SQLiteDialect implements connector.Dialect for SQLite. SQLite has no
// row-level or advisory locks, so per-key serialization uses an in-process
// striped mutex. This is only correct while a single gateway process owns
// the database file.
type SQLiteDialect struct {
	shards [lockShards]sync.Mutex
}

// New creates a new SQLiteDialect.
func New() connector.Dialect {
	return &SQLiteDialect{}
}

// Open opens the database file named by the DSN, or a private in-memory
// database when the DSN is empty. SQLite doesn't support concurrent writers,
// so the pool is pinned to one connection.
func (d *SQLiteDialect) Open(cfg connector.ConnectionConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		cfg.DSN = ":memory:"
	}
	cfg.DSN = withPragmas(cfg.DSN)
	// An in-memory database lives and dies with its only connection.
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	cfg.ConnMaxLifetime = 0
	cfg.ConnMaxIdleTime = 0
	return connector.Open("sqlite", cfg)
}

// defaultPragmas are added to every DSN that does not set them itself.
var defaultPragmas = []struct{ name, value string }{
	{"foreign_keys", "foreign_keys(1)"},
	{"busy_timeout", "busy_timeout(5000)"},
}

// withPragmas appends each missing default pragma to dsn, keeping any
// query parameters already present.
func withPragmas(dsn string) string {
	for _, p := range defaultPragmas {
		if strings.Contains(dsn, "_pragma="+p.name) {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=" + p.value
	}
	return dsn
}

// Schema returns the bootstrap DDL.
func (d *SQLiteDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS api_keys (
			id TEXT PRIMARY KEY,
			key_hash TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			permissions TEXT NOT NULL DEFAULT '{}',
			max_amount_sats INTEGER,
			budget_sats INTEGER,
			budget_period TEXT,
			is_active INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS budget_usage (
			id TEXT PRIMARY KEY,
			api_key_id TEXT NOT NULL REFERENCES api_keys(id),
			amount_sats INTEGER NOT NULL CHECK (amount_sats > 0),
			operation TEXT NOT NULL DEFAULT 'send',
			period_start DATETIME NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_budget_usage_key_period ON budget_usage(api_key_id, period_start)`,
	}
}

// LockKey locks the shard owning keyID. The returned Unlock must run after
// the transaction has finished.
func (d *SQLiteDialect) LockKey(ctx context.Context, _ *sqlx.Tx, keyID string) (connector.Unlock, error) {
	mu := &d.shards[uint64(connector.LockID(keyID))%lockShards]

	locked := make(chan struct{})
	go func() {
		mu.Lock()
		close(locked)
	}()

	select {
	case <-locked:
		return mu.Unlock, nil
	case <-ctx.Done():
		// Hand the lock back as soon as the waiter gets it.
		go func() {
			<-locked
			mu.Unlock()
		}()
		return nil, ctx.Err()
	}
}

// IsDuplicateObject reports "already exists" errors. Every bootstrap
// statement uses IF NOT EXISTS, so this rarely fires.
func (d *SQLiteDialect) IsDuplicateObject(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}

// DriverName returns the driver identifier for SQLite.
func (d *SQLiteDialect) DriverName() string { return "sqlite" }
