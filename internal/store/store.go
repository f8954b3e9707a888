package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/glowcloud/glow/internal/connector"
	"github.com/glowcloud/glow/internal/connector/sqlite"
)

// Store is the gateway's relational state: API keys and budget usage. The
// SQL is portable across dialects; everything engine-specific (connecting,
// DDL, per-key locking) is delegated to the connector.Dialect.
type Store struct {
	db             *sqlx.DB
	dialect        connector.Dialect
	acquireTimeout time.Duration
}

// DefaultAcquireTimeout bounds each single-statement call, connection
// acquisition included.
const DefaultAcquireTimeout = 5 * time.Second

// Option configures a Store.
type Option func(*Store)

// WithAcquireTimeout overrides DefaultAcquireTimeout. Zero or negative
// leaves calls bounded by the caller's context only.
func WithAcquireTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.acquireTimeout = d
	}
}

// Open connects using dialect and bootstraps the schema.
func Open(dialect connector.Dialect, cfg connector.ConnectionConfig, opts ...Option) (*Store, error) {
	db, err := dialect.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := New(db, dialect, opts...)
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return s, nil
}

// OpenMemory opens a private in-memory SQLite store.
func OpenMemory(opts ...Option) (*Store, error) {
	return Open(sqlite.New(), connector.ConnectionConfig{Driver: "sqlite"}, opts...)
}

// New wraps an already-open database without touching its schema.
func New(db *sqlx.DB, dialect connector.Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect, acquireTimeout: DefaultAcquireTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying database connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the dialect name backing this store.
func (s *Store) Driver() string {
	return s.dialect.DriverName()
}

// Stats returns connection pool statistics.
func (s *Store) Stats() (open, inUse, idle int) {
	st := s.db.Stats()
	return st.OpenConnections, st.InUse, st.Idle
}

func (s *Store) bootstrap() error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.Exec(stmt); err != nil {
			if s.dialect.IsDuplicateObject(err) {
				continue
			}
			return fmt.Errorf("bootstrap failed: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}

func (s *Store) rebind(q string) string {
	return s.db.Rebind(q)
}

// bound applies the acquire timeout to ctx.
func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.acquireTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.acquireTimeout)
}

// unavailable marks err as ErrUnavailable when the acquire timeout expired
// while parent was still live.
func unavailable(parent context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
