package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/glowcloud/glow/internal/model"
)

const sumUsageQuery = `SELECT COALESCE(SUM(amount_sats), 0) FROM budget_usage
	WHERE api_key_id = ? AND period_start = ?`

// Tx is a transaction that holds the exclusive lock for one API key.
type Tx struct {
	tx    *sqlx.Tx
	keyID string
}

// WithKeyLock begins a transaction, takes the per-key lock for keyID and
// runs fn. The transaction commits when fn returns nil and rolls back
// otherwise; the lock is released only after the transaction has ended.
//
// ctx bounds connection acquisition, lock wait and fn alike.
func (s *Store) WithKeyLock(ctx context.Context, keyID string, fn func(*Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	unlock, err := s.dialect.LockKey(ctx, tx, keyID)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("lock key: %w", err)
	}
	defer unlock()

	if err := fn(&Tx{tx: tx, keyID: keyID}); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SumUsage totals the surviving reservations of the locked key in the
// period starting at periodStart.
func (t *Tx) SumUsage(ctx context.Context, periodStart time.Time) (int64, error) {
	var total int64
	if err := t.tx.GetContext(ctx, &total, t.tx.Rebind(sumUsageQuery), t.keyID, periodStart.UTC()); err != nil {
		return 0, fmt.Errorf("sum usage: %w", err)
	}
	return total, nil
}

// InsertUsage records a reservation for the locked key.
func (t *Tx) InsertUsage(ctx context.Context, u *model.BudgetUsage) error {
	if u.APIKeyID != t.keyID {
		return fmt.Errorf("insert usage: key %s is not the locked key", u.APIKeyID)
	}
	const q = `INSERT INTO budget_usage
		(id, api_key_id, amount_sats, operation, period_start, created_at)
		VALUES
		(:id, :api_key_id, :amount_sats, :operation, :period_start, :created_at)`

	if _, err := t.tx.NamedExecContext(ctx, q, u); err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

// SumUsage totals a key's reservations for a period without locking.
func (s *Store) SumUsage(ctx context.Context, keyID string, periodStart time.Time) (int64, error) {
	bctx, cancel := s.bound(ctx)
	defer cancel()
	var total int64
	if err := s.db.GetContext(bctx, &total, s.rebind(sumUsageQuery), keyID, periodStart.UTC()); err != nil {
		return 0, fmt.Errorf("sum usage: %w", unavailable(ctx, err))
	}
	return total, nil
}

// DeleteUsage removes a reservation. Deleting a missing row is not an error,
// so releasing twice is harmless.
func (s *Store) DeleteUsage(ctx context.Context, id string) error {
	bctx, cancel := s.bound(ctx)
	defer cancel()
	if _, err := s.db.ExecContext(bctx, s.rebind("DELETE FROM budget_usage WHERE id = ?"), id); err != nil {
		return fmt.Errorf("delete usage: %w", unavailable(ctx, err))
	}
	return nil
}

// GetUsage returns a reservation by id.
func (s *Store) GetUsage(ctx context.Context, id string) (*model.BudgetUsage, error) {
	var u model.BudgetUsage
	q := s.rebind(`SELECT id, api_key_id, amount_sats, operation, period_start, created_at
		FROM budget_usage WHERE id = ?`)
	bctx, cancel := s.bound(ctx)
	defer cancel()
	if err := s.db.GetContext(bctx, &u, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get usage: %w", unavailable(ctx, err))
	}
	return &u, nil
}
