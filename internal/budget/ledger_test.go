package budget

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowcloud/glow/internal/connector"
	"github.com/glowcloud/glow/internal/connector/postgres"
	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string { return &v }

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *store.Store) {
	t.Helper()
	s, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	opts = append([]Option{WithLogger(discard)}, opts...)
	return NewLedger(s, opts...), s
}

func seedKey(t *testing.T, s *store.Store, budget *int64, period *string, max *int64) *model.APIKey {
	t.Helper()
	key := &model.APIKey{
		KeyHash:       store.HashAPIKey(uuid.NewString()),
		Name:          "agent",
		Permissions:   pq.StringArray{"send"},
		BudgetSats:    budget,
		BudgetPeriod:  period,
		MaxAmountSats: max,
	}
	require.NoError(t, s.CreateAPIKey(context.Background(), key))
	return key
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestReserveAndRelease(t *testing.T) {
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
	l, s := newTestLedger(t, WithClock(fixedClock(now)))
	ctx := context.Background()
	key := seedKey(t, s, int64Ptr(10000), strPtr("daily"), nil)

	res, err := l.Reserve(ctx, key, 2500)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, key.ID, res.KeyID)
	assert.Equal(t, int64(2500), res.Amount)
	assert.True(t, res.PeriodStart.Equal(time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC)))

	spent, err := s.SumUsage(ctx, key.ID, res.PeriodStart)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), spent)

	require.NoError(t, l.Release(ctx, res.ID))
	spent, err = s.SumUsage(ctx, key.ID, res.PeriodStart)
	require.NoError(t, err)
	assert.Zero(t, spent)

	// Releasing twice is harmless.
	require.NoError(t, l.Release(ctx, res.ID))
}

func TestReserveRejectsOverBudget(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()
	key := seedKey(t, s, int64Ptr(10000), strPtr("daily"), nil)

	_, err := l.Reserve(ctx, key, 6000)
	require.NoError(t, err)

	_, err = l.Reserve(ctx, key, 6000)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "remaining 4000 sats")
	assert.Contains(t, rej.Reason, "daily")
	require.NotNil(t, rej.RemainingSats)
	assert.Equal(t, int64(4000), *rej.RemainingSats)
}

func TestReserveExactBudgetAllowed(t *testing.T) {
	l, s := newTestLedger(t)
	key := seedKey(t, s, int64Ptr(1000), strPtr("monthly"), nil)

	_, err := l.Reserve(context.Background(), key, 1000)
	require.NoError(t, err)

	_, err = l.Reserve(context.Background(), key, 1)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, int64(0), *rej.RemainingSats)
}

func TestReserveWithoutBudget(t *testing.T) {
	l, s := newTestLedger(t)
	ctx := context.Background()
	key := seedKey(t, s, nil, nil, nil)

	for _, amount := range []int64{1, 1_000_000, 21_000_000_00000000} {
		res, err := l.Reserve(ctx, key, amount)
		require.NoError(t, err)
		assert.Nil(t, res)
	}
	spent, err := s.SumUsage(ctx, key.ID, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, spent)
}

func TestConcurrentReservesNeverExceedBudget(t *testing.T) {
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
	l, s := newTestLedger(t, WithClock(fixedClock(now)))
	ctx := context.Background()
	key := seedKey(t, s, int64Ptr(10000), strPtr("daily"), nil)

	const workers = 25
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		rejected int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reserve(ctx, key, 1000)
			mu.Lock()
			defer mu.Unlock()
			var rej *RejectedError
			switch {
			case err == nil:
				accepted++
			case errors.As(err, &rej):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, accepted)
	assert.Equal(t, workers-10, rejected)

	periodStart, _ := PeriodStart(now, model.PeriodDaily)
	spent, err := s.SumUsage(ctx, key.ID, periodStart)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), spent)
}

func TestTwoConcurrentSixThousands(t *testing.T) {
	l, s := newTestLedger(t)
	key := seedKey(t, s, int64Ptr(10000), strPtr("daily"), nil)

	errs := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := l.Reserve(context.Background(), key, 6000)
			errs <- err
		}()
	}

	var failures []error
	for range 2 {
		if err := <-errs; err != nil {
			failures = append(failures, err)
		}
	}
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "remaining 4000 sats")
}

func TestPeriodsAreSeparateBuckets(t *testing.T) {
	clock := time.Date(2025, 6, 18, 23, 59, 59, 0, time.UTC)
	l, s := newTestLedger(t, WithClock(func() time.Time { return clock }))
	key := seedKey(t, s, int64Ptr(10000), strPtr("daily"), nil)

	first, err := l.Reserve(context.Background(), key, 6000)
	require.NoError(t, err)

	clock = time.Date(2025, 6, 19, 0, 0, 1, 0, time.UTC)
	second, err := l.Reserve(context.Background(), key, 6000)
	require.NoError(t, err)

	assert.False(t, first.PeriodStart.Equal(second.PeriodStart))
}

func TestPerTransactionLimit(t *testing.T) {
	l, s := newTestLedger(t)
	key := seedKey(t, s, int64Ptr(1_000_000), strPtr("weekly"), int64Ptr(5000))

	_, err := l.Reserve(context.Background(), key, 5001)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Contains(t, rej.Reason, "per-transaction limit")
	assert.Nil(t, rej.RemainingSats)

	res, err := l.Reserve(context.Background(), key, 5000)
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestPerTransactionLimitTouchesNoTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.New(sqlx.NewDb(db, "pgx"), postgres.New())
	l := NewLedger(s, WithLogger(discard))

	key := &model.APIKey{
		ID:            "0192a1b2-0000-7000-8000-000000000001",
		MaxAmountSats: int64Ptr(5000),
		BudgetSats:    int64Ptr(100000),
		BudgetPeriod:  strPtr("daily"),
	}
	_, err = l.Reserve(context.Background(), key, 5001)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)

	// No expectations were registered, so any query would have failed.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveLocksBeforeSumming(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
	s := store.New(sqlx.NewDb(db, "pgx"), postgres.New())
	l := NewLedger(s, WithLogger(discard), WithClock(fixedClock(now)))

	key := &model.APIKey{
		ID:           "0192a1b2-0000-7000-8000-000000000002",
		BudgetSats:   int64Ptr(10000),
		BudgetPeriod: strPtr("daily"),
	}
	periodStart := time.Date(2025, 6, 18, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock($1)")).
		WithArgs(connector.LockID(key.ID)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(amount_sats), 0) FROM budget_usage")).
		WithArgs(key.ID, periodStart).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(4000)))
	mock.ExpectExec("INSERT INTO budget_usage").
		WithArgs(sqlmock.AnyArg(), key.ID, int64(6000), "send", periodStart, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res, err := l.Reserve(context.Background(), key, 6000)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRejectionRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := store.New(sqlx.NewDb(db, "pgx"), postgres.New())
	l := NewLedger(s, WithLogger(discard))

	key := &model.APIKey{
		ID:           "0192a1b2-0000-7000-8000-000000000003",
		BudgetSats:   int64Ptr(10000),
		BudgetPeriod: strPtr("monthly"),
	}

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SUM\\(amount_sats\\)").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(9000)))
	mock.ExpectRollback()

	_, err = l.Reserve(context.Background(), key, 2000)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, int64(1000), *rej.RemainingSats)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveLockTimeoutIsUnavailable(t *testing.T) {
	l, s := newTestLedger(t, WithAcquireTimeout(50*time.Millisecond))
	key := seedKey(t, s, int64Ptr(10000), strPtr("daily"), nil)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithKeyLock(context.Background(), key.ID, func(*store.Tx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	_, err := l.Reserve(context.Background(), key, 100)
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestStatusOnExhaustedPoolIsUnavailable(t *testing.T) {
	s, err := store.OpenMemory(store.WithAcquireTimeout(50 * time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	l := NewLedger(s, WithLogger(discard))
	key := seedKey(t, s, int64Ptr(10000), strPtr("daily"), nil)

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithKeyLock(context.Background(), key.ID, func(*store.Tx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held
	defer close(done)

	_, err = l.Status(context.Background(), key)
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestStatus(t *testing.T) {
	now := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
	l, s := newTestLedger(t, WithClock(fixedClock(now)))
	ctx := context.Background()

	key := seedKey(t, s, int64Ptr(10000), strPtr("weekly"), int64Ptr(3000))
	_, err := l.Reserve(ctx, key, 2500)
	require.NoError(t, err)

	st, err := l.Status(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), st.SpentSats)
	require.NotNil(t, st.RemainingSats)
	assert.Equal(t, int64(7500), *st.RemainingSats)
	require.NotNil(t, st.PeriodStart)
	assert.True(t, st.PeriodStart.Equal(time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)))

	plain := seedKey(t, s, nil, nil, nil)
	st, err = l.Status(ctx, plain)
	require.NoError(t, err)
	assert.Nil(t, st.RemainingSats)
	assert.Nil(t, st.PeriodStart)
}

type capture struct {
	mu     sync.Mutex
	events []model.Event
}

func (c *capture) Publish(ev model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func TestRejectionPublishesEvent(t *testing.T) {
	events := &capture{}
	l, s := newTestLedger(t, WithEvents(events))
	key := seedKey(t, s, nil, nil, int64Ptr(10))

	_, err := l.Reserve(context.Background(), key, 11)
	require.Error(t, err)
	require.Len(t, events.events, 1)
	assert.Equal(t, model.EventBudgetRejected, events.events[0].Type)
	assert.Equal(t, int64(11), events.events[0].AmountSats)
}
