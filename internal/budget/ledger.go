package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/glowcloud/glow/internal/metrics"
	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/store"
)

// DefaultAcquireTimeout bounds connection acquisition plus lock wait.
const DefaultAcquireTimeout = 5 * time.Second

// Reservation is a committed usage entry standing for an in-flight spend.
type Reservation struct {
	ID          string
	KeyID       string
	Amount      int64
	PeriodStart time.Time
}

// EventPublisher receives fire-and-forget notifications.
type EventPublisher interface {
	Publish(model.Event)
}

// Ledger performs atomic check-and-reserve against a key's rolling budget.
type Ledger struct {
	store          *store.Store
	now            func() time.Time
	acquireTimeout time.Duration
	logger         *slog.Logger
	events         EventPublisher
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used to pick the period.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithAcquireTimeout bounds how long Reserve waits for a connection and
// the per-key lock.
func WithAcquireTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.acquireTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

func WithEvents(p EventPublisher) Option {
	return func(l *Ledger) { l.events = p }
}

func NewLedger(s *store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:          s,
		now:            time.Now,
		acquireTimeout: DefaultAcquireTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reserve checks amount against the key's per-transaction cap and budget
// and, when allowed, records a usage entry. A nil Reservation with a nil
// error means the key has no budget and nothing was written.
func (l *Ledger) Reserve(ctx context.Context, key *model.APIKey, amount int64) (*Reservation, error) {
	if key.MaxAmountSats != nil && amount > *key.MaxAmountSats {
		metrics.BudgetDecisions.WithLabelValues("rejected_limit").Inc()
		l.reject(key, amount, "limit")
		return nil, &RejectedError{Reason: fmt.Sprintf(
			"Amount %d exceeds per-transaction limit of %d sats", amount, *key.MaxAmountSats)}
	}
	if !key.HasBudget() {
		metrics.BudgetDecisions.WithLabelValues("unbudgeted").Inc()
		return nil, nil
	}

	periodStart, err := PeriodStart(l.now(), key.Period())
	if err != nil {
		return nil, err
	}
	budget := *key.BudgetSats

	res := &Reservation{
		ID:          uuid.Must(uuid.NewV7()).String(),
		KeyID:       key.ID,
		Amount:      amount,
		PeriodStart: periodStart,
	}

	lockCtx, cancel := context.WithTimeout(ctx, l.acquireTimeout)
	defer cancel()

	var rejected *RejectedError
	err = l.store.WithKeyLock(lockCtx, key.ID, func(tx *store.Tx) error {
		spent, err := tx.SumUsage(lockCtx, periodStart)
		if err != nil {
			return err
		}
		if spent+amount > budget {
			remaining := max(0, budget-spent)
			rejected = &RejectedError{
				Reason: fmt.Sprintf("Budget exceeded: remaining %d sats this %s period",
					remaining, key.Period()),
				RemainingSats: &remaining,
			}
			return rejected
		}
		return tx.InsertUsage(lockCtx, &model.BudgetUsage{
			ID:          res.ID,
			APIKeyID:    key.ID,
			AmountSats:  amount,
			Operation:   model.OperationSend,
			PeriodStart: periodStart,
			CreatedAt:   l.now().UTC(),
		})
	})
	if rejected != nil {
		metrics.BudgetDecisions.WithLabelValues("rejected_budget").Inc()
		l.reject(key, amount, "budget")
		return nil, rejected
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			metrics.BudgetDecisions.WithLabelValues("unavailable").Inc()
			l.logger.Warn("budget lock acquisition timed out",
				"api_key_id", key.ID, "timeout", l.acquireTimeout)
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, fmt.Errorf("reserve: %w", err)
	}

	metrics.BudgetDecisions.WithLabelValues("reserved").Inc()
	l.logger.Debug("budget reserved",
		"api_key_id", key.ID, "reservation_id", res.ID, "amount_sats", amount,
		"period_start", periodStart.Format(time.RFC3339))
	return res, nil
}

// Release deletes a reservation. Releasing an unknown or already-released
// reservation is a no-op.
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	if err := l.store.DeleteUsage(ctx, reservationID); err != nil {
		return fmt.Errorf("release: %w", err)
	}
	metrics.BudgetDecisions.WithLabelValues("released").Inc()
	l.logger.Debug("budget reservation released", "reservation_id", reservationID)
	return nil
}

// Status reports a key's limits and its consumption in the current period.
func (l *Ledger) Status(ctx context.Context, key *model.APIKey) (*model.BudgetStatus, error) {
	st := &model.BudgetStatus{
		APIKeyID:      key.ID,
		MaxAmountSats: key.MaxAmountSats,
		BudgetSats:    key.BudgetSats,
		BudgetPeriod:  key.BudgetPeriod,
	}
	if !key.HasBudget() {
		return st, nil
	}

	periodStart, err := PeriodStart(l.now(), key.Period())
	if err != nil {
		return nil, err
	}
	spent, err := l.store.SumUsage(ctx, key.ID, periodStart)
	if err != nil {
		return nil, fmt.Errorf("budget status: %w", err)
	}
	remaining := max(0, *key.BudgetSats-spent)
	st.PeriodStart = &periodStart
	st.SpentSats = spent
	st.RemainingSats = &remaining
	return st, nil
}

func (l *Ledger) reject(key *model.APIKey, amount int64, kind string) {
	l.logger.Info("budget rejected", "api_key_id", key.ID, "amount_sats", amount, "kind", kind)
	if l.events == nil {
		return
	}
	l.events.Publish(model.Event{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Type:       model.EventBudgetRejected,
		APIKeyID:   key.ID,
		AmountSats: amount,
		Data:       map[string]any{"kind": kind},
		OccurredAt: l.now().UTC(),
	})
}
