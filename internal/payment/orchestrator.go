// Package payment coordinates budget reservation and wallet execution for
// outgoing payments, and passes the read-only wallet operations through.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/glowcloud/glow/internal/budget"
	"github.com/glowcloud/glow/internal/metrics"
	"github.com/glowcloud/glow/internal/model"
	"github.com/glowcloud/glow/internal/wallet"
)

// DefaultSendTimeout bounds wallet execution of a reserved payment.
const DefaultSendTimeout = 60 * time.Second

// Ledger is the budget surface the orchestrator needs.
type Ledger interface {
	Reserve(ctx context.Context, key *model.APIKey, amount int64) (*budget.Reservation, error)
	Release(ctx context.Context, reservationID string) error
}

// EventPublisher receives fire-and-forget notifications.
type EventPublisher interface {
	Publish(model.Event)
}

// Config tunes an Orchestrator.
type Config struct {
	SendTimeout time.Duration
	Logger      *slog.Logger
	Events      EventPublisher
}

// SendRequest is an outgoing payment. AmountSats may be nil when the
// destination encodes an amount.
type SendRequest struct {
	Destination string
	AmountSats  *int64
}

// SendResult is a successfully executed payment.
type SendResult struct {
	PaymentID  string
	AmountSats int64
	Status     string
}

// Orchestrator runs the send state machine: resolve amount, reserve budget,
// execute, and release the reservation if execution fails.
type Orchestrator struct {
	wallet      wallet.Wallet
	ledger      Ledger
	sendTimeout time.Duration
	logger      *slog.Logger
	events      EventPublisher
}

func NewOrchestrator(w wallet.Wallet, ledger Ledger, cfg Config) *Orchestrator {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		wallet:      w,
		ledger:      ledger,
		sendTimeout: cfg.SendTimeout,
		logger:      cfg.Logger,
		events:      cfg.Events,
	}
}

// Send pays req.Destination on behalf of key.
func (o *Orchestrator) Send(ctx context.Context, key *model.APIKey, req SendRequest) (*SendResult, error) {
	log := o.logger.With("api_key_id", key.ID)

	prepared, err := o.wallet.PrepareSendPayment(ctx, wallet.PrepareRequest{
		Destination: req.Destination,
		AmountSats:  req.AmountSats,
	})
	if err != nil {
		metrics.Payments.WithLabelValues("prepare_failed").Inc()
		if errors.Is(err, wallet.ErrInvalidDestination) {
			return nil, err
		}
		log.Warn("prepare payment failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPrepareFailed, err)
	}

	var amount int64
	if req.AmountSats != nil {
		amount = *req.AmountSats
	} else {
		amount = prepared.AmountSats
	}
	if amount <= 0 {
		metrics.Payments.WithLabelValues("amount_unresolved").Inc()
		return nil, ErrAmountUnresolved
	}
	log.Debug("payment amount resolved", "amount_sats", amount)

	res, err := o.ledger.Reserve(ctx, key, amount)
	if err != nil {
		metrics.Payments.WithLabelValues("rejected").Inc()
		return nil, err
	}

	// From here on the reservation is committed; the caller going away
	// must not stop execution or its compensation.
	execCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.sendTimeout)
	defer cancel()

	start := time.Now()
	sent, err := o.wallet.SendPayment(execCtx, prepared)
	elapsed := time.Since(start)

	if err != nil {
		metrics.SendDuration.WithLabelValues("failed").Observe(elapsed.Seconds())
		metrics.Payments.WithLabelValues("failed").Inc()

		execErr := &ExecutionError{Err: err}
		if res != nil {
			execErr.ReservationID = res.ID
			relCtx, relCancel := context.WithTimeout(context.WithoutCancel(ctx), o.sendTimeout)
			execErr.ReleaseErr = o.ledger.Release(relCtx, res.ID)
			relCancel()
		}
		log.Error("payment execution failed",
			"error", err,
			"amount_sats", amount,
			"reservation_id", execErr.ReservationID,
			"release_error", execErr.ReleaseErr,
			"duration_ms", elapsed.Milliseconds())
		o.publish(model.EventPaymentFailed, key, amount, map[string]any{"error": err.Error()})
		return nil, execErr
	}

	metrics.SendDuration.WithLabelValues("sent").Observe(elapsed.Seconds())
	metrics.Payments.WithLabelValues("sent").Inc()
	log.Info("payment sent", "payment_id", sent.PaymentID, "amount_sats", amount,
		"duration_ms", elapsed.Milliseconds())
	o.publish(model.EventPaymentSent, key, amount, map[string]any{"payment_id": sent.PaymentID})

	return &SendResult{PaymentID: sent.PaymentID, AmountSats: amount, Status: "sent"}, nil
}

// Receive creates an invoice.
func (o *Orchestrator) Receive(ctx context.Context, req wallet.ReceiveRequest) (*wallet.Invoice, error) {
	return o.wallet.ReceivePayment(ctx, req)
}

// Balance returns the wallet balance snapshot.
func (o *Orchestrator) Balance(ctx context.Context) (*wallet.Info, error) {
	return o.wallet.GetInfo(ctx)
}

// Payments lists wallet history.
func (o *Orchestrator) Payments(ctx context.Context, offset, limit int) ([]wallet.Payment, error) {
	return o.wallet.ListPayments(ctx, wallet.ListPaymentsRequest{Offset: offset, Limit: limit})
}

func (o *Orchestrator) publish(typ string, key *model.APIKey, amount int64, data map[string]any) {
	if o.events == nil {
		return
	}
	o.events.Publish(model.Event{
		ID:         uuid.Must(uuid.NewV7()).String(),
		Type:       typ,
		APIKeyID:   key.ID,
		AmountSats: amount,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	})
}
