// Package wallettest provides an in-memory Wallet for tests and local
// development.
package wallettest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/glowcloud/glow/internal/wallet"
)

// Fake is a scriptable in-memory wallet. Zero value is ready to use; the
// hook fields override the default behavior when set.
type Fake struct {
	Info wallet.Info

	// InvoiceAmounts maps a destination to the amount encoded in it.
	InvoiceAmounts map[string]int64

	PrepareFunc    func(ctx context.Context, req wallet.PrepareRequest) (*wallet.PreparedPayment, error)
	SendFunc       func(ctx context.Context, p *wallet.PreparedPayment) (*wallet.SendResult, error)
	DisconnectFunc func(ctx context.Context) error

	mu           sync.Mutex
	payments     []wallet.Payment
	sendCalls    int
	disconnected bool
}

var _ wallet.Wallet = (*Fake)(nil)

func (f *Fake) GetInfo(ctx context.Context) (*wallet.Info, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := f.Info
	return &info, nil
}

func (f *Fake) ReceivePayment(ctx context.Context, req wallet.ReceiveRequest) (*wallet.Invoice, error) {
	amount := int64(0)
	if req.AmountSats != nil {
		amount = *req.AmountSats
	}
	return &wallet.Invoice{
		PaymentRequest: fmt.Sprintf("lnbc%dn1fake%s", amount, uuid.NewString()[:8]),
		FeeSats:        0,
	}, nil
}

func (f *Fake) PrepareSendPayment(ctx context.Context, req wallet.PrepareRequest) (*wallet.PreparedPayment, error) {
	if f.PrepareFunc != nil {
		return f.PrepareFunc(ctx, req)
	}
	p := &wallet.PreparedPayment{Destination: req.Destination, FeeSats: 1}
	if req.AmountSats != nil {
		p.AmountSats = *req.AmountSats
	} else if amt, ok := f.InvoiceAmounts[req.Destination]; ok {
		p.AmountSats = amt
	}
	return p, nil
}

func (f *Fake) SendPayment(ctx context.Context, p *wallet.PreparedPayment) (*wallet.SendResult, error) {
	f.mu.Lock()
	f.sendCalls++
	f.mu.Unlock()

	if f.SendFunc != nil {
		return f.SendFunc(ctx, p)
	}

	id := uuid.NewString()
	f.mu.Lock()
	f.payments = append(f.payments, wallet.Payment{
		ID:         id,
		Direction:  "send",
		Status:     "completed",
		AmountSats: p.AmountSats,
		FeeSats:    p.FeeSats,
		CreatedAt:  time.Now().UTC(),
	})
	f.Info.BalanceSats -= p.AmountSats + p.FeeSats
	f.mu.Unlock()
	return &wallet.SendResult{PaymentID: id, Status: "completed"}, nil
}

func (f *Fake) ListPayments(ctx context.Context, req wallet.ListPaymentsRequest) ([]wallet.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]wallet.Payment, 0, len(f.payments))
	for i := len(f.payments) - 1; i >= 0; i-- {
		out = append(out, f.payments[i])
	}
	if req.Offset >= len(out) {
		return []wallet.Payment{}, nil
	}
	out = out[req.Offset:]
	if req.Limit > 0 && req.Limit < len(out) {
		out = out[:req.Limit]
	}
	return out, nil
}

func (f *Fake) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	f.disconnected = true
	f.mu.Unlock()
	if f.DisconnectFunc != nil {
		return f.DisconnectFunc(ctx)
	}
	return nil
}

// SendCalls reports how many times SendPayment was invoked.
func (f *Fake) SendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

// Disconnected reports whether Disconnect was called.
func (f *Fake) Disconnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}
