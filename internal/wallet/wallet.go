// Package wallet defines the custodial wallet capability the gateway fronts
// and manages its connection lifecycle.
package wallet

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidDestination means the wallet refused to prepare a payment to
// the given destination.
var ErrInvalidDestination = errors.New("invalid payment destination")

// ErrNotConnected is returned when the wallet cannot be reached.
var ErrNotConnected = errors.New("wallet not connected")

// Info is the wallet balance snapshot.
type Info struct {
	BalanceSats         int64 `json:"balance_sats"`
	PendingIncomingSats int64 `json:"pending_incoming_sats"`
	PendingOutgoingSats int64 `json:"pending_outgoing_sats"`
	MaxPayableSats      int64 `json:"max_payable_sats"`
	MaxReceivableSats   int64 `json:"max_receivable_sats"`
}

// ReceiveRequest asks for a BOLT11 invoice. A nil amount creates an
// any-amount invoice.
type ReceiveRequest struct {
	AmountSats  *int64 `json:"amount_sats,omitempty"`
	Description string `json:"description"`
}

// Invoice is a payment request the wallet can be paid on.
type Invoice struct {
	PaymentRequest string `json:"payment_request"`
	FeeSats        int64  `json:"fee_sats"`
}

// PrepareRequest asks the wallet to price a payment without sending it.
type PrepareRequest struct {
	Destination string `json:"destination"`
	AmountSats  *int64 `json:"amount_sats,omitempty"`
}

// PreparedPayment is an opaque, priced payment ready for SendPayment.
// AmountSats is zero when the wallet could not determine an amount.
type PreparedPayment struct {
	Destination string `json:"destination"`
	AmountSats  int64  `json:"amount_sats"`
	FeeSats     int64  `json:"fee_sats"`
	Handle      string `json:"handle,omitempty"`
}

// SendResult describes an executed payment.
type SendResult struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

// ListPaymentsRequest pages through payment history, newest first.
type ListPaymentsRequest struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// Payment is one entry of the wallet's history.
type Payment struct {
	ID          string    `json:"id"`
	Direction   string    `json:"direction"`
	Status      string    `json:"status"`
	AmountSats  int64     `json:"amount_sats"`
	FeeSats     int64     `json:"fee_sats"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Wallet is the custodial wallet capability.
type Wallet interface {
	GetInfo(ctx context.Context) (*Info, error)
	ReceivePayment(ctx context.Context, req ReceiveRequest) (*Invoice, error)
	PrepareSendPayment(ctx context.Context, req PrepareRequest) (*PreparedPayment, error)
	SendPayment(ctx context.Context, p *PreparedPayment) (*SendResult, error)
	ListPayments(ctx context.Context, req ListPaymentsRequest) ([]Payment, error)
	Disconnect(ctx context.Context) error
}
