package model

import "time"

// ErrorResponse is the standard envelope for error responses.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned by the API.
type ErrorDetail struct {
	Code    int                    `json:"code"`
	Message string                 `json:"message"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// BalanceResponse is returned by GET /balance.
type BalanceResponse struct {
	BalanceSats         int64 `json:"balance_sats"`
	PendingIncomingSats int64 `json:"pending_incoming_sats"`
	PendingOutgoingSats int64 `json:"pending_outgoing_sats"`
	MaxPayableSats      int64 `json:"max_payable_sats"`
	MaxReceivableSats   int64 `json:"max_receivable_sats"`
}

// ReceiveResponse is returned by POST /receive.
type ReceiveResponse struct {
	PaymentRequest string `json:"payment_request"`
	FeeSats        int64  `json:"fee_sats"`
}

// SendResponse is returned by POST /send.
type SendResponse struct {
	PaymentID  string `json:"payment_id"`
	AmountSats int64  `json:"amount_sats"`
	Status     string `json:"status"`
}

// PaymentView is one entry of GET /payments.
type PaymentView struct {
	ID          string    `json:"id"`
	Direction   string    `json:"direction"`
	Status      string    `json:"status"`
	AmountSats  int64     `json:"amount_sats"`
	FeeSats     int64     `json:"fee_sats"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PaymentsResponse is returned by GET /payments.
type PaymentsResponse struct {
	Payments []PaymentView `json:"payments"`
}

// CreateKeyResponse is returned exactly once, when a key is created. It is
// the only response that ever carries the raw secret.
type CreateKeyResponse struct {
	Key           string    `json:"key"`
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Permissions   []string  `json:"permissions"`
	BudgetSats    *int64    `json:"budget_sats"`
	BudgetPeriod  *string   `json:"budget_period"`
	MaxAmountSats *int64    `json:"max_amount_sats"`
	CreatedAt     time.Time `json:"created_at"`
}

// KeyView is a listed key. It never includes the hash or secret.
type KeyView struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Permissions   []string  `json:"permissions"`
	BudgetSats    *int64    `json:"budget_sats"`
	BudgetPeriod  *string   `json:"budget_period"`
	MaxAmountSats *int64    `json:"max_amount_sats"`
	SpentSats     *int64    `json:"spent_sats,omitempty"`
	RemainingSats *int64    `json:"remaining_sats,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// BudgetStatus describes a key's limits and current-period consumption.
type BudgetStatus struct {
	APIKeyID      string     `json:"api_key_id"`
	MaxAmountSats *int64     `json:"max_amount_sats"`
	BudgetSats    *int64     `json:"budget_sats"`
	BudgetPeriod  *string    `json:"budget_period"`
	PeriodStart   *time.Time `json:"period_start,omitempty"`
	SpentSats     int64      `json:"spent_sats"`
	RemainingSats *int64     `json:"remaining_sats"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status          string    `json:"status"`
	WalletConnected bool      `json:"wallet_connected"`
	Timestamp       time.Time `json:"timestamp"`
}

// DetailResponse carries a single human-readable confirmation.
type DetailResponse struct {
	Detail string `json:"detail"`
}

// KeyViewFrom builds the list representation of a key.
func KeyViewFrom(k *APIKey) KeyView {
	return KeyView{
		ID:            k.ID,
		Name:          k.Name,
		Permissions:   []string(k.Permissions),
		BudgetSats:    k.BudgetSats,
		BudgetPeriod:  k.BudgetPeriod,
		MaxAmountSats: k.MaxAmountSats,
		CreatedAt:     k.CreatedAt,
	}
}
