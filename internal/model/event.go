package model

import "time"

// Event types emitted on the notification side-channel.
const (
	EventPaymentSent    = "payment.sent"
	EventPaymentFailed  = "payment.failed"
	EventBudgetRejected = "budget.rejected"
	EventKeyCreated     = "key.created"
	EventKeyRevoked     = "key.revoked"
)

// Event is a fire-and-forget notification about something the gateway did.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	APIKeyID   string         `json:"api_key_id,omitempty"`
	AmountSats int64          `json:"amount_sats,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}
