package model

import "time"

// OperationSend is the only operation that currently consumes budget.
const OperationSend = "send"

// BudgetUsage is one reservation against a key's budget. A row exists from
// the moment a reservation commits until it is released; rows that are never
// released form the permanent spend history for their period.
type BudgetUsage struct {
	ID          string    `json:"id" db:"id"`
	APIKeyID    string    `json:"api_key_id" db:"api_key_id"`
	AmountSats  int64     `json:"amount_sats" db:"amount_sats"`
	Operation   string    `json:"operation" db:"operation"`
	PeriodStart time.Time `json:"period_start" db:"period_start"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
