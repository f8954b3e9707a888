package model

import (
	"slices"
	"time"

	"github.com/lib/pq"
)

// Permission names an operation class an API key may perform.
type Permission string

const (
	PermBalance Permission = "balance"
	PermReceive Permission = "receive"
	PermSend    Permission = "send"
	PermAdmin   Permission = "admin"
)

// AllPermissions lists every permission the gateway understands.
var AllPermissions = []Permission{PermBalance, PermReceive, PermSend, PermAdmin}

// SelfServicePermissions are the permissions grantable through POST /keys.
// Admin keys are only minted by the provisioning CLI.
var SelfServicePermissions = []Permission{PermBalance, PermReceive, PermSend}

// DefaultPermissions are granted when a create request names none.
var DefaultPermissions = []Permission{PermBalance, PermReceive}

// ValidPermission reports whether p is a known permission name.
func ValidPermission(p string) bool {
	return slices.Contains(AllPermissions, Permission(p))
}

// BudgetPeriod is the window a key's budget resets on.
type BudgetPeriod string

const (
	PeriodDaily   BudgetPeriod = "daily"
	PeriodWeekly  BudgetPeriod = "weekly"
	PeriodMonthly BudgetPeriod = "monthly"
)

// ValidPeriod reports whether p is one of daily, weekly, monthly.
func ValidPeriod(p string) bool {
	switch BudgetPeriod(p) {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// APIKey is a credential record. The raw secret is never stored; only its
// SHA-256 hex digest is persisted.
type APIKey struct {
	ID            string         `json:"id" db:"id"`
	KeyHash       string         `json:"-" db:"key_hash"` // SHA-256 hash, never expose
	Name          string         `json:"name" db:"name"`
	Permissions   pq.StringArray `json:"permissions" db:"permissions"`
	MaxAmountSats *int64         `json:"max_amount_sats" db:"max_amount_sats"`
	BudgetSats    *int64         `json:"budget_sats" db:"budget_sats"`
	BudgetPeriod  *string        `json:"budget_period" db:"budget_period"`
	IsActive      bool           `json:"is_active" db:"is_active"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
}

// HasPermission reports whether the key grants p.
func (k *APIKey) HasPermission(p Permission) bool {
	return slices.Contains(k.Permissions, string(p))
}

// HasBudget reports whether the key carries a rolling spend limit.
func (k *APIKey) HasBudget() bool {
	return k.BudgetSats != nil && k.BudgetPeriod != nil
}

// Period returns the key's budget period, or "" when it has none.
func (k *APIKey) Period() BudgetPeriod {
	if k.BudgetPeriod == nil {
		return ""
	}
	return BudgetPeriod(*k.BudgetPeriod)
}
