package budget

import "github.com/glowcloud/glow/internal/store"

// ErrStoreUnavailable means a connection or the per-key lock could not be
// obtained in time. Callers should retry later.
var ErrStoreUnavailable = store.ErrUnavailable

// RejectedError is a limit or budget refusal. No ledger entry was written.
type RejectedError struct {
	Reason string
	// RemainingSats is set for budget refusals only.
	RemainingSats *int64
}

func (e *RejectedError) Error() string { return e.Reason }
