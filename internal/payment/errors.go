package payment

import "errors"

var (
	// ErrAmountUnresolved means neither the request nor the prepared
	// payment carried a positive amount.
	ErrAmountUnresolved = errors.New("could not determine payment amount")

	// ErrPrepareFailed means the wallet could not price the payment. No
	// reservation was made.
	ErrPrepareFailed = errors.New("failed to prepare payment")
)

// ExecutionFailedMessage is reported whenever a reserved payment fails or
// times out. The payment may still have gone through.
const ExecutionFailedMessage = "Payment failed. Budget reservation released. Verify payment status before retrying."

// ExecutionError is a wallet failure after the budget reservation was
// committed. The reservation has been released by the time it is returned.
type ExecutionError struct {
	ReservationID string
	// ReleaseErr is set when compensation itself failed.
	ReleaseErr error
	Err        error
}

func (e *ExecutionError) Error() string { return ExecutionFailedMessage }

func (e *ExecutionError) Unwrap() error { return e.Err }
