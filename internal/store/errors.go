package store

import "errors"

// ErrNotFound is returned when a requested resource does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrUnavailable means no connection or lock could be obtained within the
// acquire timeout. Callers should retry later.
var ErrUnavailable = errors.New("store unavailable")
