package service

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no credential was presented or it does not
	// resolve to an active key.
	ErrUnauthenticated = errors.New("invalid or missing API key")

	// ErrSelfRevoke is returned when a key tries to revoke itself.
	ErrSelfRevoke = errors.New("cannot revoke your own API key")
)

// ForbiddenError is returned when a resolved key lacks a permission.
type ForbiddenError struct {
	Permission string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("API key lacks %q permission", e.Permission)
}

// ValidationError reports a rejected request before any side effect.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
