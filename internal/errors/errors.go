package errors

import (
	"errors"
	"fmt"
)

// Common error types for the farm console
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("not authenticated")

	// Token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Request errors
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")

	// Connectivity errors
	ErrNetwork = errors.New("network unavailable")
	ErrBackend = errors.New("backend error")

	// Orchestration errors
	ErrBusy      = errors.New("operation already in progress")
	ErrCancelled = errors.New("operation cancelled")
	ErrQueued    = errors.New("write queued for replay")

	// Queue errors
	ErrReplayInProgress = errors.New("replay already in progress")
	ErrPendingNotFound  = errors.New("pending write not found")

	// General errors
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
