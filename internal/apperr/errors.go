// Package apperr holds the error taxonomy shared by stores, services and handlers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed or missing input. Never retried.
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	// ErrForbidden marks a resource that exists but is owned by someone else.
	ErrForbidden = errors.New("forbidden")
	ErrConflict  = errors.New("conflict")
	// ErrStorage marks an unexpected fault talking to the backing store.
	ErrStorage = errors.New("storage fault")
	// ErrUnavailable marks an upstream collaborator (payment provider, courier) that failed or timed out.
	ErrUnavailable = errors.New("upstream unavailable")
)

// Storage wraps err so that errors.Is(err, ErrStorage) holds while keeping the cause.
func Storage(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// Validation returns an ErrValidation carrying a human readable message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Unavailable wraps err so that errors.Is(err, ErrUnavailable) holds while keeping the cause.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Retryable reports whether err is a transient fault worth retrying.
func Retryable(err error) bool {
	return errors.Is(err, ErrStorage) || errors.Is(err, ErrUnavailable)
}
