package quota

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("quota: not found")
	ErrAlreadyExists = errors.New("quota: already exists")
	ErrUnauthorized  = errors.New("quota: unauthorized")

	// Ledger errors
	ErrUserNotFound  = errors.New("quota: user not found")
	ErrQuotaExceeded = errors.New("quota: quota exceeded")
	ErrInvalidAmount = errors.New("quota: invalid amount")

	// Catalog errors
	ErrPackageNotFound = errors.New("quota: package not found")

	// Payment errors
	ErrInsufficientPayment = errors.New("quota: insufficient payment")
	ErrRefundFailed        = errors.New("quota: compensating refund failed")

	// Store errors
	ErrConflict    = errors.New("quota: concurrent modification")
	ErrStoreClosed = errors.New("quota: store is closed")
)

// ValidationError represents a rejected input. It matches ErrInvalidAmount
// under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("quota: invalid %s: %s", e.Field, e.Message)
}

// Unwrap returns ErrInvalidAmount.
func (e ValidationError) Unwrap() error { return ErrInvalidAmount }

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPackageNotFound)
}

// IsQuotaError returns true if the error is related to quota limits.
func IsQuotaError(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsRetryable returns true if the operation lost a race with another writer
// and can be retried by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
