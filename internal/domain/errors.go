package domain

import (
	"errors"
	"fmt"
)

// Intent and business-rule rejections. Never retried.
var (
	ErrValidation         = errors.New("invalid trade intent")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrNoSuchPosition     = errors.New("no position for symbol")
)

// Transient failures, retried by the settlement engine before being surfaced.
var (
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrPersistence         = errors.New("persistence failure")
)

var (
	ErrTimeout          = errors.New("timed out waiting for account")
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountExists    = errors.New("account already exists")
	ErrTradeNotFound    = errors.New("trade not found")
	ErrPositionNotFound = errors.New("position not found")
	ErrAlreadySettled   = errors.New("trade already settled")

	// ErrVersionConflict is returned by stores when the expected account version moved.
	ErrVersionConflict = errors.New("account version conflict")
)

// ValidationError describes a malformed field of a trade intent.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError returns a *ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IsBusinessRejection reports whether err is a deterministic business-rule rejection.
func IsBusinessRejection(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientShares) ||
		errors.Is(err, ErrNoSuchPosition)
}

// IsRetryable reports whether a settlement may be retried with a fresh snapshot.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict) ||
		errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrPersistence)
}
