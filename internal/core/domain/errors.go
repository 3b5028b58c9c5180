package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrStockConflict       = errors.New("stock conflict")
	ErrEmptyCart           = errors.New("empty cart")
	ErrLimitReached        = errors.New("limit reached")
	ErrOutOfStock          = errors.New("out of stock")
	ErrValidation          = errors.New("validation error")
	ErrAuditLogWriteFailed = errors.New("audit log write failed")
	ErrNotFound            = errors.New("not found")
	ErrDuplicateRequest    = errors.New("duplicate request")
	ErrVersionConflict     = errors.New("version conflict")
)

// ValidationError names the offending field. It matches ErrValidation.
type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StockError reports which ledger key rejected a mutation.
type StockError struct {
	Key       StockKey
	Available int
	Requested int
	Err       error
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%s for %s: available %d, requested %d", e.Err, e.Key, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error {
	return e.Err
}

// TransitionError explains why a workflow action was refused.
type TransitionError struct {
	TransferID string
	Action     string
	From       TransferStatus
	Reason     string
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("%s: cannot %s transfer %s from %s", ErrInvalidTransition, e.Action, e.TransferID, e.From)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
