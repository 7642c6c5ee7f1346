package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a group, or a line inside a group, does not exist.
	ErrNotFound = errors.New("not found")

	// ErrGroupClosed is returned when a line edit targets a group whose state is
	// completado or pagado.
	ErrGroupClosed = errors.New("order group is closed")

	// ErrInvalidTransition is returned when a state update would move a group
	// backwards in its lifecycle.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ValidationError reports a missing or invalid request field. It is never
// retried and never reaches the store.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransientError wraps store failures that a caller may safely retry as a whole
// operation: lock timeouts, deadlocks, serialization failures, lost connections.
// The failed transaction has already been rolled back when one is returned.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient store error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
