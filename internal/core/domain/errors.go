package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("stock not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrVersionConflict   = errors.New("optimistic lock conflict")
	ErrRetryExhausted    = errors.New("retry attempts exhausted")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidQuantity   = errors.New("quantity must not be negative")
	ErrDuplicateRequest  = errors.New("duplicate request")
)

// RetryExhaustedError carries the last transient failure seen before the
// retry budget ran out.
type RetryExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrRetryExhausted, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Err }

func (e *RetryExhaustedError) Is(target error) bool {
	return target == ErrRetryExhausted
}

// IsTransient reports whether err is a conflict that a fresh attempt may resolve.
func IsTransient(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// ValidateAmount rejects non-positive decrements.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	return nil
}

// ValidateQuantity rejects negative initial quantities.
func ValidateQuantity(quantity int64) error {
	if quantity < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	return nil
}
