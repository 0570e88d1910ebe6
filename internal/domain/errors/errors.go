package errors

import (
	"errors"
	"fmt"
)

var (
	// Order errors
	ErrOrderNotFound          = errors.New("order not found")
	ErrEmptyOrder             = errors.New("order has no items")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrOrderAlreadyTerminal   = errors.New("order already reached a terminal state")

	// Stock errors
	ErrProductNotFound     = errors.New("product not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReservationNotFound = errors.New("stock reservation not found")

	// Balance errors
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrPaymentNotFound     = errors.New("payment not found")

	// Coupon errors
	ErrCouponNotFound      = errors.New("coupon not found")
	ErrCouponExhausted     = errors.New("coupon stock exhausted")
	ErrCouponAlreadyUsed   = errors.New("coupon already used")
	ErrCouponNotIssued     = errors.New("user does not hold this coupon")
	ErrCouponAlreadyIssued = errors.New("coupon already issued to this user")

	// Queue errors
	ErrAlreadyInQueue     = errors.New("user already holds a queue entry for this coupon")
	ErrQueueEntryNotFound = errors.New("queue entry not found")

	// Outbox errors
	ErrMaxRetriesExceeded = errors.New("max retries exceeded")

	// Channel errors
	ErrPublishFailed = errors.New("failed to publish to message channel")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsBusiness reports whether err is a deliberate business failure rather than
// a transport or infrastructure error. Business failures drive the saga to its
// failure path and are never retried.
func IsBusiness(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrCouponExhausted) ||
		errors.Is(err, ErrCouponAlreadyUsed) ||
		errors.Is(err, ErrCouponNotIssued) ||
		errors.Is(err, ErrCouponAlreadyIssued) ||
		errors.Is(err, ErrAlreadyInQueue)
}
