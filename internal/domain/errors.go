package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Lookup errors
	ErrUserNotFound     = errors.New("user not found")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrBookingNotFound  = errors.New("booking not found")
	ErrSeatNotFound     = errors.New("seat not found")
	ErrBusNotFound      = errors.New("bus not found")
	ErrRouteNotFound    = errors.New("route not found")

	// Seat inventory errors
	ErrSeatUnavailable      = errors.New("one or more seats are unavailable")
	ErrAlreadyGenerated     = errors.New("seats already generated for schedule")
	ErrInvalidLayout        = errors.New("layout does not match bus capacity")
	ErrInvalidSeatSelection = errors.New("at least one seat must be selected")

	// Booking and payment errors
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrAmountMismatch = errors.New("paid amount does not match booking amount")
	ErrInvalidState   = errors.New("booking is not in a valid state for this operation")

	// Validation errors
	ErrInvalidUserID     = errors.New("invalid user id")
	ErrInvalidScheduleID = errors.New("invalid schedule id")
	ErrInvalidBookingID  = errors.New("invalid booking id")
	ErrInvalidIntentID   = errors.New("invalid payment intent id")
	ErrInvalidPayload    = errors.New("invalid webhook payload")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
)

// GatewayError wraps a failure talking to the payment provider. The booking
// stays PENDING and the caller may retry.
type GatewayError struct {
	Gateway string
	Op      string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// NewGatewayError wraps err, returning nil for a nil err
func NewGatewayError(gateway, op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return err
	}
	return &GatewayError{Gateway: gateway, Op: op, Err: err}
}

// PaymentStatusError reports a payment intent that has not succeeded
type PaymentStatusError struct {
	IntentID string
	Status   string
}

func (e *PaymentStatusError) Error() string {
	return fmt.Sprintf("payment not successful: intent %s has status %q", e.IntentID, e.Status)
}

// UnappliedPaymentError reports a payment the provider captured that could
// not confirm its booking. The charge is kept as a REFUND_DUE payment.
type UnappliedPaymentError struct {
	BookingID string
	IntentID  string
	Amount    int64
	// Recorded is true for the call that stored the REFUND_DUE payment
	Recorded bool
	Err      error
}

func (e *UnappliedPaymentError) Error() string {
	return fmt.Sprintf("payment %s captured but not applied to booking %s: %v", e.IntentID, e.BookingID, e.Err)
}

func (e *UnappliedPaymentError) Unwrap() error { return e.Err }

// WebhookProcessingError is logged when a webhook could not be applied. It is
// never returned to the provider.
type WebhookProcessingError struct {
	EventType string
	IntentID  string
	Err       error
}

func (e *WebhookProcessingError) Error() string {
	return fmt.Sprintf("webhook %s for intent %s: %v", e.EventType, e.IntentID, e.Err)
}

func (e *WebhookProcessingError) Unwrap() error { return e.Err }

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrBookingNotFound) ||
		errors.Is(err, ErrSeatNotFound) ||
		errors.Is(err, ErrBusNotFound) ||
		errors.Is(err, ErrRouteNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidScheduleID) ||
		errors.Is(err, ErrInvalidBookingID) ||
		errors.Is(err, ErrInvalidIntentID) ||
		errors.Is(err, ErrInvalidSeatSelection) ||
		errors.Is(err, ErrInvalidLayout) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPayload)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSeatUnavailable) ||
		errors.Is(err, ErrAlreadyGenerated) ||
		errors.Is(err, ErrAmountMismatch) ||
		errors.Is(err, ErrInvalidState)
}

// IsGatewayError checks if the error came from the payment provider
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

// IsPaymentNotSucceeded checks if the error reports an unpaid intent
func IsPaymentNotSucceeded(err error) bool {
	var pe *PaymentStatusError
	return errors.As(err, &pe)
}

// IsUnappliedPayment checks if the error reports a captured payment that
// needs a refund
func IsUnappliedPayment(err error) bool {
	var ue *UnappliedPaymentError
	return errors.As(err, &ue)
}
