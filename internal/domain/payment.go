package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the status of a recorded payment
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"

	// PaymentStatusRefundDue is money the provider captured that could not
	// be applied to its booking
	PaymentStatusRefundDue PaymentStatus = "REFUND_DUE"
)

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// Gateway intent statuses the reconciliation engine acts on
const (
	IntentStatusSucceeded = "succeeded"
	IntentStatusFailed    = "failed"
)

// Payment is one provider-side payment recorded against a booking. A payment
// is unique per (Provider, ProviderRef).
type Payment struct {
	ID          string        `json:"id"`
	BookingID   string        `json:"booking_id"`
	Provider    string        `json:"provider"`
	ProviderRef string        `json:"provider_ref"`
	Amount      int64         `json:"amount"`
	Status      PaymentStatus `json:"status"`
	ReceivedAt  time.Time     `json:"received_at"`
}

// NewPayment creates a payment record
func NewPayment(bookingID, provider, providerRef string, amount int64, status PaymentStatus, at time.Time) *Payment {
	return &Payment{
		ID:          uuid.New().String(),
		BookingID:   bookingID,
		Provider:    provider,
		ProviderRef: providerRef,
		Amount:      amount,
		Status:      status,
		ReceivedAt:  at,
	}
}

// IsSuccessful returns true if the payment succeeded
func (p *Payment) IsSuccessful() bool {
	return p.Status == PaymentStatusSuccess
}

// IsCaptured reports whether the provider holds the customer's money
func (p *Payment) IsCaptured() bool {
	return p.Status == PaymentStatusSuccess || p.Status == PaymentStatusRefundDue
}
