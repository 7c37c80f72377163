package dto

import "github.com/moshiverse/busmate/internal/gateway"

// CreatePaymentIntentRequest opens a payment intent for a booking
type CreatePaymentIntentRequest struct {
	BookingID   string `json:"booking_id" binding:"required"`
	Description string `json:"description,omitempty" binding:"max=255"`
}

// IntentStatusResponse is the gateway's view of an intent
type IntentStatusResponse struct {
	IntentID   string `json:"intent_id"`
	Status     string `json:"status"`
	PaidAmount int64  `json:"paid_amount"`
	PaymentID  string `json:"payment_id,omitempty"`
	BookingID  string `json:"booking_id,omitempty"`
	Succeeded  bool   `json:"succeeded"`
}

// FromIntentStatus converts a gateway status
func FromIntentStatus(s *gateway.IntentStatus) *IntentStatusResponse {
	return &IntentStatusResponse{
		IntentID:   s.IntentID,
		Status:     s.Status,
		PaidAmount: s.PaidAmount,
		PaymentID:  s.PaymentID,
		BookingID:  s.Metadata["booking_id"],
		Succeeded:  s.Succeeded(),
	}
}
