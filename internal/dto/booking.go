package dto

import (
	"time"

	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/internal/ticket"
)

// CreateBookingRequest represents request to hold seats
type CreateBookingRequest struct {
	ScheduleID  string   `json:"schedule_id" binding:"required"`
	SeatNumbers []string `json:"seat_numbers" binding:"required,min=1,max=10"`
	// Amount in centavos; must equal price x seats when the schedule is priced
	Amount   int64  `json:"amount" binding:"min=0"`
	Currency string `json:"currency,omitempty" binding:"omitempty,len=3"`
}

// ConfirmBookingRequest represents a manual confirmation
type ConfirmBookingRequest struct {
	PaymentReference string `json:"payment_reference" binding:"required"`
}

// ListBookingsQuery holds pagination and filter query parameters
type ListBookingsQuery struct {
	Page     int    `form:"page,default=1" binding:"min=1"`
	PageSize int    `form:"page_size,default=20" binding:"min=1,max=100"`
	Status   string `form:"status" binding:"omitempty,oneof=PENDING CONFIRMED CANCELLED"`
}

// BookingResponse represents a booking in API response
type BookingResponse struct {
	ID               string     `json:"id"`
	DisplayID        string     `json:"display_id"`
	UserID           string     `json:"user_id"`
	ScheduleID       string     `json:"schedule_id"`
	SeatNumbers      []string   `json:"seat_numbers"`
	Amount           int64      `json:"amount"`
	AmountDisplay    string     `json:"amount_display"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	TicketToken      string     `json:"ticket_token,omitempty"`
	VerificationCode string     `json:"verification_code,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
}

// FromDomain converts domain Booking to BookingResponse
func FromDomain(b *domain.Booking) *BookingResponse {
	resp := &BookingResponse{
		ID:               b.ID,
		DisplayID:        ticket.DisplayID(b.ID),
		UserID:           b.UserID,
		ScheduleID:       b.ScheduleID,
		SeatNumbers:      b.SeatNumbers,
		Amount:           b.Amount,
		AmountDisplay:    ticket.FormatAmount(b.Currency, b.Amount),
		Currency:         b.Currency,
		Status:           b.Status.String(),
		PaymentReference: b.PaymentReference,
		TicketToken:      b.TicketToken,
		CreatedAt:        b.CreatedAt,
		ConfirmedAt:      b.ConfirmedAt,
		CancelledAt:      b.CancelledAt,
	}
	if b.ConfirmedAt != nil {
		resp.VerificationCode = ticket.VerificationCode(b.ID, *b.ConfirmedAt)
	}
	return resp
}

// FromDomainList converts a slice of bookings
func FromDomainList(bookings []*domain.Booking) []*BookingResponse {
	out := make([]*BookingResponse, len(bookings))
	for i, b := range bookings {
		out[i] = FromDomain(b)
	}
	return out
}
