package domain

import (
	"strings"
	"time"
)

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "PENDING"
	BookingStatusConfirmed BookingStatus = "CONFIRMED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

// IsValid checks if the status is a valid BookingStatus
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of BookingStatus
func (s BookingStatus) String() string {
	return string(s)
}

// DefaultCurrency is used when a booking does not carry one
const DefaultCurrency = "PHP"

// Booking represents a booking entity. Amount is in minor units (centavos).
type Booking struct {
	ID               string        `json:"id"`
	UserID           string        `json:"user_id"`
	ScheduleID       string        `json:"schedule_id"`
	Amount           int64         `json:"amount"`
	Currency         string        `json:"currency"`
	Status           BookingStatus `json:"status"`
	PaymentReference string        `json:"payment_reference,omitempty"`
	TicketToken      string        `json:"ticket_token,omitempty"`
	SeatNumbers      []string      `json:"seat_numbers"`
	ConfirmedAt      *time.Time    `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time    `json:"cancelled_at,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// BookingSeatLink associates a live booking with one seat
type BookingSeatLink struct {
	BookingID  string `json:"booking_id"`
	ScheduleID string `json:"schedule_id"`
	SeatNumber string `json:"seat_number"`
}

// Validate validates the fields required to persist a new booking
func (b *Booking) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return ErrInvalidBookingID
	}
	if strings.TrimSpace(b.UserID) == "" {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(b.ScheduleID) == "" {
		return ErrInvalidScheduleID
	}
	if len(b.SeatNumbers) == 0 {
		return ErrInvalidSeatSelection
	}
	if b.Amount < 0 {
		return ErrInvalidAmount
	}
	if !b.Status.IsValid() {
		return ErrInvalidState
	}
	return nil
}

// IsPending checks if the booking is awaiting payment
func (b *Booking) IsPending() bool {
	return b.Status == BookingStatusPending
}

// IsConfirmed checks if the booking is in confirmed status
func (b *Booking) IsConfirmed() bool {
	return b.Status == BookingStatusConfirmed
}

// IsCancelled checks if the booking is in cancelled status
func (b *Booking) IsCancelled() bool {
	return b.Status == BookingStatusCancelled
}

// IsConfirmedWith reports whether the booking was already confirmed by ref
func (b *Booking) IsConfirmedWith(ref string) bool {
	return b.IsConfirmed() && ref != "" && b.PaymentReference == ref
}

// Confirm moves a PENDING booking to CONFIRMED
func (b *Booking) Confirm(ref string, at time.Time) error {
	if !b.IsPending() {
		return ErrInvalidState
	}
	b.Status = BookingStatusConfirmed
	b.PaymentReference = ref
	b.ConfirmedAt = &at
	b.UpdatedAt = at
	return nil
}

// Cancel moves a PENDING booking to CANCELLED
func (b *Booking) Cancel(at time.Time) error {
	if !b.IsPending() {
		return ErrInvalidState
	}
	b.Status = BookingStatusCancelled
	b.CancelledAt = &at
	b.UpdatedAt = at
	return nil
}

// HoldExpired reports whether a PENDING booking has outlived ttl at now
func (b *Booking) HoldExpired(ttl time.Duration, now time.Time) bool {
	return ttl > 0 && b.IsPending() && now.Sub(b.CreatedAt) >= ttl
}

// Links returns the seat links of the booking
func (b *Booking) Links() []BookingSeatLink {
	links := make([]BookingSeatLink, len(b.SeatNumbers))
	for i, n := range b.SeatNumbers {
		links[i] = BookingSeatLink{BookingID: b.ID, ScheduleID: b.ScheduleID, SeatNumber: n}
	}
	return links
}
