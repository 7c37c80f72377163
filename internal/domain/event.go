package domain

import "time"

// BookingEventType represents the type of booking event
type BookingEventType string

const (
	BookingEventCreated   BookingEventType = "booking.created"
	BookingEventConfirmed BookingEventType = "booking.confirmed"
	BookingEventCancelled BookingEventType = "booking.cancelled"
	BookingEventExpired   BookingEventType = "booking.expired"
)

const bookingEventVersion = 1

// BookingEvent is published to Kafka after a booking transition commits
type BookingEvent struct {
	EventID    string            `json:"event_id"`
	EventType  BookingEventType  `json:"event_type"`
	OccurredAt time.Time         `json:"occurred_at"`
	Version    int               `json:"version"`
	Data       *BookingEventData `json:"data"`
}

// BookingEventData contains the booking data in the event
type BookingEventData struct {
	BookingID        string     `json:"booking_id"`
	UserID           string     `json:"user_id"`
	ScheduleID       string     `json:"schedule_id"`
	SeatNumbers      []string   `json:"seat_numbers"`
	Amount           int64      `json:"amount"`
	Currency         string     `json:"currency"`
	Status           string     `json:"status"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
}

// NewBookingEvent builds an event from the current booking state
func NewBookingEvent(eventType BookingEventType, b *Booking, eventID string) *BookingEvent {
	return &BookingEvent{
		EventID:    eventID,
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Version:    bookingEventVersion,
		Data: &BookingEventData{
			BookingID:        b.ID,
			UserID:           b.UserID,
			ScheduleID:       b.ScheduleID,
			SeatNumbers:      b.SeatNumbers,
			Amount:           b.Amount,
			Currency:         b.Currency,
			Status:           b.Status.String(),
			PaymentReference: b.PaymentReference,
			CreatedAt:        b.CreatedAt,
			ConfirmedAt:      b.ConfirmedAt,
			CancelledAt:      b.CancelledAt,
		},
	}
}

// Key returns the partition key; events of one booking stay ordered
func (e *BookingEvent) Key() string {
	return e.Data.BookingID
}
