package repository

import (
	"context"
	"time"

	"github.com/moshiverse/busmate/internal/domain"
)

// SeatRepository defines data access for seat inventory
type SeatRepository interface {
	// CreateBatch inserts the full seat set of a schedule. A second call for
	// the same schedule fails with domain.ErrAlreadyGenerated.
	CreateBatch(ctx context.Context, scheduleID string, seats []domain.SeatPosition) (int, error)

	// CountBySchedule counts the generated seats of a schedule
	CountBySchedule(ctx context.Context, scheduleID string) (int, error)

	// ListBySchedule lists seats ordered by row then column
	ListBySchedule(ctx context.Context, scheduleID string) ([]*domain.Seat, error)

	// Transition moves every listed seat whose status is one of from to the
	// to status in a single conditional update and returns the matched count
	Transition(ctx context.Context, scheduleID string, seatNumbers []string, from []domain.SeatStatus, to domain.SeatStatus) (int, error)

	// Summary counts the seats of a schedule per status
	Summary(ctx context.Context, scheduleID string) (*domain.SeatSummary, error)

	// DeleteBySchedules removes the seats of the given schedules
	DeleteBySchedules(ctx context.Context, scheduleIDs []string) (int, error)
}

// BookingRepository defines data access for bookings and their seat links
type BookingRepository interface {
	// Create persists a booking together with its seat links
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by its ID
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// GetForUpdate retrieves a booking and locks it until the transaction ends
	GetForUpdate(ctx context.Context, id string) (*domain.Booking, error)

	// GetByPaymentReference retrieves the booking carrying ref
	GetByPaymentReference(ctx context.Context, ref string) (*domain.Booking, error)

	// Update writes the mutable booking fields
	Update(ctx context.Context, booking *domain.Booking) error

	// DeleteLinks removes the seat links of a booking
	DeleteLinks(ctx context.Context, bookingID string) error

	// ListByUser lists a user's bookings, newest first, with the total count
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, int, error)

	// List lists all bookings, optionally filtered by status, with the total count
	List(ctx context.Context, status domain.BookingStatus, limit, offset int) ([]*domain.Booking, int, error)

	// ListExpiredHolds lists PENDING bookings created before cutoff that have
	// no successful payment
	ListExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error)

	// DeleteBySchedules removes bookings and seat links of the given schedules
	DeleteBySchedules(ctx context.Context, scheduleIDs []string) (int, error)
}

// PaymentRepository defines data access for recorded payments
type PaymentRepository interface {
	// Record stores a payment keyed by (provider, provider_ref). It reports
	// false when the key already exists. A captured record (SUCCESS or
	// REFUND_DUE) upgrades an earlier PENDING or FAILED row for the same key.
	Record(ctx context.Context, payment *domain.Payment) (bool, error)

	// GetByProviderRef retrieves the payment for a provider reference, or
	// nil when none was recorded
	GetByProviderRef(ctx context.Context, provider, ref string) (*domain.Payment, error)

	// ListByBooking lists payments recorded against a booking
	ListByBooking(ctx context.Context, bookingID string) ([]*domain.Payment, error)

	// DeleteBySchedules removes payments of bookings on the given schedules
	DeleteBySchedules(ctx context.Context, scheduleIDs []string) (int, error)
}

// CatalogRepository reads master data and maintains the one counter the
// booking ledger owns
type CatalogRepository interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	GetSchedule(ctx context.Context, id string) (*domain.Schedule, error)

	// AdjustAvailableSeats adds delta to the schedule's available counter,
	// never going below zero
	AdjustAvailableSeats(ctx context.Context, scheduleID string, delta int) error

	// SetAvailableSeats overwrites the available counter
	SetAvailableSeats(ctx context.Context, scheduleID string, n int) error

	ScheduleIDsByBus(ctx context.Context, busID string) ([]string, error)
	ScheduleIDsByRoute(ctx context.Context, routeID string) ([]string, error)

	DeleteSchedules(ctx context.Context, ids []string) (int, error)
	DeleteBus(ctx context.Context, id string) error
	DeleteRoute(ctx context.Context, id string) error
}

// Repositories bundles the repositories of one unit of work
type Repositories interface {
	Seats() SeatRepository
	Bookings() BookingRepository
	Payments() PaymentRepository
	Catalog() CatalogRepository
}

// Store gives non-transactional access through Repositories and runs
// transactions through InTx. The transaction commits when fn returns nil.
type Store interface {
	Repositories
	InTx(ctx context.Context, fn func(tx Repositories) error) error
}
