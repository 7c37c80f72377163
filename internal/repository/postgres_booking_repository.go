package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const bookingColumns = `
	b.id, b.user_id, b.schedule_id, b.amount, b.currency, b.status,
	b.payment_reference, b.ticket_token, b.confirmed_at, b.cancelled_at,
	b.created_at, b.updated_at,
	COALESCE((SELECT array_agg(bs.seat_number ORDER BY bs.seat_number)
	          FROM booking_seats bs WHERE bs.booking_id = b.id), '{}')
`

// PostgresBookingRepository implements BookingRepository using PostgreSQL
type PostgresBookingRepository struct {
	db DBTX
}

// NewPostgresBookingRepository creates a new PostgresBookingRepository
func NewPostgresBookingRepository(db DBTX) *PostgresBookingRepository {
	return &PostgresBookingRepository{db: db}
}

// Create inserts the booking row and one link row per seat. The unique index
// on booking_seats(schedule_id, seat_number) rejects a seat already linked to
// a live booking.
func (r *PostgresBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("user_id", booking.UserID),
		attribute.String("schedule_id", booking.ScheduleID),
	)

	query := `
		INSERT INTO bookings (
			id, user_id, schedule_id, amount, currency, status,
			payment_reference, ticket_token, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.UserID,
		booking.ScheduleID,
		booking.Amount,
		booking.Currency,
		booking.Status.String(),
		nullString(booking.PaymentReference),
		nullString(booking.TicketToken),
		booking.CreatedAt,
		booking.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create booking: %w", err)
	}

	links := booking.Links()
	rows := make([][]any, len(links))
	for i, l := range links {
		rows[i] = []any{l.BookingID, l.ScheduleID, l.SeatNumber}
	}
	if _, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"booking_seats"},
		[]string{"booking_id", "schedule_id", "seat_number"},
		pgx.CopyFromRows(rows),
	); err != nil {
		if isUniqueViolation(err) {
			span.SetStatus(codes.Error, "seat already linked")
			return domain.ErrSeatUnavailable
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to link booking seats: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetByID retrieves a booking by its ID
func (r *PostgresBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))
	return r.getOne(ctx, span, `SELECT`+bookingColumns+`FROM bookings b WHERE b.id = $1`, id)
}

// GetForUpdate retrieves a booking with a row lock held until the
// surrounding transaction ends
func (r *PostgresBookingRepository) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_for_update")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", id))
	return r.getOne(ctx, span, `SELECT`+bookingColumns+`FROM bookings b WHERE b.id = $1 FOR UPDATE OF b`, id)
}

// GetByPaymentReference retrieves the newest booking carrying ref
func (r *PostgresBookingRepository) GetByPaymentReference(ctx context.Context, ref string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.get_by_payment_reference")
	defer span.End()

	span.SetAttributes(attribute.String("payment_reference", ref))
	return r.getOne(ctx, span, `SELECT`+bookingColumns+`FROM bookings b WHERE b.payment_reference = $1 ORDER BY b.created_at DESC LIMIT 1`, ref)
}

func (r *PostgresBookingRepository) getOne(ctx context.Context, span trace.Span, query string, arg any) (*domain.Booking, error) {
	booking, err := scanBooking(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrBookingNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// Update writes the mutable booking fields
func (r *PostgresBookingRepository) Update(ctx context.Context, booking *domain.Booking) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.update")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", booking.ID),
		attribute.String("status", booking.Status.String()),
	)

	query := `
		UPDATE bookings SET
			status = $2,
			payment_reference = $3,
			ticket_token = $4,
			confirmed_at = $5,
			cancelled_at = $6,
			updated_at = $7
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		booking.ID,
		booking.Status.String(),
		nullString(booking.PaymentReference),
		nullString(booking.TicketToken),
		booking.ConfirmedAt,
		booking.CancelledAt,
		booking.UpdatedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found")
		return domain.ErrBookingNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// DeleteLinks removes the seat links of a booking
func (r *PostgresBookingRepository) DeleteLinks(ctx context.Context, bookingID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.delete_links")
	defer span.End()

	if _, err := r.db.Exec(ctx, `DELETE FROM booking_seats WHERE booking_id = $1`, bookingID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete booking seats: %w", err)
	}
	return nil
}

// ListByUser lists a user's bookings, newest first
func (r *PostgresBookingRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_by_user")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.Int("limit", limit),
		attribute.Int("offset", offset),
	)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE user_id = $1`, userID).Scan(&total); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	query := `SELECT` + bookingColumns + `
		FROM bookings b
		WHERE b.user_id = $1
		ORDER BY b.created_at DESC
		LIMIT $2 OFFSET $3
	`
	bookings, err := r.queryMany(ctx, query, userID, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}

	span.SetStatus(codes.Ok, "")
	return bookings, total, nil
}

// List lists all bookings, optionally filtered by status
func (r *PostgresBookingRepository) List(ctx context.Context, status domain.BookingStatus, limit, offset int) ([]*domain.Booking, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list")
	defer span.End()

	filter := nullString(status.String())

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM bookings WHERE ($1::text IS NULL OR status = $1)`, filter).Scan(&total); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	query := `SELECT` + bookingColumns + `
		FROM bookings b
		WHERE ($1::text IS NULL OR b.status = $1)
		ORDER BY b.created_at DESC
		LIMIT $2 OFFSET $3
	`
	bookings, err := r.queryMany(ctx, query, filter, limit, offset)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, 0, err
	}

	span.SetStatus(codes.Ok, "")
	return bookings, total, nil
}

// ListExpiredHolds lists PENDING bookings older than cutoff without a
// successful payment, oldest first
func (r *PostgresBookingRepository) ListExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.list_expired_holds")
	defer span.End()

	span.SetAttributes(
		attribute.String("cutoff", cutoff.Format(time.RFC3339)),
		attribute.Int("limit", limit),
	)

	query := `SELECT` + bookingColumns + `
		FROM bookings b
		WHERE b.status = 'PENDING'
		  AND b.created_at < $1
		  AND NOT EXISTS (
		      SELECT 1 FROM payments p
		      WHERE p.booking_id = b.id AND p.status = 'SUCCESS'
		  )
		ORDER BY b.created_at
		LIMIT $2
	`
	bookings, err := r.queryMany(ctx, query, cutoff, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return bookings, nil
}

// DeleteBySchedules removes seat links and bookings of the given schedules
func (r *PostgresBookingRepository) DeleteBySchedules(ctx context.Context, scheduleIDs []string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.booking.delete_by_schedules")
	defer span.End()

	if _, err := r.db.Exec(ctx, `
		DELETE FROM booking_seats
		WHERE booking_id IN (SELECT id FROM bookings WHERE schedule_id = ANY($1))
	`, scheduleIDs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to delete booking seats: %w", err)
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM bookings WHERE schedule_id = ANY($1)`, scheduleIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to delete bookings: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresBookingRepository) queryMany(ctx context.Context, query string, args ...any) ([]*domain.Booking, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*domain.Booking
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, booking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	booking := &domain.Booking{}
	var (
		status           string
		paymentReference *string
		ticketToken      *string
	)

	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.ScheduleID,
		&booking.Amount,
		&booking.Currency,
		&status,
		&paymentReference,
		&ticketToken,
		&booking.ConfirmedAt,
		&booking.CancelledAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
		&booking.SeatNumbers,
	)
	if err != nil {
		return nil, err
	}

	booking.Status = domain.BookingStatus(status)
	booking.PaymentReference = derefString(paymentReference)
	booking.TicketToken = derefString(ticketToken)
	return booking, nil
}
