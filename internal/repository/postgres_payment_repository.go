package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresPaymentRepository implements PaymentRepository using PostgreSQL
type PostgresPaymentRepository struct {
	db DBTX
}

// NewPostgresPaymentRepository creates a new PostgresPaymentRepository
func NewPostgresPaymentRepository(db DBTX) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{db: db}
}

// Record inserts the payment behind the (provider, provider_ref) unique
// constraint. A SUCCESS row may replace an earlier FAILED or PENDING row for
// the same key; nothing replaces a SUCCESS row.
func (r *PostgresPaymentRepository) Record(ctx context.Context, payment *domain.Payment) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.record")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking_id", payment.BookingID),
		attribute.String("provider", payment.Provider),
		attribute.String("provider_ref", payment.ProviderRef),
		attribute.String("status", payment.Status.String()),
	)

	query := `
		INSERT INTO payments (id, booking_id, provider, provider_ref, amount, status, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (provider, provider_ref) DO NOTHING
	`
	if payment.IsCaptured() {
		query = `
			INSERT INTO payments (id, booking_id, provider, provider_ref, amount, status, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (provider, provider_ref) DO UPDATE SET
				status = EXCLUDED.status,
				amount = EXCLUDED.amount,
				booking_id = EXCLUDED.booking_id,
				received_at = EXCLUDED.received_at
			WHERE payments.status NOT IN ('SUCCESS', 'REFUND_DUE')
		`
	}

	tag, err := r.db.Exec(ctx, query,
		payment.ID,
		payment.BookingID,
		payment.Provider,
		payment.ProviderRef,
		payment.Amount,
		payment.Status.String(),
		payment.ReceivedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to record payment: %w", err)
	}

	inserted := tag.RowsAffected() > 0
	span.SetAttributes(attribute.Bool("inserted", inserted))
	span.SetStatus(codes.Ok, "")
	return inserted, nil
}

// GetByProviderRef retrieves the payment for a provider reference
func (r *PostgresPaymentRepository) GetByProviderRef(ctx context.Context, provider, ref string) (*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.get_by_provider_ref")
	defer span.End()

	query := `
		SELECT id, booking_id, provider, provider_ref, amount, status, received_at
		FROM payments
		WHERE provider = $1 AND provider_ref = $2
	`
	payment, err := scanPayment(r.db.QueryRow(ctx, query, provider, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return payment, nil
}

// ListByBooking lists payments recorded against a booking
func (r *PostgresPaymentRepository) ListByBooking(ctx context.Context, bookingID string) ([]*domain.Payment, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.list_by_booking")
	defer span.End()

	span.SetAttributes(attribute.String("booking_id", bookingID))

	rows, err := r.db.Query(ctx, `
		SELECT id, booking_id, provider, provider_ref, amount, status, received_at
		FROM payments
		WHERE booking_id = $1
		ORDER BY received_at
	`, bookingID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return payments, nil
}

// DeleteBySchedules removes payments of bookings on the given schedules
func (r *PostgresPaymentRepository) DeleteBySchedules(ctx context.Context, scheduleIDs []string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.payment.delete_by_schedules")
	defer span.End()

	tag, err := r.db.Exec(ctx, `
		DELETE FROM payments
		WHERE booking_id IN (SELECT id FROM bookings WHERE schedule_id = ANY($1))
	`, scheduleIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to delete payments: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	var status string
	if err := row.Scan(&p.ID, &p.BookingID, &p.Provider, &p.ProviderRef, &p.Amount, &status, &p.ReceivedAt); err != nil {
		return nil, err
	}
	p.Status = domain.PaymentStatus(status)
	return p, nil
}
