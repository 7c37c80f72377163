package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresSeatRepository implements SeatRepository using PostgreSQL
type PostgresSeatRepository struct {
	db DBTX
}

// NewPostgresSeatRepository creates a new PostgresSeatRepository
func NewPostgresSeatRepository(db DBTX) *PostgresSeatRepository {
	return &PostgresSeatRepository{db: db}
}

// CreateBatch copies the whole seat set in one round trip
func (r *PostgresSeatRepository) CreateBatch(ctx context.Context, scheduleID string, seats []domain.SeatPosition) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.create_batch")
	defer span.End()

	span.SetAttributes(
		attribute.String("schedule_id", scheduleID),
		attribute.Int("seat_count", len(seats)),
	)

	now := time.Now()
	rows := make([][]any, len(seats))
	for i, s := range seats {
		rows[i] = []any{uuid.New().String(), scheduleID, s.SeatNumber, s.RowIndex, s.ColIndex, domain.SeatStatusAvailable.String(), now}
	}

	n, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"seats"},
		[]string{"id", "schedule_id", "seat_number", "row_index", "col_index", "status", "updated_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		if isUniqueViolation(err) {
			span.SetStatus(codes.Error, "already generated")
			return 0, domain.ErrAlreadyGenerated
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to create seats: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return int(n), nil
}

// CountBySchedule counts the generated seats of a schedule
func (r *PostgresSeatRepository) CountBySchedule(ctx context.Context, scheduleID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.count_by_schedule")
	defer span.End()

	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM seats WHERE schedule_id = $1`, scheduleID).Scan(&n); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count seats: %w", err)
	}
	return n, nil
}

// ListBySchedule lists seats ordered by row then column
func (r *PostgresSeatRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]*domain.Seat, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.list_by_schedule")
	defer span.End()

	span.SetAttributes(attribute.String("schedule_id", scheduleID))

	query := `
		SELECT id, schedule_id, seat_number, row_index, col_index, status, updated_at
		FROM seats
		WHERE schedule_id = $1
		ORDER BY row_index, col_index
	`

	rows, err := r.db.Query(ctx, query, scheduleID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list seats: %w", err)
	}
	defer rows.Close()

	var seats []*domain.Seat
	for rows.Next() {
		seat := &domain.Seat{}
		var status string
		if err := rows.Scan(&seat.ID, &seat.ScheduleID, &seat.SeatNumber, &seat.RowIndex, &seat.ColIndex, &status, &seat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan seat: %w", err)
		}
		seat.Status = domain.SeatStatus(status)
		seats = append(seats, seat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate seats: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return seats, nil
}

// Transition applies the expected-status check and the write as one statement
func (r *PostgresSeatRepository) Transition(ctx context.Context, scheduleID string, seatNumbers []string, from []domain.SeatStatus, to domain.SeatStatus) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.transition")
	defer span.End()

	span.SetAttributes(
		attribute.String("schedule_id", scheduleID),
		attribute.StringSlice("seat_numbers", seatNumbers),
		attribute.String("to", to.String()),
	)

	query := `
		UPDATE seats
		SET status = $4, updated_at = NOW()
		WHERE schedule_id = $1
		  AND seat_number = ANY($2)
		  AND status = ANY($3)
	`

	tag, err := r.db.Exec(ctx, query, scheduleID, seatNumbers, statusStrings(from), to.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to update seat status: %w", err)
	}

	n := int(tag.RowsAffected())
	span.SetAttributes(attribute.Int("rows_affected", n))
	span.SetStatus(codes.Ok, "")
	return n, nil
}

// Summary counts the seats of a schedule per status
func (r *PostgresSeatRepository) Summary(ctx context.Context, scheduleID string) (*domain.SeatSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.summary")
	defer span.End()

	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM seats WHERE schedule_id = $1 GROUP BY status`, scheduleID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to summarize seats: %w", err)
	}
	defer rows.Close()

	summary := &domain.SeatSummary{ScheduleID: scheduleID}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan seat summary: %w", err)
		}
		summary.Add(domain.SeatStatus(status), n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate seat summary: %w", err)
	}
	return summary, nil
}

// DeleteBySchedules removes the seats of the given schedules
func (r *PostgresSeatRepository) DeleteBySchedules(ctx context.Context, scheduleIDs []string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.delete_by_schedules")
	defer span.End()

	tag, err := r.db.Exec(ctx, `DELETE FROM seats WHERE schedule_id = ANY($1)`, scheduleIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to delete seats: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
