package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresCatalogRepository implements CatalogRepository using PostgreSQL.
// Master data tables are owned elsewhere; only available_seats is written.
type PostgresCatalogRepository struct {
	db DBTX
}

// NewPostgresCatalogRepository creates a new PostgresCatalogRepository
func NewPostgresCatalogRepository(db DBTX) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{db: db}
}

// GetUser retrieves a user by ID
func (r *PostgresCatalogRepository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.get_user")
	defer span.End()

	u := &domain.User{}
	err := r.db.QueryRow(ctx, `SELECT id, name, email FROM users WHERE id = $1`, id).Scan(&u.ID, &u.Name, &u.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetSchedule retrieves a schedule joined with its route and bus
func (r *PostgresCatalogRepository) GetSchedule(ctx context.Context, id string) (*domain.Schedule, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.get_schedule")
	defer span.End()

	span.SetAttributes(attribute.String("schedule_id", id))

	query := `
		SELECT s.id, s.route_id, COALESCE(s.bus_id::text, ''),
		       r.origin, r.destination,
		       s.travel_date, s.departure_time, s.arrival_time,
		       s.price, s.available_seats,
		       COALESCE(b.bus_number, ''), COALESCE(b.plate_no, ''),
		       COALESCE(bt.name, ''), COALESCE(bt.capacity, 0)
		FROM schedules s
		JOIN routes r ON r.id = s.route_id
		LEFT JOIN buses b ON b.id = s.bus_id
		LEFT JOIN bus_types bt ON bt.id = b.bus_type_id
		WHERE s.id = $1
	`

	s := &domain.Schedule{}
	var departure, arrival pgtype.Time
	err := r.db.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.RouteID, &s.BusID,
		&s.Origin, &s.Destination,
		&s.TravelDate, &departure, &arrival,
		&s.Price, &s.AvailableSeats,
		&s.BusNumber, &s.PlateNumber,
		&s.BusType, &s.Capacity,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrScheduleNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}

	s.DepartureTime = clockTime(departure)
	s.ArrivalTime = clockTime(arrival)

	span.SetStatus(codes.Ok, "")
	return s, nil
}

// AdjustAvailableSeats adds delta to the available counter, clamped at zero
func (r *PostgresCatalogRepository) AdjustAvailableSeats(ctx context.Context, scheduleID string, delta int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.adjust_available_seats")
	defer span.End()

	span.SetAttributes(
		attribute.String("schedule_id", scheduleID),
		attribute.Int("delta", delta),
	)

	tag, err := r.db.Exec(ctx, `
		UPDATE schedules SET available_seats = GREATEST(available_seats + $2, 0)
		WHERE id = $1
	`, scheduleID, delta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to adjust available seats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// SetAvailableSeats overwrites the available counter
func (r *PostgresCatalogRepository) SetAvailableSeats(ctx context.Context, scheduleID string, n int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.set_available_seats")
	defer span.End()

	tag, err := r.db.Exec(ctx, `UPDATE schedules SET available_seats = $2 WHERE id = $1`, scheduleID, n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to set available seats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// ScheduleIDsByBus returns the schedules operated by a bus. An unknown bus
// is ErrBusNotFound.
func (r *PostgresCatalogRepository) ScheduleIDsByBus(ctx context.Context, busID string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.schedule_ids_by_bus")
	defer span.End()

	return r.childIDs(ctx,
		`SELECT EXISTS (SELECT 1 FROM buses WHERE id = $1)`,
		`SELECT id FROM schedules WHERE bus_id = $1`,
		busID, domain.ErrBusNotFound)
}

// ScheduleIDsByRoute returns the schedules on a route. An unknown route is
// ErrRouteNotFound.
func (r *PostgresCatalogRepository) ScheduleIDsByRoute(ctx context.Context, routeID string) ([]string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.schedule_ids_by_route")
	defer span.End()

	return r.childIDs(ctx,
		`SELECT EXISTS (SELECT 1 FROM routes WHERE id = $1)`,
		`SELECT id FROM schedules WHERE route_id = $1`,
		routeID, domain.ErrRouteNotFound)
}

func (r *PostgresCatalogRepository) childIDs(ctx context.Context, existsQuery, listQuery, id string, notFound error) ([]string, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, existsQuery, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check parent: %w", err)
	}
	if !exists {
		return nil, notFound
	}

	rows, err := r.db.Query(ctx, listQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect schedule ids: %w", err)
	}
	return ids, nil
}

// DeleteSchedules removes the given schedules
func (r *PostgresCatalogRepository) DeleteSchedules(ctx context.Context, ids []string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.catalog.delete_schedules")
	defer span.End()

	tag, err := r.db.Exec(ctx, `DELETE FROM schedules WHERE id = ANY($1)`, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to delete schedules: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// DeleteBus removes a bus
func (r *PostgresCatalogRepository) DeleteBus(ctx context.Context, id string) error {
	return r.deleteRoot(ctx, "repo.postgres.catalog.delete_bus", `DELETE FROM buses WHERE id = $1`, id, domain.ErrBusNotFound)
}

// DeleteRoute removes a route
func (r *PostgresCatalogRepository) DeleteRoute(ctx context.Context, id string) error {
	return r.deleteRoot(ctx, "repo.postgres.catalog.delete_route", `DELETE FROM routes WHERE id = $1`, id, domain.ErrRouteNotFound)
}

func (r *PostgresCatalogRepository) deleteRoot(ctx context.Context, spanName, query, id string, notFound error) error {
	ctx, span := telemetry.StartSpan(ctx, spanName)
	defer span.End()

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound
	}
	return nil
}

// clockTime converts a TIME column to a time.Time on day zero
func clockTime(t pgtype.Time) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return time.Date(0, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(t.Microseconds) * time.Microsecond)
}
