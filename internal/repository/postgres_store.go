package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/pkg/database"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/codes"
)

const pgUniqueViolation = "23505"

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// PostgresStore implements Store on a pgx pool
type PostgresStore struct {
	pool *pgxpool.Pool
	pgRepositories
}

// NewPostgresStore creates a new PostgresStore
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, pgRepositories: newPgRepositories(pool)}
}

// InTx runs fn in one database transaction
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Repositories) error) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.tx")
	defer span.End()

	err := database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newPgRepositories(tx))
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

type pgRepositories struct {
	seats    *PostgresSeatRepository
	bookings *PostgresBookingRepository
	payments *PostgresPaymentRepository
	catalog  *PostgresCatalogRepository
}

func newPgRepositories(db DBTX) pgRepositories {
	return pgRepositories{
		seats:    NewPostgresSeatRepository(db),
		bookings: NewPostgresBookingRepository(db),
		payments: NewPostgresPaymentRepository(db),
		catalog:  NewPostgresCatalogRepository(db),
	}
}

func (r pgRepositories) Seats() SeatRepository       { return r.seats }
func (r pgRepositories) Bookings() BookingRepository { return r.bookings }
func (r pgRepositories) Payments() PaymentRepository { return r.payments }
func (r pgRepositories) Catalog() CatalogRepository  { return r.catalog }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func statusStrings(statuses []domain.SeatStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = s.String()
	}
	return out
}
