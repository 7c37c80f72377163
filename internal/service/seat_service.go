package service

import (
	"context"
	"strings"

	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/internal/metrics"
	"github.com/moshiverse/busmate/internal/repository"
	"github.com/moshiverse/busmate/pkg/logger"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var (
	fromAvailable = []domain.SeatStatus{domain.SeatStatusAvailable}
	fromReserved  = []domain.SeatStatus{domain.SeatStatusReserved}
	fromHeld      = []domain.SeatStatus{domain.SeatStatusReserved, domain.SeatStatusOccupied}
)

// SeatService owns the seat inventory of each schedule
type SeatService interface {
	// GenerateSeats creates the seat map of a schedule once
	GenerateSeats(ctx context.Context, scheduleID string, spec domain.LayoutSpec) (int, error)

	// ListSeats lists the seats of a schedule ordered by row then column
	ListSeats(ctx context.Context, scheduleID string) ([]*domain.Seat, error)

	// SeatSummary counts seats per status
	SeatSummary(ctx context.Context, scheduleID string) (*domain.SeatSummary, error)

	// ReserveSeats moves every requested seat from AVAILABLE to RESERVED, or none
	ReserveSeats(ctx context.Context, scheduleID string, seatNumbers []string) error

	// OccupySeats moves RESERVED seats to OCCUPIED; OCCUPIED seats are left as is
	OccupySeats(ctx context.Context, scheduleID string, seatNumbers []string) error

	// ReleaseSeats moves RESERVED seats back to AVAILABLE and returns how many moved
	ReleaseSeats(ctx context.Context, scheduleID string, seatNumbers []string) (int, error)
}

type seatService struct {
	store repository.Store
	cache SeatCache
}

// NewSeatService creates a new seat service. A nil cache disables caching.
func NewSeatService(store repository.Store, cache SeatCache) SeatService {
	if cache == nil {
		cache = NewNoOpSeatCache()
	}
	return &seatService{store: store, cache: cache}
}

// GenerateSeats builds the layout and stores it. A zero capacity is taken
// from the schedule's bus type.
func (s *seatService) GenerateSeats(ctx context.Context, scheduleID string, spec domain.LayoutSpec) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.seat.generate")
	defer span.End()

	if strings.TrimSpace(scheduleID) == "" {
		return 0, domain.ErrInvalidScheduleID
	}
	span.SetAttributes(attribute.String("schedule_id", scheduleID))

	var count int
	err := s.store.InTx(ctx, func(tx repository.Repositories) error {
		schedule, err := tx.Catalog().GetSchedule(ctx, scheduleID)
		if err != nil {
			return err
		}
		if spec.Capacity == 0 {
			spec.Capacity = schedule.Capacity
		}

		positions, err := domain.GenerateLayout(spec)
		if err != nil {
			return err
		}

		existing, err := tx.Seats().CountBySchedule(ctx, scheduleID)
		if err != nil {
			return err
		}
		if existing > 0 {
			return domain.ErrAlreadyGenerated
		}

		if count, err = tx.Seats().CreateBatch(ctx, scheduleID, positions); err != nil {
			return err
		}
		return tx.Catalog().SetAvailableSeats(ctx, scheduleID, count)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	s.cache.Invalidate(ctx, scheduleID)
	metrics.RecordSeatsGenerated(ctx, count)
	logger.Get().Info("seats generated",
		zap.String("schedule_id", scheduleID),
		zap.Int("capacity", spec.Capacity),
		zap.Int("count", count),
	)

	span.SetAttributes(attribute.Int("seat_count", count))
	span.SetStatus(codes.Ok, "")
	return count, nil
}

func (s *seatService) ListSeats(ctx context.Context, scheduleID string) ([]*domain.Seat, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.seat.list")
	defer span.End()

	seats, gen, ok := s.cache.GetSeats(ctx, scheduleID)
	if ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return seats, nil
	}

	if _, err := s.store.Catalog().GetSchedule(ctx, scheduleID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	seats, err := s.store.Seats().ListBySchedule(ctx, scheduleID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.cache.SetSeats(ctx, scheduleID, gen, seats)
	return seats, nil
}

func (s *seatService) SeatSummary(ctx context.Context, scheduleID string) (*domain.SeatSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.seat.summary")
	defer span.End()

	return s.store.Seats().Summary(ctx, scheduleID)
}

func (s *seatService) ReserveSeats(ctx context.Context, scheduleID string, seatNumbers []string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.seat.reserve")
	defer span.End()

	err := s.store.InTx(ctx, func(tx repository.Repositories) error {
		return reserveSeats(ctx, tx.Seats(), scheduleID, seatNumbers)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.cache.Invalidate(ctx, scheduleID)
	return nil
}

func (s *seatService) OccupySeats(ctx context.Context, scheduleID string, seatNumbers []string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.seat.occupy")
	defer span.End()

	err := s.store.InTx(ctx, func(tx repository.Repositories) error {
		return occupySeats(ctx, tx.Seats(), scheduleID, seatNumbers)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.cache.Invalidate(ctx, scheduleID)
	return nil
}

func (s *seatService) ReleaseSeats(ctx context.Context, scheduleID string, seatNumbers []string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.seat.release")
	defer span.End()

	var released int
	err := s.store.InTx(ctx, func(tx repository.Repositories) error {
		var err error
		released, err = releaseSeats(ctx, tx.Seats(), scheduleID, seatNumbers)
		return err
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	s.cache.Invalidate(ctx, scheduleID)
	return released, nil
}

// reserveSeats runs the all-or-nothing AVAILABLE to RESERVED transition.
// The caller's transaction must roll back on error.
func reserveSeats(ctx context.Context, seats repository.SeatRepository, scheduleID string, seatNumbers []string) error {
	nums := domain.NormalizeSeatNumbers(seatNumbers)
	if len(nums) == 0 {
		return domain.ErrInvalidSeatSelection
	}

	n, err := seats.Transition(ctx, scheduleID, nums, fromAvailable, domain.SeatStatusReserved)
	if err != nil {
		return err
	}
	if n != len(nums) {
		metrics.RecordSeatConflict(ctx, scheduleID)
		return domain.ErrSeatUnavailable
	}
	return nil
}

// occupySeats counts already OCCUPIED seats as matched so a repeated call is
// a no-op; an AVAILABLE or unknown seat fails the whole call
func occupySeats(ctx context.Context, seats repository.SeatRepository, scheduleID string, seatNumbers []string) error {
	nums := domain.NormalizeSeatNumbers(seatNumbers)
	if len(nums) == 0 {
		return domain.ErrInvalidSeatSelection
	}

	n, err := seats.Transition(ctx, scheduleID, nums, fromHeld, domain.SeatStatusOccupied)
	if err != nil {
		return err
	}
	if n != len(nums) {
		return domain.ErrSeatUnavailable
	}
	return nil
}

func releaseSeats(ctx context.Context, seats repository.SeatRepository, scheduleID string, seatNumbers []string) (int, error) {
	nums := domain.NormalizeSeatNumbers(seatNumbers)
	if len(nums) == 0 {
		return 0, nil
	}

	n, err := seats.Transition(ctx, scheduleID, nums, fromReserved, domain.SeatStatusAvailable)
	if err != nil {
		return 0, err
	}
	if n != len(nums) {
		logger.Get().Warn("released fewer seats than requested",
			zap.String("schedule_id", scheduleID),
			zap.Strings("seats", nums),
			zap.Int("released", n),
		)
	}
	return n, nil
}
