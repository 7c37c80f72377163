package service

import (
	"context"
	"strings"

	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/internal/repository"
	"github.com/moshiverse/busmate/pkg/logger"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// CascadeResult counts what a cascade delete removed
type CascadeResult struct {
	Schedules int `json:"schedules"`
	Seats     int `json:"seats"`
	Bookings  int `json:"bookings"`
	Payments  int `json:"payments"`
}

// CascadeService deletes master data together with everything hanging off
// its schedules, in one transaction
type CascadeService interface {
	DeleteSchedule(ctx context.Context, scheduleID string) (*CascadeResult, error)
	DeleteBus(ctx context.Context, busID string) (*CascadeResult, error)
	DeleteRoute(ctx context.Context, routeID string) (*CascadeResult, error)
}

type cascadeService struct {
	store repository.Store
	cache SeatCache
}

// NewCascadeService creates a new cascade service
func NewCascadeService(store repository.Store, cache SeatCache) CascadeService {
	if cache == nil {
		cache = NewNoOpSeatCache()
	}
	return &cascadeService{store: store, cache: cache}
}

func (s *cascadeService) DeleteSchedule(ctx context.Context, scheduleID string) (*CascadeResult, error) {
	if strings.TrimSpace(scheduleID) == "" {
		return nil, domain.ErrInvalidScheduleID
	}
	return s.run(ctx, "schedule", scheduleID,
		func(ctx context.Context, tx repository.Repositories) ([]string, error) {
			if _, err := tx.Catalog().GetSchedule(ctx, scheduleID); err != nil {
				return nil, err
			}
			return []string{scheduleID}, nil
		},
		nil,
	)
}

func (s *cascadeService) DeleteBus(ctx context.Context, busID string) (*CascadeResult, error) {
	if strings.TrimSpace(busID) == "" {
		return nil, domain.ErrBusNotFound
	}
	return s.run(ctx, "bus", busID,
		func(ctx context.Context, tx repository.Repositories) ([]string, error) {
			return tx.Catalog().ScheduleIDsByBus(ctx, busID)
		},
		func(ctx context.Context, tx repository.Repositories) error {
			return tx.Catalog().DeleteBus(ctx, busID)
		},
	)
}

func (s *cascadeService) DeleteRoute(ctx context.Context, routeID string) (*CascadeResult, error) {
	if strings.TrimSpace(routeID) == "" {
		return nil, domain.ErrRouteNotFound
	}
	return s.run(ctx, "route", routeID,
		func(ctx context.Context, tx repository.Repositories) ([]string, error) {
			return tx.Catalog().ScheduleIDsByRoute(ctx, routeID)
		},
		func(ctx context.Context, tx repository.Repositories) error {
			return tx.Catalog().DeleteRoute(ctx, routeID)
		},
	)
}

// run resolves the schedule set, then deletes payments, bookings with their
// seat links, seats and schedules before the root itself
func (s *cascadeService) run(
	ctx context.Context,
	kind, id string,
	resolve func(context.Context, repository.Repositories) ([]string, error),
	deleteRoot func(context.Context, repository.Repositories) error,
) (*CascadeResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.cascade.delete_"+kind)
	defer span.End()

	span.SetAttributes(attribute.String(kind+"_id", id))

	result := &CascadeResult{}
	var scheduleIDs []string
	err := s.store.InTx(ctx, func(tx repository.Repositories) error {
		var err error
		if scheduleIDs, err = resolve(ctx, tx); err != nil {
			return err
		}

		if len(scheduleIDs) > 0 {
			if result.Payments, err = tx.Payments().DeleteBySchedules(ctx, scheduleIDs); err != nil {
				return err
			}
			if result.Bookings, err = tx.Bookings().DeleteBySchedules(ctx, scheduleIDs); err != nil {
				return err
			}
			if result.Seats, err = tx.Seats().DeleteBySchedules(ctx, scheduleIDs); err != nil {
				return err
			}
			if result.Schedules, err = tx.Catalog().DeleteSchedules(ctx, scheduleIDs); err != nil {
				return err
			}
		}

		if deleteRoot != nil {
			return deleteRoot(ctx, tx)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.cache.Invalidate(ctx, scheduleIDs...)
	logger.Get().Info("cascade delete",
		zap.String("kind", kind),
		zap.String("id", id),
		zap.Int("schedules", result.Schedules),
		zap.Int("seats", result.Seats),
		zap.Int("bookings", result.Bookings),
		zap.Int("payments", result.Payments),
	)

	span.SetStatus(codes.Ok, "")
	return result, nil
}
