package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/internal/metrics"
	"github.com/moshiverse/busmate/internal/repository"
	"github.com/moshiverse/busmate/internal/ticket"
	"github.com/moshiverse/busmate/pkg/logger"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// CreateBookingInput is the request to hold seats for a user
type CreateBookingInput struct {
	UserID      string
	ScheduleID  string
	Amount      int64
	Currency    string
	SeatNumbers []string
}

// BookingService defines the booking ledger
type BookingService interface {
	// CreateBooking reserves the seats and records a PENDING booking atomically
	CreateBooking(ctx context.Context, in *CreateBookingInput) (*domain.Booking, error)

	// ConfirmBooking confirms a PENDING booking paid with providerRef
	ConfirmBooking(ctx context.Context, bookingID, providerRef string) (*domain.Booking, error)

	// CancelBooking cancels a PENDING booking and frees its seats
	CancelBooking(ctx context.Context, bookingID string) (*domain.Booking, error)

	// GetBooking retrieves a booking by ID
	GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error)

	// ListUserBookings lists a user's bookings, newest first
	ListUserBookings(ctx context.Context, userID string, page, pageSize int) ([]*domain.Booking, int, error)

	// ListBookings lists all bookings, optionally filtered by status
	ListBookings(ctx context.Context, status domain.BookingStatus, page, pageSize int) ([]*domain.Booking, int, error)

	// ExpireHolds cancels up to limit PENDING bookings older than the hold TTL
	ExpireHolds(ctx context.Context, limit int) (int, error)
}

// BookingServiceConfig contains configuration for the booking service
type BookingServiceConfig struct {
	// HoldTTL is how long an unpaid booking keeps its seats; 0 disables expiry
	HoldTTL         time.Duration
	DefaultCurrency string
	// EnforcePrice rejects bookings whose amount is not price x seats
	EnforcePrice bool
	MaxPageSize  int
}

// DefaultBookingServiceConfig returns the default configuration
func DefaultBookingServiceConfig() *BookingServiceConfig {
	return &BookingServiceConfig{
		HoldTTL:         15 * time.Minute,
		DefaultCurrency: domain.DefaultCurrency,
		EnforcePrice:    true,
		MaxPageSize:     100,
	}
}

// HoldSettler looks at the payment intent of a stale hold before it expires.
// keep is true while the intent may still be paid, or when the payment was
// just applied to the booking.
type HoldSettler interface {
	SettleHold(ctx context.Context, hold *domain.Booking) (keep bool, err error)
}

// BookingOption customizes a booking service
type BookingOption func(*bookingService)

// WithHoldSettler makes ExpireHolds consult settler for holds that carry a
// payment reference. Without one such holds never expire.
func WithHoldSettler(settler HoldSettler) BookingOption {
	return func(s *bookingService) { s.settler = settler }
}

type bookingService struct {
	store     repository.Store
	cache     SeatCache
	publisher EventPublisher
	settler   HoldSettler
	cfg       BookingServiceConfig
	now       func() time.Time
}

// NewBookingService creates a new booking service
func NewBookingService(store repository.Store, cache SeatCache, publisher EventPublisher, cfg *BookingServiceConfig, opts ...BookingOption) BookingService {
	s := newBookingService(store, cache, publisher, cfg)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newBookingService(store repository.Store, cache SeatCache, publisher EventPublisher, cfg *BookingServiceConfig) *bookingService {
	c := *DefaultBookingServiceConfig()
	if cfg != nil {
		c.HoldTTL = cfg.HoldTTL
		c.EnforcePrice = cfg.EnforcePrice
		if cfg.DefaultCurrency != "" {
			c.DefaultCurrency = cfg.DefaultCurrency
		}
		if cfg.MaxPageSize > 0 {
			c.MaxPageSize = cfg.MaxPageSize
		}
	}
	if cache == nil {
		cache = NewNoOpSeatCache()
	}
	if publisher == nil {
		publisher = NewNoOpEventPublisher()
	}
	return &bookingService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		cfg:       c,
		now:       time.Now,
	}
}

func (s *bookingService) CreateBooking(ctx context.Context, in *CreateBookingInput) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.create")
	defer span.End()

	if in == nil || strings.TrimSpace(in.UserID) == "" {
		span.SetStatus(codes.Error, "invalid user_id")
		return nil, domain.ErrInvalidUserID
	}
	if strings.TrimSpace(in.ScheduleID) == "" {
		span.SetStatus(codes.Error, "invalid schedule_id")
		return nil, domain.ErrInvalidScheduleID
	}
	seats := domain.NormalizeSeatNumbers(in.SeatNumbers)
	if len(seats) == 0 {
		span.SetStatus(codes.Error, "no seats")
		return nil, domain.ErrInvalidSeatSelection
	}
	if in.Amount < 0 {
		span.SetStatus(codes.Error, "negative amount")
		return nil, domain.ErrInvalidAmount
	}

	span.SetAttributes(
		attribute.String("user_id", in.UserID),
		attribute.String("schedule_id", in.ScheduleID),
		attribute.Int("seat_count", len(seats)),
	)

	currency := in.Currency
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	now := s.now()
	booking := &domain.Booking{
		ID:          uuid.New().String(),
		UserID:      in.UserID,
		ScheduleID:  in.ScheduleID,
		Amount:      in.Amount,
		Currency:    strings.ToUpper(currency),
		Status:      domain.BookingStatusPending,
		SeatNumbers: seats,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.store.InTx(ctx, func(tx repository.Repositories) error {
		if _, err := tx.Catalog().GetUser(ctx, in.UserID); err != nil {
			return err
		}
		schedule, err := tx.Catalog().GetSchedule(ctx, in.ScheduleID)
		if err != nil {
			return err
		}
		if s.cfg.EnforcePrice {
			if expected := schedule.ExpectedAmount(len(seats)); expected >= 0 && expected != in.Amount {
				return domain.ErrInvalidAmount
			}
		}

		if err := reserveSeats(ctx, tx.Seats(), in.ScheduleID, seats); err != nil {
			return err
		}
		if err := tx.Bookings().Create(ctx, booking); err != nil {
			return err
		}
		return tx.Catalog().AdjustAvailableSeats(ctx, in.ScheduleID, -len(seats))
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.cache.Invalidate(ctx, in.ScheduleID)
	metrics.RecordBookingCreated(ctx, in.ScheduleID, len(seats))
	s.publish(ctx, s.publisher.PublishBookingCreated, booking)

	span.SetAttributes(attribute.String("booking_id", booking.ID))
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *bookingService) ConfirmBooking(ctx context.Context, bookingID, providerRef string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.confirm")
	defer span.End()

	if strings.TrimSpace(bookingID) == "" {
		return nil, domain.ErrInvalidBookingID
	}
	if strings.TrimSpace(providerRef) == "" {
		return nil, domain.ErrInvalidIntentID
	}
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.String("provider_ref", providerRef),
	)

	var (
		booking *domain.Booking
		changed bool
	)
	err := s.store.InTx(ctx, func(tx repository.Repositories) error {
		var err error
		booking, changed, err = s.confirmInTx(ctx, tx, bookingID, providerRef)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if changed {
		s.afterConfirm(ctx, booking, "manual")
	}
	span.SetAttributes(attribute.Bool("changed", changed))
	span.SetStatus(codes.Ok, "")
	return booking, nil
}

// confirmInTx applies the PENDING to CONFIRMED transition inside tx. It
// reports changed=false when the booking was already confirmed by ref.
func (s *bookingService) confirmInTx(ctx context.Context, tx repository.Repositories, bookingID, ref string) (*domain.Booking, bool, error) {
	booking, err := tx.Bookings().GetForUpdate(ctx, bookingID)
	if err != nil {
		return nil, false, err
	}
	if booking.IsConfirmedWith(ref) {
		return booking, false, nil
	}

	confirmedAt := s.now().UTC().Truncate(time.Millisecond)
	if err := booking.Confirm(ref, confirmedAt); err != nil {
		return nil, false, err
	}
	if err := occupySeats(ctx, tx.Seats(), booking.ScheduleID, booking.SeatNumbers); err != nil {
		return nil, false, err
	}

	user, err := tx.Catalog().GetUser(ctx, booking.UserID)
	if err != nil {
		return nil, false, err
	}
	schedule, err := tx.Catalog().GetSchedule(ctx, booking.ScheduleID)
	if err != nil {
		return nil, false, err
	}
	token, err := ticket.Generate(ticket.Snapshot{Booking: booking, User: user, Schedule: schedule}, confirmedAt)
	if err != nil {
		return nil, false, err
	}
	booking.TicketToken = token.String()

	if err := tx.Bookings().Update(ctx, booking); err != nil {
		return nil, false, err
	}
	return booking, true, nil
}

func (s *bookingService) afterConfirm(ctx context.Context, booking *domain.Booking, provider string) {
	s.cache.Invalidate(ctx, booking.ScheduleID)
	metrics.RecordBookingConfirmed(ctx, provider, booking.ConfirmedAt.Sub(booking.CreatedAt).Seconds())
	s.publish(ctx, s.publisher.PublishBookingConfirmed, booking)
	logger.Get().Info("booking confirmed",
		zap.String("booking_id", booking.ID),
		zap.String("payment_reference", booking.PaymentReference),
		zap.String("provider", provider),
	)
}

func (s *bookingService) CancelBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	return s.cancel(ctx, bookingID, false)
}

func (s *bookingService) cancel(ctx context.Context, bookingID string, expired bool) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.cancel")
	defer span.End()

	if strings.TrimSpace(bookingID) == "" {
		return nil, domain.ErrInvalidBookingID
	}
	span.SetAttributes(
		attribute.String("booking_id", bookingID),
		attribute.Bool("expired", expired),
	)

	var booking *domain.Booking
	err := s.store.InTx(ctx, func(tx repository.Repositories) error {
		var err error
		booking, err = tx.Bookings().GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := booking.Cancel(s.now().UTC()); err != nil {
			return err
		}

		released, err := releaseSeats(ctx, tx.Seats(), booking.ScheduleID, booking.SeatNumbers)
		if err != nil {
			return err
		}
		if err := tx.Bookings().DeleteLinks(ctx, booking.ID); err != nil {
			return err
		}
		if err := tx.Bookings().Update(ctx, booking); err != nil {
			return err
		}
		return tx.Catalog().AdjustAvailableSeats(ctx, booking.ScheduleID, released)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.cache.Invalidate(ctx, booking.ScheduleID)
	metrics.RecordBookingCancelled(ctx, expired)
	if expired {
		s.publish(ctx, s.publisher.PublishBookingExpired, booking)
	} else {
		s.publish(ctx, s.publisher.PublishBookingCancelled, booking)
	}

	span.SetStatus(codes.Ok, "")
	return booking, nil
}

func (s *bookingService) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.get")
	defer span.End()

	if strings.TrimSpace(bookingID) == "" {
		return nil, domain.ErrInvalidBookingID
	}
	return s.store.Bookings().GetByID(ctx, bookingID)
}

func (s *bookingService) ListUserBookings(ctx context.Context, userID string, page, pageSize int) ([]*domain.Booking, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list_by_user")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return nil, 0, domain.ErrInvalidUserID
	}
	limit, offset := s.pageBounds(page, pageSize)
	return s.store.Bookings().ListByUser(ctx, userID, limit, offset)
}

func (s *bookingService) ListBookings(ctx context.Context, status domain.BookingStatus, page, pageSize int) ([]*domain.Booking, int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.list")
	defer span.End()

	if status != "" && !status.IsValid() {
		return nil, 0, domain.ErrInvalidState
	}
	limit, offset := s.pageBounds(page, pageSize)
	return s.store.Bookings().List(ctx, status, limit, offset)
}

// ExpireHolds cancels stale holds one by one. A hold confirmed or cancelled
// concurrently is skipped, and so is a hold whose payment intent is still
// payable or has just been paid.
func (s *bookingService) ExpireHolds(ctx context.Context, limit int) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.booking.expire_holds")
	defer span.End()

	if s.cfg.HoldTTL <= 0 {
		return 0, nil
	}

	holds, err := s.store.Bookings().ListExpiredHolds(ctx, s.now().Add(-s.cfg.HoldTTL), limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}

	expired := 0
	for _, hold := range holds {
		if ctx.Err() != nil {
			break
		}
		if hold.PaymentReference != "" {
			if s.settler == nil {
				continue
			}
			keep, err := s.settler.SettleHold(ctx, hold)
			if err != nil {
				logger.Get().Warn("hold kept, payment intent could not be checked",
					zap.String("booking_id", hold.ID),
					zap.String("payment_reference", hold.PaymentReference),
					zap.Error(err),
				)
				continue
			}
			if keep {
				continue
			}
		}
		if _, err := s.cancel(ctx, hold.ID, true); err != nil {
			if !errors.Is(err, domain.ErrInvalidState) {
				logger.Get().Warn("failed to expire hold", zap.String("booking_id", hold.ID), zap.Error(err))
			}
			continue
		}
		expired++
	}

	span.SetAttributes(attribute.Int("expired", expired))
	span.SetStatus(codes.Ok, "")
	return expired, nil
}

func (s *bookingService) pageBounds(page, pageSize int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > s.cfg.MaxPageSize {
		pageSize = s.cfg.MaxPageSize
	}
	return pageSize, (page - 1) * pageSize
}

// publish sends an event after commit; failures are logged only
func (s *bookingService) publish(ctx context.Context, fn func(context.Context, *domain.Booking) error, booking *domain.Booking) {
	if err := fn(ctx, booking); err != nil {
		logger.Get().Warn("failed to publish booking event",
			zap.String("booking_id", booking.ID),
			zap.String("status", booking.Status.String()),
			zap.Error(err),
		)
	}
}
