package handler

import (
	"context"

	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/internal/gateway"
	"github.com/moshiverse/busmate/internal/service"
)

// MockBookingService is a mock implementation of BookingService for testing
type MockBookingService struct {
	CreateBookingFunc    func(ctx context.Context, in *service.CreateBookingInput) (*domain.Booking, error)
	ConfirmBookingFunc   func(ctx context.Context, bookingID, providerRef string) (*domain.Booking, error)
	CancelBookingFunc    func(ctx context.Context, bookingID string) (*domain.Booking, error)
	GetBookingFunc       func(ctx context.Context, bookingID string) (*domain.Booking, error)
	ListUserBookingsFunc func(ctx context.Context, userID string, page, pageSize int) ([]*domain.Booking, int, error)
	ListBookingsFunc     func(ctx context.Context, status domain.BookingStatus, page, pageSize int) ([]*domain.Booking, int, error)
	ExpireHoldsFunc      func(ctx context.Context, limit int) (int, error)
}

func (m *MockBookingService) CreateBooking(ctx context.Context, in *service.CreateBookingInput) (*domain.Booking, error) {
	if m.CreateBookingFunc != nil {
		return m.CreateBookingFunc(ctx, in)
	}
	return nil, nil
}

func (m *MockBookingService) ConfirmBooking(ctx context.Context, bookingID, providerRef string) (*domain.Booking, error) {
	if m.ConfirmBookingFunc != nil {
		return m.ConfirmBookingFunc(ctx, bookingID, providerRef)
	}
	return nil, nil
}

func (m *MockBookingService) CancelBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	if m.CancelBookingFunc != nil {
		return m.CancelBookingFunc(ctx, bookingID)
	}
	return nil, nil
}

func (m *MockBookingService) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	if m.GetBookingFunc != nil {
		return m.GetBookingFunc(ctx, bookingID)
	}
	return nil, domain.ErrBookingNotFound
}

func (m *MockBookingService) ListUserBookings(ctx context.Context, userID string, page, pageSize int) ([]*domain.Booking, int, error) {
	if m.ListUserBookingsFunc != nil {
		return m.ListUserBookingsFunc(ctx, userID, page, pageSize)
	}
	return nil, 0, nil
}

func (m *MockBookingService) ListBookings(ctx context.Context, status domain.BookingStatus, page, pageSize int) ([]*domain.Booking, int, error) {
	if m.ListBookingsFunc != nil {
		return m.ListBookingsFunc(ctx, status, page, pageSize)
	}
	return nil, 0, nil
}

func (m *MockBookingService) ExpireHolds(ctx context.Context, limit int) (int, error) {
	if m.ExpireHoldsFunc != nil {
		return m.ExpireHoldsFunc(ctx, limit)
	}
	return 0, nil
}

// MockSeatService is a mock implementation of SeatService for testing
type MockSeatService struct {
	GenerateSeatsFunc func(ctx context.Context, scheduleID string, spec domain.LayoutSpec) (int, error)
	ListSeatsFunc     func(ctx context.Context, scheduleID string) ([]*domain.Seat, error)
	SeatSummaryFunc   func(ctx context.Context, scheduleID string) (*domain.SeatSummary, error)
}

func (m *MockSeatService) GenerateSeats(ctx context.Context, scheduleID string, spec domain.LayoutSpec) (int, error) {
	if m.GenerateSeatsFunc != nil {
		return m.GenerateSeatsFunc(ctx, scheduleID, spec)
	}
	return 0, nil
}

func (m *MockSeatService) ListSeats(ctx context.Context, scheduleID string) ([]*domain.Seat, error) {
	if m.ListSeatsFunc != nil {
		return m.ListSeatsFunc(ctx, scheduleID)
	}
	return nil, nil
}

func (m *MockSeatService) SeatSummary(ctx context.Context, scheduleID string) (*domain.SeatSummary, error) {
	if m.SeatSummaryFunc != nil {
		return m.SeatSummaryFunc(ctx, scheduleID)
	}
	return &domain.SeatSummary{ScheduleID: scheduleID}, nil
}

func (m *MockSeatService) ReserveSeats(ctx context.Context, scheduleID string, seatNumbers []string) error {
	return nil
}

func (m *MockSeatService) OccupySeats(ctx context.Context, scheduleID string, seatNumbers []string) error {
	return nil
}

func (m *MockSeatService) ReleaseSeats(ctx context.Context, scheduleID string, seatNumbers []string) (int, error) {
	return 0, nil
}

// MockReconciliationService is a mock implementation of ReconciliationService for testing
type MockReconciliationService struct {
	CreatePaymentIntentFunc func(ctx context.Context, bookingID, description string) (*service.PaymentIntentResult, error)
	ConfirmFunc             func(ctx context.Context, intentID string) (*domain.Booking, error)
	HandleWebhookFunc       func(ctx context.Context, payload []byte, signature string) *service.WebhookAck
	HandleStripeWebhookFunc func(ctx context.Context, payload []byte, signature string) *service.WebhookAck
	GetIntentStatusFunc     func(ctx context.Context, intentID string) (*gateway.IntentStatus, error)
	BookingForIntentFunc    func(ctx context.Context, intentID string) (*domain.Booking, error)
	SettleHoldFunc          func(ctx context.Context, hold *domain.Booking) (bool, error)
}

func (m *MockReconciliationService) CreatePaymentIntent(ctx context.Context, bookingID, description string) (*service.PaymentIntentResult, error) {
	if m.CreatePaymentIntentFunc != nil {
		return m.CreatePaymentIntentFunc(ctx, bookingID, description)
	}
	return nil, nil
}

func (m *MockReconciliationService) Confirm(ctx context.Context, intentID string) (*domain.Booking, error) {
	if m.ConfirmFunc != nil {
		return m.ConfirmFunc(ctx, intentID)
	}
	return nil, nil
}

func (m *MockReconciliationService) VerifyPayment(ctx context.Context, intentID string) (*domain.Booking, error) {
	return m.Confirm(ctx, intentID)
}

func (m *MockReconciliationService) HandleWebhook(ctx context.Context, payload []byte, signature string) *service.WebhookAck {
	if m.HandleWebhookFunc != nil {
		return m.HandleWebhookFunc(ctx, payload, signature)
	}
	return &service.WebhookAck{Received: true}
}

func (m *MockReconciliationService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) *service.WebhookAck {
	if m.HandleStripeWebhookFunc != nil {
		return m.HandleStripeWebhookFunc(ctx, payload, signature)
	}
	return &service.WebhookAck{Received: true}
}

func (m *MockReconciliationService) GetIntentStatus(ctx context.Context, intentID string) (*gateway.IntentStatus, error) {
	if m.GetIntentStatusFunc != nil {
		return m.GetIntentStatusFunc(ctx, intentID)
	}
	return nil, nil
}

// BookingForIntent defaults to a pending booking owned by the test user
func (m *MockReconciliationService) BookingForIntent(ctx context.Context, intentID string) (*domain.Booking, error) {
	if m.BookingForIntentFunc != nil {
		return m.BookingForIntentFunc(ctx, intentID)
	}
	return sampleBooking(testUserID, domain.BookingStatusPending), nil
}

func (m *MockReconciliationService) SettleHold(ctx context.Context, hold *domain.Booking) (bool, error) {
	if m.SettleHoldFunc != nil {
		return m.SettleHoldFunc(ctx, hold)
	}
	return true, nil
}

// MockCascadeService is a mock implementation of CascadeService for testing
type MockCascadeService struct {
	DeleteScheduleFunc func(ctx context.Context, id string) (*service.CascadeResult, error)
	DeleteBusFunc      func(ctx context.Context, id string) (*service.CascadeResult, error)
	DeleteRouteFunc    func(ctx context.Context, id string) (*service.CascadeResult, error)
}

func (m *MockCascadeService) DeleteSchedule(ctx context.Context, id string) (*service.CascadeResult, error) {
	if m.DeleteScheduleFunc != nil {
		return m.DeleteScheduleFunc(ctx, id)
	}
	return &service.CascadeResult{}, nil
}

func (m *MockCascadeService) DeleteBus(ctx context.Context, id string) (*service.CascadeResult, error) {
	if m.DeleteBusFunc != nil {
		return m.DeleteBusFunc(ctx, id)
	}
	return &service.CascadeResult{}, nil
}

func (m *MockCascadeService) DeleteRoute(ctx context.Context, id string) (*service.CascadeResult, error) {
	if m.DeleteRouteFunc != nil {
		return m.DeleteRouteFunc(ctx, id)
	}
	return &service.CascadeResult{}, nil
}
