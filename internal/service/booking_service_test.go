package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/internal/repository"
	"github.com/moshiverse/busmate/internal/ticket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBooking_Validation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBookingService(env.store, nil, nil, nil)

	tests := []struct {
		name    string
		input   *CreateBookingInput
		wantErr error
	}{
		{name: "nil input", input: nil, wantErr: domain.ErrInvalidUserID},
		{name: "empty user", input: &CreateBookingInput{ScheduleID: env.scheduleID, SeatNumbers: []string{"A1"}}, wantErr: domain.ErrInvalidUserID},
		{name: "empty schedule", input: &CreateBookingInput{UserID: env.userID, SeatNumbers: []string{"A1"}}, wantErr: domain.ErrInvalidScheduleID},
		{name: "no seats", input: &CreateBookingInput{UserID: env.userID, ScheduleID: env.scheduleID}, wantErr: domain.ErrInvalidSeatSelection},
		{name: "negative amount", input: &CreateBookingInput{UserID: env.userID, ScheduleID: env.scheduleID, Amount: -1, SeatNumbers: []string{"A1"}}, wantErr: domain.ErrInvalidAmount},
		{name: "unknown user", input: &CreateBookingInput{UserID: "ghost", ScheduleID: env.scheduleID, Amount: seatPrice, SeatNumbers: []string{"A1"}}, wantErr: domain.ErrUserNotFound},
		{name: "unknown schedule", input: &CreateBookingInput{UserID: env.userID, ScheduleID: "ghost", Amount: seatPrice, SeatNumbers: []string{"A1"}}, wantErr: domain.ErrScheduleNotFound},
		{name: "amount differs from price", input: &CreateBookingInput{UserID: env.userID, ScheduleID: env.scheduleID, Amount: seatPrice, SeatNumbers: []string{"A1", "A2"}}, wantErr: domain.ErrInvalidAmount},
		{name: "unknown seat", input: &CreateBookingInput{UserID: env.userID, ScheduleID: env.scheduleID, Amount: seatPrice, SeatNumbers: []string{"Z1"}}, wantErr: domain.ErrSeatUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := svc.CreateBooking(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, b)
		})
	}

	assert.Equal(t, 41, env.summary(t).Available, "failed creates leave no trace")
	assert.Equal(t, 41, env.availableCounter(t))
}

func TestCreateBooking_Success(t *testing.T) {
	env := newTestEnv(t)
	publisher := NewMockEventPublisher()
	cache := newRecordingCache()
	svc := NewBookingService(env.store, cache, publisher, nil)

	b, err := svc.CreateBooking(context.Background(), &CreateBookingInput{
		UserID:      env.userID,
		ScheduleID:  env.scheduleID,
		Amount:      2 * seatPrice,
		SeatNumbers: []string{" a1", "A2", "A1"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.BookingStatusPending, b.Status)
	assert.Equal(t, []string{"A1", "A2"}, b.SeatNumbers)
	assert.Equal(t, domain.DefaultCurrency, b.Currency)
	assert.Empty(t, b.TicketToken)

	summary := env.summary(t)
	assert.Equal(t, 2, summary.Reserved)
	assert.Equal(t, 39, env.availableCounter(t))

	stored, err := svc.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.SeatNumbers, stored.SeatNumbers)

	created, _, _, _ := publisher.counts()
	assert.Equal(t, 1, created)
	assert.Contains(t, cache.invalidated, env.scheduleID)
}

func TestCreateBooking_PriceNotEnforced(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBookingService(env.store, nil, nil, &BookingServiceConfig{HoldTTL: time.Minute})

	b, err := svc.CreateBooking(context.Background(), &CreateBookingInput{
		UserID: env.userID, ScheduleID: env.scheduleID, Amount: 1, SeatNumbers: []string{"A1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Amount)
}

func TestCreateBooking_OverlapConflict(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBookingService(env.store, nil, nil, nil)

	env.book(t, svc, "C1", "C2")

	_, err := svc.CreateBooking(context.Background(), &CreateBookingInput{
		UserID: env.userID, ScheduleID: env.scheduleID, Amount: 2 * seatPrice, SeatNumbers: []string{"C2", "C3"},
	})
	assert.ErrorIs(t, err, domain.ErrSeatUnavailable)

	summary := env.summary(t)
	assert.Equal(t, 2, summary.Reserved, "C3 stays available")
	assert.Equal(t, 39, env.availableCounter(t))
}

func TestCreateBooking_ConcurrentNoOversell(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBookingService(env.store, nil, nil, nil)

	const workers = 20
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateBooking(context.Background(), &CreateBookingInput{
				UserID: env.userID, ScheduleID: env.scheduleID, Amount: seatPrice, SeatNumbers: []string{"E4"},
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrSeatUnavailable):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())
	assert.Equal(t, 40, env.availableCounter(t))
}

func TestCreateBooking_ConcurrentDisjointSeats(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBookingService(env.store, nil, nil, nil)

	var wg sync.WaitGroup
	for row := 'A'; row <= 'I'; row++ {
		wg.Add(1)
		go func(row rune) {
			defer wg.Done()
			seats := []string{fmt.Sprintf("%c1", row), fmt.Sprintf("%c2", row)}
			_, err := svc.CreateBooking(context.Background(), &CreateBookingInput{
				UserID: env.userID, ScheduleID: env.scheduleID, Amount: 2 * seatPrice, SeatNumbers: seats,
			})
			assert.NoError(t, err)
		}(row)
	}
	wg.Wait()

	summary := env.summary(t)
	assert.Equal(t, 18, summary.Reserved)
	assert.Equal(t, 23, env.availableCounter(t))
}

func TestCreateBooking_ConcurrentOverlappingSets(t *testing.T) {
	for round := 0; round < 20; round++ {
		env := newTestEnv(t)
		svc := NewBookingService(env.store, nil, nil, nil)

		sets := [][]string{{"A1", "A2"}, {"A2", "A3"}}
		errs := make([]error, len(sets))
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i, seats := range sets {
			wg.Add(1)
			go func(i int, seats []string) {
				defer wg.Done()
				<-start
				_, errs[i] = svc.CreateBooking(context.Background(), &CreateBookingInput{
					UserID: env.userID, ScheduleID: env.scheduleID, Amount: 2 * seatPrice, SeatNumbers: seats,
				})
			}(i, seats)
		}
		close(start)
		wg.Wait()

		winner := -1
		for i, err := range errs {
			if err == nil {
				require.Equal(t, -1, winner, "only one of the overlapping bookings may win")
				winner = i
				continue
			}
			require.ErrorIs(t, err, domain.ErrSeatUnavailable)
		}
		require.NotEqual(t, -1, winner)

		// the loser's other seat was never taken
		loserOnly := map[int]string{0: "A3", 1: "A1"}[winner]
		seats, err := env.store.Seats().ListBySchedule(context.Background(), env.scheduleID)
		require.NoError(t, err)
		require.NotNil(t, seatByNumber(seats, loserOnly))
		assert.Equal(t, domain.SeatStatusAvailable, seatByNumber(seats, loserOnly).Status)
		assert.Equal(t, domain.SeatStatusReserved, seatByNumber(seats, "A2").Status)
		assert.Equal(t, 2, env.summary(t).Reserved)
		assert.Equal(t, 39, env.availableCounter(t))
	}
}

func TestConfirmBooking(t *testing.T) {
	env := newTestEnv(t)
	publisher := NewMockEventPublisher()
	svc := NewBookingService(env.store, nil, publisher, nil)
	ctx := context.Background()

	b := env.book(t, svc, "F1", "F2")

	confirmed, err := svc.ConfirmBooking(ctx, b.ID, "pay_123")
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, confirmed.Status)
	assert.Equal(t, "pay_123", confirmed.PaymentReference)
	require.NotNil(t, confirmed.ConfirmedAt)
	require.NotEmpty(t, confirmed.TicketToken)

	var payload ticket.Payload
	require.NoError(t, json.Unmarshal([]byte(confirmed.TicketToken), &payload))
	assert.Equal(t, "F1, F2", payload.Seats)
	assert.Equal(t, "Maria Santos", payload.Passenger)
	assert.Equal(t, "Cebu - Moalboal", payload.Route)
	assert.Equal(t, ticket.VerificationCode(b.ID, *confirmed.ConfirmedAt), payload.VerificationCode)

	assert.Equal(t, 2, env.summary(t).Occupied)
	assert.Equal(t, 39, env.availableCounter(t), "confirming does not move the counter")

	again, err := svc.ConfirmBooking(ctx, b.ID, "pay_123")
	require.NoError(t, err, "same reference is a no-op")
	assert.Equal(t, confirmed.TicketToken, again.TicketToken)

	_, err = svc.ConfirmBooking(ctx, b.ID, "pay_other")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, confirmedEvents, _, _ := publisher.counts()
	assert.Equal(t, 1, confirmedEvents)
}

func TestConfirmBooking_Errors(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBookingService(env.store, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.ConfirmBooking(ctx, "", "pay")
	assert.ErrorIs(t, err, domain.ErrInvalidBookingID)
	_, err = svc.ConfirmBooking(ctx, "x", " ")
	assert.ErrorIs(t, err, domain.ErrInvalidIntentID)
	_, err = svc.ConfirmBooking(ctx, "missing", "pay")
	assert.ErrorIs(t, err, domain.ErrBookingNotFound)

	b := env.book(t, svc, "G1")
	_, err = svc.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	_, err = svc.ConfirmBooking(ctx, b.ID, "pay")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCancelBooking(t *testing.T) {
	env := newTestEnv(t)
	publisher := NewMockEventPublisher()
	svc := NewBookingService(env.store, nil, publisher, nil)
	ctx := context.Background()

	b := env.book(t, svc, "H1", "H2")
	cancelled, err := svc.CancelBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	assert.Equal(t, 41, env.summary(t).Available)
	assert.Equal(t, 41, env.availableCounter(t))

	_, err = svc.CancelBooking(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// released seats can be booked again
	env.book(t, svc, "H1")

	_, _, cancelledEvents, _ := publisher.counts()
	assert.Equal(t, 1, cancelledEvents)
}

func TestCancelBooking_ConfirmedRejected(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBookingService(env.store, nil, nil, nil)
	ctx := context.Background()

	b := env.book(t, svc, "I1")
	_, err := svc.ConfirmBooking(ctx, b.ID, "pay_1")
	require.NoError(t, err)

	_, err = svc.CancelBooking(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	assert.Equal(t, 1, env.summary(t).Occupied)
}

func TestListBookings(t *testing.T) {
	env := newTestEnv(t)
	svc := NewBookingService(env.store, nil, nil, &BookingServiceConfig{MaxPageSize: 2, EnforcePrice: true})
	ctx := context.Background()

	first := env.book(t, svc, "A1")
	env.book(t, svc, "A2")
	env.book(t, svc, "A3")
	_, err := svc.CancelBooking(ctx, first.ID)
	require.NoError(t, err)

	items, total, err := svc.ListUserBookings(ctx, env.userID, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, items, 2, "page size is capped")

	items, total, err = svc.ListBookings(ctx, domain.BookingStatusCancelled, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, first.ID, items[0].ID)

	_, _, err = svc.ListBookings(ctx, domain.BookingStatus("LOST"), 1, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, _, err = svc.ListUserBookings(ctx, "", 1, 10)
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)
}

func TestExpireHolds(t *testing.T) {
	env := newTestEnv(t)
	publisher := NewMockEventPublisher()
	svc := newBookingService(env.store, nil, publisher, DefaultBookingServiceConfig())
	ctx := context.Background()

	start := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	stale := env.book(t, svc, "B1", "B2")
	paid := env.book(t, svc, "B3")
	_, err := svc.ConfirmBooking(ctx, paid.ID, "pay_b3")
	require.NoError(t, err)

	svc.now = func() time.Time { return start.Add(10 * time.Minute) }
	fresh := env.book(t, svc, "B4")

	svc.now = func() time.Time { return start.Add(20 * time.Minute) }
	n, err := svc.ExpireHolds(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := svc.GetBooking(ctx, stale.ID)
	assert.Equal(t, domain.BookingStatusCancelled, got.Status)
	got, _ = svc.GetBooking(ctx, fresh.ID)
	assert.Equal(t, domain.BookingStatusPending, got.Status)

	summary := env.summary(t)
	assert.Equal(t, 1, summary.Reserved)
	assert.Equal(t, 1, summary.Occupied)
	assert.Equal(t, 39, env.availableCounter(t))

	_, _, _, expired := publisher.counts()
	assert.Equal(t, 1, expired)

	n, err = svc.ExpireHolds(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExpireHolds_IntentWithoutSettlerIsKept(t *testing.T) {
	env := newTestEnv(t)
	svc := newBookingService(env.store, nil, nil, DefaultBookingServiceConfig())
	ctx := context.Background()
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	hold := env.book(t, svc, "A1")
	svc.now = time.Now

	err := env.store.InTx(ctx, func(tx repository.Repositories) error {
		b, err := tx.Bookings().GetForUpdate(ctx, hold.ID)
		if err != nil {
			return err
		}
		b.PaymentReference = "pi_open"
		return tx.Bookings().Update(ctx, b)
	})
	require.NoError(t, err)

	n, err := svc.ExpireHolds(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
	got, err := svc.GetBooking(ctx, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, got.Status)
}

func TestExpireHolds_Disabled(t *testing.T) {
	env := newTestEnv(t)
	svc := newBookingService(env.store, nil, nil, &BookingServiceConfig{HoldTTL: 0})
	svc.now = func() time.Time { return time.Now().Add(-time.Hour) }
	env.book(t, svc, "A1")
	svc.now = time.Now

	n, err := svc.ExpireHolds(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateBooking_PublishFailureIgnored(t *testing.T) {
	env := newTestEnv(t)
	publisher := NewMockEventPublisher()
	publisher.err = errors.New("broker down")
	svc := NewBookingService(env.store, nil, publisher, nil)

	b := env.book(t, svc, "A4")
	assert.Equal(t, domain.BookingStatusPending, b.Status)
}
