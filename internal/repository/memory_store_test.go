package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) (*MemoryStore, string) {
	t.Helper()
	store := NewMemoryStore()
	scheduleID := uuid.New().String()
	store.AddUser(domain.User{ID: "u-1", Name: "Juan", Email: "juan@example.com"})
	store.AddSchedule(domain.Schedule{ID: scheduleID, RouteID: "r-1", BusID: "b-1", Price: 35000, AvailableSeats: 0})

	positions, err := domain.GenerateLayout(domain.LayoutSpec{Rows: 2, Cols: 2})
	require.NoError(t, err)
	n, err := store.Seats().CreateBatch(context.Background(), scheduleID, positions)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	return store, scheduleID
}

func newPendingBooking(scheduleID string, seats ...string) *domain.Booking {
	now := time.Now()
	return &domain.Booking{
		ID:          uuid.New().String(),
		UserID:      "u-1",
		ScheduleID:  scheduleID,
		Amount:      35000 * int64(len(seats)),
		Currency:    domain.DefaultCurrency,
		Status:      domain.BookingStatusPending,
		SeatNumbers: seats,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestMemorySeats_CreateBatchTwice(t *testing.T) {
	store, scheduleID := seededStore(t)

	positions, _ := domain.GenerateLayout(domain.LayoutSpec{Rows: 2, Cols: 2})
	_, err := store.Seats().CreateBatch(context.Background(), scheduleID, positions)
	assert.ErrorIs(t, err, domain.ErrAlreadyGenerated)
}

func TestMemorySeats_ListOrdered(t *testing.T) {
	store, scheduleID := seededStore(t)

	seats, err := store.Seats().ListBySchedule(context.Background(), scheduleID)
	require.NoError(t, err)

	var got []string
	for _, s := range seats {
		got = append(got, s.SeatNumber)
	}
	assert.Equal(t, []string{"A1", "A2", "B1", "B2"}, got)
}

func TestMemorySeats_Transition(t *testing.T) {
	store, scheduleID := seededStore(t)
	ctx := context.Background()
	seats := store.Seats()

	n, err := seats.Transition(ctx, scheduleID, []string{"A1", "A2", "A1"}, []domain.SeatStatus{domain.SeatStatusAvailable}, domain.SeatStatusReserved)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = seats.Transition(ctx, scheduleID, []string{"A1", "B1"}, []domain.SeatStatus{domain.SeatStatusAvailable}, domain.SeatStatusReserved)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "A1 is already reserved")

	n, err = seats.Transition(ctx, scheduleID, []string{"Z9"}, []domain.SeatStatus{domain.SeatStatusAvailable}, domain.SeatStatusReserved)
	require.NoError(t, err)
	assert.Zero(t, n)

	summary, err := seats.Summary(ctx, scheduleID)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 3, summary.Reserved)
	assert.Equal(t, 1, summary.Available)
}

func TestMemoryStore_InTxRollsBack(t *testing.T) {
	store, scheduleID := seededStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.InTx(ctx, func(tx Repositories) error {
		if _, err := tx.Seats().Transition(ctx, scheduleID, []string{"A1"}, []domain.SeatStatus{domain.SeatStatusAvailable}, domain.SeatStatusReserved); err != nil {
			return err
		}
		if err := tx.Bookings().Create(ctx, newPendingBooking(scheduleID, "A1")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	summary, err := store.Seats().Summary(ctx, scheduleID)
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Available)

	list, total, err := store.Bookings().List(ctx, "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Zero(t, total)
}

func TestMemoryStore_InTxCommits(t *testing.T) {
	store, scheduleID := seededStore(t)
	ctx := context.Background()
	booking := newPendingBooking(scheduleID, "A1", "A2")

	err := store.InTx(ctx, func(tx Repositories) error {
		return tx.Bookings().Create(ctx, booking)
	})
	require.NoError(t, err)

	got, err := store.Bookings().GetByID(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, got.SeatNumbers)

	got.SeatNumbers[0] = "mutated"
	again, _ := store.Bookings().GetByID(ctx, booking.ID)
	assert.Equal(t, "A1", again.SeatNumbers[0], "returned bookings are copies")
}

func TestMemoryBookings_SeatLinkedOnce(t *testing.T) {
	store, scheduleID := seededStore(t)
	ctx := context.Background()

	require.NoError(t, store.Bookings().Create(ctx, newPendingBooking(scheduleID, "A1")))
	err := store.Bookings().Create(ctx, newPendingBooking(scheduleID, "A1", "B1"))
	assert.ErrorIs(t, err, domain.ErrSeatUnavailable)

	first, _, _ := store.Bookings().List(ctx, "", 10, 0)
	require.Len(t, first, 1)
	require.NoError(t, store.Bookings().DeleteLinks(ctx, first[0].ID))
	assert.NoError(t, store.Bookings().Create(ctx, newPendingBooking(scheduleID, "A1")))
}

func TestMemoryBookings_ListByUserPaging(t *testing.T) {
	store, scheduleID := seededStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, seat := range []string{"A1", "A2", "B1"} {
		b := newPendingBooking(scheduleID, seat)
		b.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.Bookings().Create(ctx, b))
	}

	page1, total, err := store.Bookings().ListByUser(ctx, "u-1", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page1, 2)
	assert.Equal(t, []string{"B1"}, page1[0].SeatNumbers, "newest first")

	page2, _, err := store.Bookings().ListByUser(ctx, "u-1", 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, []string{"A1"}, page2[0].SeatNumbers)

	none, total, err := store.Bookings().ListByUser(ctx, "someone-else", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Zero(t, total)
}

func TestMemoryBookings_ListExpiredHolds(t *testing.T) {
	store, scheduleID := seededStore(t)
	ctx := context.Background()
	old := time.Now().Add(-time.Hour)

	stale := newPendingBooking(scheduleID, "A1")
	stale.CreatedAt = old
	paid := newPendingBooking(scheduleID, "A2")
	paid.CreatedAt = old
	fresh := newPendingBooking(scheduleID, "B1")

	for _, b := range []*domain.Booking{stale, paid, fresh} {
		require.NoError(t, store.Bookings().Create(ctx, b))
	}
	_, err := store.Payments().Record(ctx, domain.NewPayment(paid.ID, "paymongo", "pi_1", paid.Amount, domain.PaymentStatusSuccess, time.Now()))
	require.NoError(t, err)

	holds, err := store.Bookings().ListExpiredHolds(ctx, time.Now().Add(-15*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, stale.ID, holds[0].ID)
}

func TestMemoryPayments_Record(t *testing.T) {
	store, scheduleID := seededStore(t)
	ctx := context.Background()
	booking := newPendingBooking(scheduleID, "A1")
	require.NoError(t, store.Bookings().Create(ctx, booking))

	payments := store.Payments()
	now := time.Now()

	inserted, err := payments.Record(ctx, domain.NewPayment(booking.ID, "paymongo", "pi_1", 35000, domain.PaymentStatusFailed, now))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = payments.Record(ctx, domain.NewPayment(booking.ID, "paymongo", "pi_1", 35000, domain.PaymentStatusFailed, now))
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate failure is a no-op")

	inserted, err = payments.Record(ctx, domain.NewPayment(booking.ID, "paymongo", "pi_1", 35000, domain.PaymentStatusSuccess, now))
	require.NoError(t, err)
	assert.True(t, inserted, "success upgrades a failed row")

	inserted, err = payments.Record(ctx, domain.NewPayment(booking.ID, "paymongo", "pi_1", 35000, domain.PaymentStatusSuccess, now))
	require.NoError(t, err)
	assert.False(t, inserted)

	_, err = payments.Record(ctx, domain.NewPayment(booking.ID, "paymongo", "pi_2", 35000, domain.PaymentStatusSuccess, now))
	assert.Error(t, err, "one successful payment per booking")

	list, err := payments.ListByBooking(ctx, booking.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.PaymentStatusSuccess, list[0].Status)

	missing, err := payments.GetByProviderRef(ctx, "paymongo", "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryCatalog_AvailableSeatsClamp(t *testing.T) {
	store, scheduleID := seededStore(t)
	ctx := context.Background()
	catalog := store.Catalog()

	require.NoError(t, catalog.SetAvailableSeats(ctx, scheduleID, 2))
	require.NoError(t, catalog.AdjustAvailableSeats(ctx, scheduleID, -5))

	s, err := catalog.GetSchedule(ctx, scheduleID)
	require.NoError(t, err)
	assert.Zero(t, s.AvailableSeats)

	assert.ErrorIs(t, catalog.AdjustAvailableSeats(ctx, "missing", 1), domain.ErrScheduleNotFound)
	_, err = catalog.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestMemoryCatalog_ChildSchedules(t *testing.T) {
	store, scheduleID := seededStore(t)
	ctx := context.Background()

	ids, err := store.Catalog().ScheduleIDsByBus(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, []string{scheduleID}, ids)

	_, err = store.Catalog().ScheduleIDsByRoute(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrRouteNotFound)

	require.NoError(t, store.Catalog().DeleteRoute(ctx, "r-1"))
	assert.ErrorIs(t, store.Catalog().DeleteRoute(ctx, "r-1"), domain.ErrRouteNotFound)
}

func TestMemoryStore_ConcurrentTransactions(t *testing.T) {
	store, scheduleID := seededStore(t)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.InTx(ctx, func(tx Repositories) error {
				n, err := tx.Seats().Transition(ctx, scheduleID, []string{"A1", "B2"}, []domain.SeatStatus{domain.SeatStatusAvailable}, domain.SeatStatusReserved)
				if err != nil {
					return err
				}
				if n != 2 {
					return domain.ErrSeatUnavailable
				}
				return nil
			})
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	summary, _ := store.Seats().Summary(ctx, scheduleID)
	assert.Equal(t, 2, summary.Reserved)
}

func TestMemoryPayments_RecordRefundDue(t *testing.T) {
	store, scheduleID := seededStore(t)
	ctx := context.Background()
	booking := newPendingBooking(scheduleID, "A1")
	require.NoError(t, store.Bookings().Create(ctx, booking))

	payments := store.Payments()
	now := time.Now()

	_, err := payments.Record(ctx, domain.NewPayment(booking.ID, "paymongo", "pi_1", 35000, domain.PaymentStatusSuccess, now))
	require.NoError(t, err)

	inserted, err := payments.Record(ctx, domain.NewPayment(booking.ID, "paymongo", "pi_2", 35000, domain.PaymentStatusFailed, now))
	require.NoError(t, err)
	require.True(t, inserted)

	inserted, err = payments.Record(ctx, domain.NewPayment(booking.ID, "paymongo", "pi_2", 35000, domain.PaymentStatusRefundDue, now))
	require.NoError(t, err)
	assert.True(t, inserted, "refund due upgrades a failed row next to the booking's success")

	inserted, err = payments.Record(ctx, domain.NewPayment(booking.ID, "paymongo", "pi_2", 35000, domain.PaymentStatusRefundDue, now))
	require.NoError(t, err)
	assert.False(t, inserted)

	p, err := payments.GetByProviderRef(ctx, "paymongo", "pi_2")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefundDue, p.Status)
	assert.True(t, p.IsCaptured())
}
