package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeatService_GenerateSeats(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		spec     domain.LayoutSpec
		want     int
		wantErr  error
	}{
		{name: "41 seater from bus type", capacity: 41, want: 41},
		{name: "53 seater explicit", spec: domain.LayoutSpec{Capacity: 53}, want: 53},
		{name: "grid matching capacity", capacity: 20, spec: domain.LayoutSpec{Rows: 5, Cols: 4}, want: 20},
		{name: "grid without capacity", spec: domain.LayoutSpec{Rows: 3, Cols: 3}, want: 9},
		{name: "grid not matching capacity", capacity: 20, spec: domain.LayoutSpec{Rows: 4, Cols: 4}, wantErr: domain.ErrInvalidLayout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMemoryStore()
			scheduleID := uuid.New().String()
			store.AddSchedule(domain.Schedule{ID: scheduleID, RouteID: "r", Capacity: tt.capacity})
			svc := NewSeatService(store, nil)

			n, err := svc.GenerateSeats(context.Background(), scheduleID, tt.spec)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				count, _ := store.Seats().CountBySchedule(context.Background(), scheduleID)
				assert.Zero(t, count)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)

			sched, _ := store.Catalog().GetSchedule(context.Background(), scheduleID)
			assert.Equal(t, tt.want, sched.AvailableSeats)
		})
	}
}

func TestSeatService_GenerateTwice(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSeatService(env.store, nil)

	_, err := svc.GenerateSeats(context.Background(), env.scheduleID, domain.LayoutSpec{})
	assert.ErrorIs(t, err, domain.ErrAlreadyGenerated)
	assert.Equal(t, 41, env.summary(t).Total)
}

func TestSeatService_GenerateUnknownSchedule(t *testing.T) {
	svc := NewSeatService(repository.NewMemoryStore(), nil)

	_, err := svc.GenerateSeats(context.Background(), "missing", domain.LayoutSpec{Capacity: 41})
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)

	_, err = svc.GenerateSeats(context.Background(), " ", domain.LayoutSpec{Capacity: 41})
	assert.ErrorIs(t, err, domain.ErrInvalidScheduleID)
}

func TestSeatService_ListSeatsLayout(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSeatService(env.store, nil)

	seats, err := svc.ListSeats(context.Background(), env.scheduleID)
	require.NoError(t, err)
	require.Len(t, seats, 41)

	assert.Equal(t, "A1", seats[0].SeatNumber)
	assert.Equal(t, "A3", seats[2].SeatNumber)
	assert.Equal(t, 3, seats[2].ColIndex, "aisle sits at column 2")
	assert.Equal(t, "J5", seats[40].SeatNumber)

	_, err = svc.ListSeats(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrScheduleNotFound)
}

func TestSeatService_ListSeatsUsesCache(t *testing.T) {
	env := newTestEnv(t)
	cache := newRecordingCache()
	svc := NewSeatService(env.store, cache)
	ctx := context.Background()

	_, err := svc.ListSeats(ctx, env.scheduleID)
	require.NoError(t, err)
	_, _, cached := cache.GetSeats(ctx, env.scheduleID)
	assert.True(t, cached)

	require.NoError(t, svc.ReserveSeats(ctx, env.scheduleID, []string{"A1"}))
	_, _, cached = cache.GetSeats(ctx, env.scheduleID)
	assert.False(t, cached, "reservation invalidates the cached map")
}

func TestSeatService_ListSeatsDropsMapReadBeforeReservation(t *testing.T) {
	env := newTestEnv(t)
	cache := newRecordingCache()
	svc := NewSeatService(env.store, cache)
	ctx := context.Background()

	// the reservation commits after the listing read the database but
	// before it wrote the cache
	cache.beforeSet = func() {
		require.NoError(t, svc.ReserveSeats(ctx, env.scheduleID, []string{"A1"}))
	}
	first, err := svc.ListSeats(ctx, env.scheduleID)
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusAvailable, seatByNumber(first, "A1").Status)

	_, _, cached := cache.GetSeats(ctx, env.scheduleID)
	assert.False(t, cached, "map from before the reservation is not served")

	second, err := svc.ListSeats(ctx, env.scheduleID)
	require.NoError(t, err)
	assert.Equal(t, domain.SeatStatusReserved, seatByNumber(second, "A1").Status)

	_, _, cached = cache.GetSeats(ctx, env.scheduleID)
	assert.True(t, cached)
}

func seatByNumber(seats []*domain.Seat, number string) *domain.Seat {
	for _, s := range seats {
		if s.SeatNumber == number {
			return s
		}
	}
	return nil
}

func TestSeatService_ReservePartialConflictRollsBack(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSeatService(env.store, nil)
	ctx := context.Background()

	require.NoError(t, svc.ReserveSeats(ctx, env.scheduleID, []string{"B2"}))

	err := svc.ReserveSeats(ctx, env.scheduleID, []string{"B1", "B2", "B3"})
	assert.ErrorIs(t, err, domain.ErrSeatUnavailable)

	summary := env.summary(t)
	assert.Equal(t, 1, summary.Reserved, "B1 and B3 must not stay reserved")
	assert.Equal(t, 40, summary.Available)
}

func TestSeatService_ReserveValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSeatService(env.store, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.ReserveSeats(ctx, env.scheduleID, nil), domain.ErrInvalidSeatSelection)
	assert.ErrorIs(t, svc.ReserveSeats(ctx, env.scheduleID, []string{" "}), domain.ErrInvalidSeatSelection)
	assert.ErrorIs(t, svc.ReserveSeats(ctx, env.scheduleID, []string{"Z9"}), domain.ErrSeatUnavailable)

	require.NoError(t, svc.ReserveSeats(ctx, env.scheduleID, []string{"c1", "C1"}), "duplicates collapse")
	assert.Equal(t, 1, env.summary(t).Reserved)
}

func TestSeatService_OccupyAndRelease(t *testing.T) {
	env := newTestEnv(t)
	svc := NewSeatService(env.store, nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.OccupySeats(ctx, env.scheduleID, []string{"D1"}), domain.ErrSeatUnavailable, "AVAILABLE cannot be occupied")

	require.NoError(t, svc.ReserveSeats(ctx, env.scheduleID, []string{"D1", "D2"}))
	require.NoError(t, svc.OccupySeats(ctx, env.scheduleID, []string{"D1"}))
	require.NoError(t, svc.OccupySeats(ctx, env.scheduleID, []string{"D1"}), "occupying twice is a no-op")

	released, err := svc.ReleaseSeats(ctx, env.scheduleID, []string{"D1", "D2"})
	require.NoError(t, err)
	assert.Equal(t, 1, released, "only the RESERVED seat goes back")

	summary := env.summary(t)
	assert.Equal(t, 1, summary.Occupied)
	assert.Equal(t, 0, summary.Reserved)
	assert.Equal(t, 40, summary.Available)
}

type failingStore struct {
	repository.Store
	err error
}

func (f failingStore) InTx(ctx context.Context, fn func(tx repository.Repositories) error) error {
	return f.err
}

func TestSeatService_StoreErrorsPropagate(t *testing.T) {
	env := newTestEnv(t)
	boom := errors.New("connection reset")
	svc := NewSeatService(failingStore{Store: env.store, err: boom}, nil)

	assert.ErrorIs(t, svc.ReserveSeats(context.Background(), env.scheduleID, []string{"A1"}), boom)
	_, err := svc.ReleaseSeats(context.Background(), env.scheduleID, []string{"A1"})
	assert.ErrorIs(t, err, boom)
}
