package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/internal/repository"
	"github.com/moshiverse/busmate/pkg/retry"
	"github.com/stretchr/testify/require"
)

const seatPrice int64 = 35000

// MockEventPublisher records published events
type MockEventPublisher struct {
	mu        sync.Mutex
	created   []*domain.Booking
	confirmed []*domain.Booking
	cancelled []*domain.Booking
	expired   []*domain.Booking
	err       error
}

func NewMockEventPublisher() *MockEventPublisher { return &MockEventPublisher{} }

func (m *MockEventPublisher) record(list *[]*domain.Booking, b *domain.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	*list = append(*list, b)
	return nil
}

func (m *MockEventPublisher) PublishBookingCreated(ctx context.Context, b *domain.Booking) error {
	return m.record(&m.created, b)
}

func (m *MockEventPublisher) PublishBookingConfirmed(ctx context.Context, b *domain.Booking) error {
	return m.record(&m.confirmed, b)
}

func (m *MockEventPublisher) PublishBookingCancelled(ctx context.Context, b *domain.Booking) error {
	return m.record(&m.cancelled, b)
}

func (m *MockEventPublisher) PublishBookingExpired(ctx context.Context, b *domain.Booking) error {
	return m.record(&m.expired, b)
}

func (m *MockEventPublisher) Close() error { return nil }

func (m *MockEventPublisher) counts() (created, confirmed, cancelled, expired int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.created), len(m.confirmed), len(m.cancelled), len(m.expired)
}

// recordingCache is an in-memory SeatCache that remembers invalidations.
// beforeSet runs ahead of every SetSeats, outside the lock.
type recordingCache struct {
	mu          sync.Mutex
	entries     map[string]cachedSeats
	gens        map[string]int64
	invalidated []string
	beforeSet   func()
}

type cachedSeats struct {
	gen   int64
	seats []*domain.Seat
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: map[string]cachedSeats{}, gens: map[string]int64{}}
}

func (c *recordingCache) GetSeats(ctx context.Context, id string) ([]*domain.Seat, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || e.gen != c.gens[id] {
		return nil, c.gens[id], false
	}
	return e.seats, e.gen, true
}

func (c *recordingCache) SetSeats(ctx context.Context, id string, gen int64, seats []*domain.Seat) {
	if hook := c.beforeSet; hook != nil {
		c.beforeSet = nil
		hook()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = cachedSeats{gen: gen, seats: seats}
}

func (c *recordingCache) Invalidate(ctx context.Context, ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.gens[id]++
		delete(c.entries, id)
		c.invalidated = append(c.invalidated, id)
	}
}

// memoryDeduper is a WebhookDeduper backed by a map
type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemoryDeduper() *memoryDeduper { return &memoryDeduper{seen: map[string]bool{}} }

func (d *memoryDeduper) Claim(ctx context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false
	}
	d.seen[key] = true
	return true
}

func (d *memoryDeduper) Release(ctx context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
}

// recordingDLQ keeps dead letters in memory
type recordingDLQ struct {
	mu      sync.Mutex
	letters []*retry.DeadLetter
}

func (d *recordingDLQ) PublishToDLQ(ctx context.Context, msg *retry.DeadLetter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.letters = append(d.letters, msg)
	return nil
}

func (d *recordingDLQ) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.letters)
}

type testEnv struct {
	store      *repository.MemoryStore
	userID     string
	scheduleID string
	routeID    string
	busID      string
}

// newTestEnv seeds a user and a priced 41-seat schedule with generated seats
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:      repository.NewMemoryStore(),
		userID:     uuid.New().String(),
		scheduleID: uuid.New().String(),
		routeID:    uuid.New().String(),
		busID:      uuid.New().String(),
	}
	env.store.AddUser(domain.User{ID: env.userID, Name: "Maria Santos", Email: "maria@example.com"})
	env.store.AddSchedule(domain.Schedule{
		ID:            env.scheduleID,
		RouteID:       env.routeID,
		BusID:         env.busID,
		Origin:        "Cebu",
		Destination:   "Moalboal",
		TravelDate:    time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC),
		DepartureTime: time.Date(0, 1, 1, 7, 30, 0, 0, time.UTC),
		Price:         seatPrice,
		BusNumber:     "BM-101",
		BusType:       "Deluxe",
		Capacity:      41,
	})

	_, err := NewSeatService(env.store, nil).GenerateSeats(context.Background(), env.scheduleID, domain.LayoutSpec{})
	require.NoError(t, err)
	return env
}

func (e *testEnv) summary(t *testing.T) *domain.SeatSummary {
	t.Helper()
	s, err := e.store.Seats().Summary(context.Background(), e.scheduleID)
	require.NoError(t, err)
	return s
}

func (e *testEnv) availableCounter(t *testing.T) int {
	t.Helper()
	s, err := e.store.Catalog().GetSchedule(context.Background(), e.scheduleID)
	require.NoError(t, err)
	return s.AvailableSeats
}

func (e *testEnv) book(t *testing.T, svc BookingService, seats ...string) *domain.Booking {
	t.Helper()
	b, err := svc.CreateBooking(context.Background(), &CreateBookingInput{
		UserID:      e.userID,
		ScheduleID:  e.scheduleID,
		Amount:      seatPrice * int64(len(seats)),
		SeatNumbers: seats,
	})
	require.NoError(t, err)
	return b
}
