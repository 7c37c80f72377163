package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moshiverse/busmate/internal/domain"
)

// MemoryStore implements Store in process memory. Transactions are
// serialized: InTx works on a copy of the state and swaps it in only when fn
// succeeds, so a failed fn leaves no partial writes. Used for local
// development and the service tests.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	users     map[string]domain.User
	schedules map[string]domain.Schedule
	buses     map[string]struct{}
	routes    map[string]struct{}

	seats    map[string]map[string]domain.Seat // schedule id -> seat number
	bookings map[string]domain.Booking
	links    map[string]string // schedule id + "/" + seat number -> booking id
	payments map[string]domain.Payment
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func newMemState() *memState {
	return &memState{
		users:     map[string]domain.User{},
		schedules: map[string]domain.Schedule{},
		buses:     map[string]struct{}{},
		routes:    map[string]struct{}{},
		seats:     map[string]map[string]domain.Seat{},
		bookings:  map[string]domain.Booking{},
		links:     map[string]string{},
		payments:  map[string]domain.Payment{},
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.schedules {
		c.schedules[k] = v
	}
	for k := range s.buses {
		c.buses[k] = struct{}{}
	}
	for k := range s.routes {
		c.routes[k] = struct{}{}
	}
	for sched, seats := range s.seats {
		m := make(map[string]domain.Seat, len(seats))
		for n, seat := range seats {
			m[n] = seat
		}
		c.seats[sched] = m
	}
	for k, v := range s.bookings {
		c.bookings[k] = copyBooking(v)
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	return c
}

// AddUser seeds a user
func (m *MemoryStore) AddUser(u domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[u.ID] = u
}

// AddSchedule seeds a schedule together with its route and bus
func (m *MemoryStore) AddSchedule(s domain.Schedule) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.schedules[s.ID] = s
	if s.RouteID != "" {
		m.state.routes[s.RouteID] = struct{}{}
	}
	if s.BusID != "" {
		m.state.buses[s.BusID] = struct{}{}
	}
}

// Seats returns the seat repository
func (m *MemoryStore) Seats() SeatRepository { return &memSeats{m.repos()} }

// Bookings returns the booking repository
func (m *MemoryStore) Bookings() BookingRepository { return &memBookings{m.repos()} }

// Payments returns the payment repository
func (m *MemoryStore) Payments() PaymentRepository { return &memPayments{m.repos()} }

// Catalog returns the catalog repository
func (m *MemoryStore) Catalog() CatalogRepository { return &memCatalog{m.repos()} }

func (m *MemoryStore) repos() *memRepos {
	return &memRepos{store: m}
}

// InTx runs fn against a private copy of the state and commits it when fn
// returns nil
func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := m.state.clone()
	if err := fn(&memRepos{tx: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

// memRepos binds the repositories either to the store, locking per call, or
// to the working copy of a running transaction
type memRepos struct {
	store *MemoryStore
	tx    *memState
}

func (r *memRepos) Seats() SeatRepository       { return &memSeats{r} }
func (r *memRepos) Bookings() BookingRepository { return &memBookings{r} }
func (r *memRepos) Payments() PaymentRepository { return &memPayments{r} }
func (r *memRepos) Catalog() CatalogRepository  { return &memCatalog{r} }

// with runs fn on the bound state. Writes made outside a transaction apply
// directly.
func (r *memRepos) with(fn func(s *memState) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.state)
}

func linkKey(scheduleID, seatNumber string) string {
	return scheduleID + "/" + seatNumber
}

func paymentKey(provider, ref string) string {
	return provider + "/" + ref
}

func copyBooking(b domain.Booking) domain.Booking {
	b.SeatNumbers = append([]string(nil), b.SeatNumbers...)
	if b.ConfirmedAt != nil {
		t := *b.ConfirmedAt
		b.ConfirmedAt = &t
	}
	if b.CancelledAt != nil {
		t := *b.CancelledAt
		b.CancelledAt = &t
	}
	return b
}

func toIDSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

type memSeats struct{ *memRepos }

func (r *memSeats) CreateBatch(ctx context.Context, scheduleID string, seats []domain.SeatPosition) (int, error) {
	var n int
	err := r.with(func(s *memState) error {
		if len(s.seats[scheduleID]) > 0 {
			return domain.ErrAlreadyGenerated
		}
		now := time.Now()
		m := make(map[string]domain.Seat, len(seats))
		for _, p := range seats {
			if _, dup := m[p.SeatNumber]; dup {
				return domain.ErrAlreadyGenerated
			}
			m[p.SeatNumber] = domain.Seat{
				ID:         uuid.New().String(),
				ScheduleID: scheduleID,
				SeatNumber: p.SeatNumber,
				RowIndex:   p.RowIndex,
				ColIndex:   p.ColIndex,
				Status:     domain.SeatStatusAvailable,
				UpdatedAt:  now,
			}
		}
		s.seats[scheduleID] = m
		n = len(m)
		return nil
	})
	return n, err
}

func (r *memSeats) CountBySchedule(ctx context.Context, scheduleID string) (int, error) {
	var n int
	err := r.with(func(s *memState) error {
		n = len(s.seats[scheduleID])
		return nil
	})
	return n, err
}

func (r *memSeats) ListBySchedule(ctx context.Context, scheduleID string) ([]*domain.Seat, error) {
	var out []*domain.Seat
	err := r.with(func(s *memState) error {
		for _, seat := range s.seats[scheduleID] {
			seat := seat
			out = append(out, &seat)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].RowIndex != out[j].RowIndex {
			return out[i].RowIndex < out[j].RowIndex
		}
		return out[i].ColIndex < out[j].ColIndex
	})
	return out, err
}

func (r *memSeats) Transition(ctx context.Context, scheduleID string, seatNumbers []string, from []domain.SeatStatus, to domain.SeatStatus) (int, error) {
	var n int
	err := r.with(func(s *memState) error {
		seats := s.seats[scheduleID]
		now := time.Now()
		seen := make(map[string]struct{}, len(seatNumbers))
		for _, num := range seatNumbers {
			if _, dup := seen[num]; dup {
				continue
			}
			seen[num] = struct{}{}
			seat, ok := seats[num]
			if !ok || !statusIn(seat.Status, from) {
				continue
			}
			seat.Status = to
			seat.UpdatedAt = now
			seats[num] = seat
			n++
		}
		return nil
	})
	return n, err
}

func statusIn(status domain.SeatStatus, set []domain.SeatStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func (r *memSeats) Summary(ctx context.Context, scheduleID string) (*domain.SeatSummary, error) {
	summary := &domain.SeatSummary{ScheduleID: scheduleID}
	err := r.with(func(s *memState) error {
		for _, seat := range s.seats[scheduleID] {
			summary.Add(seat.Status, 1)
		}
		return nil
	})
	return summary, err
}

func (r *memSeats) DeleteBySchedules(ctx context.Context, scheduleIDs []string) (int, error) {
	var n int
	err := r.with(func(s *memState) error {
		for _, id := range scheduleIDs {
			n += len(s.seats[id])
			delete(s.seats, id)
		}
		return nil
	})
	return n, err
}

type memBookings struct{ *memRepos }

func (r *memBookings) Create(ctx context.Context, booking *domain.Booking) error {
	return r.with(func(s *memState) error {
		if _, exists := s.bookings[booking.ID]; exists {
			return fmt.Errorf("failed to create booking: duplicate id %s", booking.ID)
		}
		for _, l := range booking.Links() {
			if _, taken := s.links[linkKey(l.ScheduleID, l.SeatNumber)]; taken {
				return domain.ErrSeatUnavailable
			}
		}
		for _, l := range booking.Links() {
			s.links[linkKey(l.ScheduleID, l.SeatNumber)] = l.BookingID
		}
		s.bookings[booking.ID] = copyBooking(*booking)
		return nil
	})
}

func (r *memBookings) get(id string) (*domain.Booking, error) {
	var out *domain.Booking
	err := r.with(func(s *memState) error {
		b, ok := s.bookings[id]
		if !ok {
			return domain.ErrBookingNotFound
		}
		c := copyBooking(b)
		out = &c
		return nil
	})
	return out, err
}

func (r *memBookings) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.get(id)
}

// GetForUpdate needs no extra locking; transactions are already serialized
func (r *memBookings) GetForUpdate(ctx context.Context, id string) (*domain.Booking, error) {
	return r.get(id)
}

func (r *memBookings) GetByPaymentReference(ctx context.Context, ref string) (*domain.Booking, error) {
	var out *domain.Booking
	err := r.with(func(s *memState) error {
		for _, b := range s.bookings {
			if b.PaymentReference != ref {
				continue
			}
			if out == nil || b.CreatedAt.After(out.CreatedAt) {
				c := copyBooking(b)
				out = &c
			}
		}
		if out == nil {
			return domain.ErrBookingNotFound
		}
		return nil
	})
	return out, err
}

func (r *memBookings) Update(ctx context.Context, booking *domain.Booking) error {
	return r.with(func(s *memState) error {
		cur, ok := s.bookings[booking.ID]
		if !ok {
			return domain.ErrBookingNotFound
		}
		cur.Status = booking.Status
		cur.PaymentReference = booking.PaymentReference
		cur.TicketToken = booking.TicketToken
		cur.ConfirmedAt = booking.ConfirmedAt
		cur.CancelledAt = booking.CancelledAt
		cur.UpdatedAt = booking.UpdatedAt
		s.bookings[booking.ID] = copyBooking(cur)
		return nil
	})
}

func (r *memBookings) DeleteLinks(ctx context.Context, bookingID string) error {
	return r.with(func(s *memState) error {
		for k, id := range s.links {
			if id == bookingID {
				delete(s.links, k)
			}
		}
		return nil
	})
}

func (r *memBookings) filter(keep func(b domain.Booking) bool) []*domain.Booking {
	var out []*domain.Booking
	_ = r.with(func(s *memState) error {
		for _, b := range s.bookings {
			if keep(b) {
				c := copyBooking(b)
				out = append(out, &c)
			}
		}
		return nil
	})
	return out
}

func page(bookings []*domain.Booking, limit, offset int) []*domain.Booking {
	sort.Slice(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})
	if offset >= len(bookings) {
		return nil
	}
	end := len(bookings)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return bookings[offset:end]
}

func (r *memBookings) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Booking, int, error) {
	all := r.filter(func(b domain.Booking) bool { return b.UserID == userID })
	return page(all, limit, offset), len(all), nil
}

func (r *memBookings) List(ctx context.Context, status domain.BookingStatus, limit, offset int) ([]*domain.Booking, int, error) {
	all := r.filter(func(b domain.Booking) bool { return status == "" || b.Status == status })
	return page(all, limit, offset), len(all), nil
}

func (r *memBookings) ListExpiredHolds(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Booking, error) {
	var out []*domain.Booking
	err := r.with(func(s *memState) error {
		paid := map[string]bool{}
		for _, p := range s.payments {
			if p.IsSuccessful() {
				paid[p.BookingID] = true
			}
		}
		for _, b := range s.bookings {
			if b.IsPending() && b.CreatedAt.Before(cutoff) && !paid[b.ID] {
				c := copyBooking(b)
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *memBookings) DeleteBySchedules(ctx context.Context, scheduleIDs []string) (int, error) {
	var n int
	err := r.with(func(s *memState) error {
		set := toIDSet(scheduleIDs)
		for k, bookingID := range s.links {
			if _, ok := set[s.bookings[bookingID].ScheduleID]; ok {
				delete(s.links, k)
			}
		}
		for id, b := range s.bookings {
			if _, ok := set[b.ScheduleID]; ok {
				delete(s.bookings, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

type memPayments struct{ *memRepos }

func (r *memPayments) Record(ctx context.Context, payment *domain.Payment) (bool, error) {
	var inserted bool
	err := r.with(func(s *memState) error {
		key := paymentKey(payment.Provider, payment.ProviderRef)
		existing, exists := s.payments[key]
		if exists && (existing.IsCaptured() || !payment.IsCaptured()) {
			return nil
		}
		if payment.IsSuccessful() {
			for k, p := range s.payments {
				if k != key && p.BookingID == payment.BookingID && p.IsSuccessful() {
					return fmt.Errorf("failed to record payment: booking %s already has a successful payment", payment.BookingID)
				}
			}
		}
		p := *payment
		if exists {
			p.ID = existing.ID
		}
		s.payments[key] = p
		inserted = true
		return nil
	})
	return inserted, err
}

func (r *memPayments) GetByProviderRef(ctx context.Context, provider, ref string) (*domain.Payment, error) {
	var out *domain.Payment
	err := r.with(func(s *memState) error {
		if p, ok := s.payments[paymentKey(provider, ref)]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

func (r *memPayments) ListByBooking(ctx context.Context, bookingID string) ([]*domain.Payment, error) {
	var out []*domain.Payment
	err := r.with(func(s *memState) error {
		for _, p := range s.payments {
			if p.BookingID == bookingID {
				p := p
				out = append(out, &p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, err
}

func (r *memPayments) DeleteBySchedules(ctx context.Context, scheduleIDs []string) (int, error) {
	var n int
	err := r.with(func(s *memState) error {
		set := toIDSet(scheduleIDs)
		for k, p := range s.payments {
			if _, ok := set[s.bookings[p.BookingID].ScheduleID]; ok {
				delete(s.payments, k)
				n++
			}
		}
		return nil
	})
	return n, err
}

type memCatalog struct{ *memRepos }

func (r *memCatalog) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.with(func(s *memState) error {
		u, ok := s.users[id]
		if !ok {
			return domain.ErrUserNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r *memCatalog) GetSchedule(ctx context.Context, id string) (*domain.Schedule, error) {
	var out *domain.Schedule
	err := r.with(func(s *memState) error {
		sched, ok := s.schedules[id]
		if !ok {
			return domain.ErrScheduleNotFound
		}
		out = &sched
		return nil
	})
	return out, err
}

func (r *memCatalog) AdjustAvailableSeats(ctx context.Context, scheduleID string, delta int) error {
	return r.with(func(s *memState) error {
		sched, ok := s.schedules[scheduleID]
		if !ok {
			return domain.ErrScheduleNotFound
		}
		sched.AvailableSeats = max(sched.AvailableSeats+delta, 0)
		s.schedules[scheduleID] = sched
		return nil
	})
}

func (r *memCatalog) SetAvailableSeats(ctx context.Context, scheduleID string, n int) error {
	return r.with(func(s *memState) error {
		sched, ok := s.schedules[scheduleID]
		if !ok {
			return domain.ErrScheduleNotFound
		}
		sched.AvailableSeats = n
		s.schedules[scheduleID] = sched
		return nil
	})
}

func (r *memCatalog) scheduleIDs(match func(domain.Schedule) bool) []string {
	var ids []string
	_ = r.with(func(s *memState) error {
		for id, sched := range s.schedules {
			if match(sched) {
				ids = append(ids, id)
			}
		}
		return nil
	})
	sort.Strings(ids)
	return ids
}

func (r *memCatalog) ScheduleIDsByBus(ctx context.Context, busID string) ([]string, error) {
	if err := r.with(func(s *memState) error {
		if _, ok := s.buses[busID]; !ok {
			return domain.ErrBusNotFound
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return r.scheduleIDs(func(s domain.Schedule) bool { return s.BusID == busID }), nil
}

func (r *memCatalog) ScheduleIDsByRoute(ctx context.Context, routeID string) ([]string, error) {
	if err := r.with(func(s *memState) error {
		if _, ok := s.routes[routeID]; !ok {
			return domain.ErrRouteNotFound
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return r.scheduleIDs(func(s domain.Schedule) bool { return s.RouteID == routeID }), nil
}

func (r *memCatalog) DeleteSchedules(ctx context.Context, ids []string) (int, error) {
	var n int
	err := r.with(func(s *memState) error {
		for _, id := range ids {
			if _, ok := s.schedules[id]; ok {
				delete(s.schedules, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *memCatalog) DeleteBus(ctx context.Context, id string) error {
	return r.with(func(s *memState) error {
		if _, ok := s.buses[id]; !ok {
			return domain.ErrBusNotFound
		}
		delete(s.buses, id)
		return nil
	})
}

func (r *memCatalog) DeleteRoute(ctx context.Context, id string) error {
	return r.with(func(s *memState) error {
		if _, ok := s.routes[id]; !ok {
			return domain.ErrRouteNotFound
		}
		delete(s.routes, id)
		return nil
	})
}
