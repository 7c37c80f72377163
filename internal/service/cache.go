package service

import (
	"context"

	"github.com/moshiverse/busmate/internal/domain"
)

// SeatCache caches seat maps. Misses are normal; the database is always
// the source of truth.
type SeatCache interface {
	// GetSeats returns the cached map. On a miss gen must be read before the
	// database and passed to SetSeats.
	GetSeats(ctx context.Context, scheduleID string) (seats []*domain.Seat, gen int64, ok bool)

	// SetSeats stores seats read at gen; an Invalidate since gen makes the
	// entry unreadable
	SetSeats(ctx context.Context, scheduleID string, gen int64, seats []*domain.Seat)

	Invalidate(ctx context.Context, scheduleIDs ...string)
}

// WebhookDeduper drops redelivered webhook events
type WebhookDeduper interface {
	// Claim reports whether key is being seen for the first time
	Claim(ctx context.Context, key string) bool
	// Release forgets key so a failed delivery can be retried
	Release(ctx context.Context, key string)
}

type noOpSeatCache struct{}

// NewNoOpSeatCache returns a cache that never hits
func NewNoOpSeatCache() SeatCache { return noOpSeatCache{} }

func (noOpSeatCache) GetSeats(context.Context, string) ([]*domain.Seat, int64, bool) {
	return nil, -1, false
}
func (noOpSeatCache) SetSeats(context.Context, string, int64, []*domain.Seat) {}
func (noOpSeatCache) Invalidate(context.Context, ...string)                   {}

type noOpDeduper struct{}

// NewNoOpWebhookDeduper returns a de-duplicator that lets everything through
func NewNoOpWebhookDeduper() WebhookDeduper { return noOpDeduper{} }

func (noOpDeduper) Claim(context.Context, string) bool { return true }
func (noOpDeduper) Release(context.Context, string)    {}
