package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/moshiverse/busmate/internal/domain"
	"github.com/moshiverse/busmate/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	seatCacheKeyPrefix    = "busmate:seats:"
	seatGenKeyPrefix      = "busmate:seatgen:"
	webhookDedupKeyPrefix = "busmate:webhook:"

	DefaultSeatCacheTTL    = 30 * time.Second
	DefaultWebhookDedupTTL = 24 * time.Hour
)

// RedisClient is the subset of redis commands the cache and de-duplicator use
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// RedisSeatCache caches seat maps per schedule. Postgres stays the source of
// truth. Each schedule has a generation counter that Invalidate bumps; an
// entry written at an older generation is treated as a miss, so a map read
// before a concurrent seat mutation is never served after it.
type RedisSeatCache struct {
	rdb RedisClient
	ttl time.Duration
}

type seatCacheEntry struct {
	Gen   int64          `json:"gen"`
	Seats []*domain.Seat `json:"seats"`
}

// NewRedisSeatCache creates a seat cache; ttl 0 uses DefaultSeatCacheTTL
func NewRedisSeatCache(rdb RedisClient, ttl time.Duration) *RedisSeatCache {
	if ttl <= 0 {
		ttl = DefaultSeatCacheTTL
	}
	return &RedisSeatCache{rdb: rdb, ttl: ttl}
}

// GetSeats returns the cached seat map. On a miss it returns the current
// generation for the following SetSeats; -1 when redis could not be read.
func (c *RedisSeatCache) GetSeats(ctx context.Context, scheduleID string) ([]*domain.Seat, int64, bool) {
	vals, err := c.rdb.MGet(ctx, seatCacheKeyPrefix+scheduleID, seatGenKeyPrefix+scheduleID).Result()
	if err != nil || len(vals) != 2 {
		logger.Get().Warn("seat cache read failed", zap.String("schedule_id", scheduleID), zap.Error(err))
		return nil, -1, false
	}

	gen, err := parseGeneration(vals[1])
	if err != nil {
		return nil, -1, false
	}
	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, false
	}

	var entry seatCacheEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil || entry.Gen != gen {
		return nil, gen, false
	}
	return entry.Seats, gen, true
}

// SetSeats stores a seat map read at generation gen. A negative gen is ignored.
func (c *RedisSeatCache) SetSeats(ctx context.Context, scheduleID string, gen int64, seats []*domain.Seat) {
	if gen < 0 {
		return
	}
	data, err := json.Marshal(seatCacheEntry{Gen: gen, Seats: seats})
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, seatCacheKeyPrefix+scheduleID, data, c.ttl).Err(); err != nil {
		logger.Get().Warn("seat cache write failed", zap.String("schedule_id", scheduleID), zap.Error(err))
	}
}

// Invalidate bumps the generation of each schedule and drops its cached map
func (c *RedisSeatCache) Invalidate(ctx context.Context, scheduleIDs ...string) {
	if len(scheduleIDs) == 0 {
		return
	}
	keys := make([]string, len(scheduleIDs))
	for i, id := range scheduleIDs {
		if err := c.rdb.Incr(ctx, seatGenKeyPrefix+id).Err(); err != nil {
			logger.Get().Warn("seat cache generation bump failed", zap.String("schedule_id", id), zap.Error(err))
		}
		keys[i] = seatCacheKeyPrefix + id
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.Get().Warn("seat cache invalidation failed", zap.Strings("schedule_ids", scheduleIDs), zap.Error(err))
	}
}

func parseGeneration(v interface{}) (int64, error) {
	switch g := v.(type) {
	case nil:
		return 0, nil
	case string:
		return strconv.ParseInt(g, 10, 64)
	default:
		return 0, errors.New("unexpected generation value")
	}
}

// RedisWebhookDeduper claims webhook deliveries with SETNX so a redelivered
// event is dropped before it reaches the database
type RedisWebhookDeduper struct {
	rdb RedisClient
	ttl time.Duration
}

// NewRedisWebhookDeduper creates a de-duplicator; ttl 0 uses DefaultWebhookDedupTTL
func NewRedisWebhookDeduper(rdb RedisClient, ttl time.Duration) *RedisWebhookDeduper {
	if ttl <= 0 {
		ttl = DefaultWebhookDedupTTL
	}
	return &RedisWebhookDeduper{rdb: rdb, ttl: ttl}
}

// Claim reports whether key was seen for the first time. Redis errors fail
// open so the database constraints decide.
func (d *RedisWebhookDeduper) Claim(ctx context.Context, key string) bool {
	ok, err := d.rdb.SetNX(ctx, webhookDedupKeyPrefix+key, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		logger.Get().Warn("webhook dedupe claim failed, processing anyway", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}

// Release forgets key so a failed delivery can be retried
func (d *RedisWebhookDeduper) Release(ctx context.Context, key string) {
	d.rdb.Del(ctx, webhookDedupKeyPrefix+key)
}
