package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/moshiverse/busmate/pkg/logger"
	"github.com/moshiverse/busmate/pkg/retry"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Nil is the error returned for a missing key
const Nil = redis.Nil

const healthCheckTimeout = 5 * time.Second

// Config holds Redis connection configuration
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration

	// MaxRetries bounds the startup ping, not individual commands
	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultConfig returns default Redis configuration
func DefaultConfig() *Config {
	return &Config{
		Host:          "localhost",
		Port:          6379,
		PoolSize:      50,
		MinIdleConns:  5,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		PoolTimeout:   4 * time.Second,
		MaxRetries:    3,
		RetryInterval: time.Second,
	}
}

// Addr returns host:port
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) options() *redis.Options {
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
		PoolTimeout:  c.PoolTimeout,
	}
}

// Client owns the shared go-redis client used by the seat cache, the webhook
// deduper and the idempotency middleware
type Client struct {
	rdb  *redis.Client
	addr string
}

// NewClient opens the pool and waits for Redis to answer PING, backing off
// between attempts
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	rdb := redis.NewClient(cfg.options())

	log := logger.Get()
	res := retry.New(&retry.Config{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.RetryInterval,
		MaxInterval:     4 * cfg.RetryInterval,
		Multiplier:      2,
	}).Do(ctx, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}, func(attempt int, err error, next time.Duration) {
		log.Warn("redis ping failed, retrying",
			zap.String("addr", cfg.Addr()),
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})
	if res.Err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s after %d attempts: %w", cfg.Addr(), res.Attempts, res.LastError)
	}

	return &Client{rdb: rdb, addr: cfg.Addr()}, nil
}

// Client exposes the go-redis client for callers that issue commands
func (c *Client) Client() *redis.Client {
	return c.rdb
}

// Addr is the address the client is connected to
func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// HealthCheck is used by the readiness probe
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s unreachable: %w", c.addr, err)
	}
	return nil
}

// PoolStats reports connection pool counters
func (c *Client) PoolStats() *redis.PoolStats {
	return c.rdb.PoolStats()
}
