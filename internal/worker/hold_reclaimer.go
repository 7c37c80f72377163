package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/moshiverse/busmate/pkg/logger"
	"go.uber.org/zap"
)

// HoldExpirer cancels stale PENDING bookings and returns how many it cancelled
type HoldExpirer interface {
	ExpireHolds(ctx context.Context, limit int) (int, error)
}

// HoldReclaimerConfig contains configuration for the hold reclaimer
type HoldReclaimerConfig struct {
	// ScanInterval is the interval between scans for stale holds
	ScanInterval time.Duration
	// BatchSize is the number of holds expired per scan
	BatchSize int
}

// DefaultHoldReclaimerConfig returns default configuration
func DefaultHoldReclaimerConfig() *HoldReclaimerConfig {
	return &HoldReclaimerConfig{
		ScanInterval: 30 * time.Second,
		BatchSize:    100,
	}
}

// HoldReclaimer periodically returns the seats of unpaid bookings to the
// inventory
type HoldReclaimer struct {
	expirer HoldExpirer
	config  *HoldReclaimerConfig
	log     *logger.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	totalExpired     int64
	lastScanTime     time.Time
	lastExpiredCount int
	lastError        string
}

// NewHoldReclaimer creates a new hold reclaimer
func NewHoldReclaimer(expirer HoldExpirer, config *HoldReclaimerConfig) *HoldReclaimer {
	defaults := DefaultHoldReclaimerConfig()
	if config == nil {
		config = defaults
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = defaults.ScanInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	return &HoldReclaimer{
		expirer: expirer,
		config:  config,
		log:     logger.Get(),
		stopCh:  make(chan struct{}),
	}
}

// Start starts the reclaimer loop
func (w *HoldReclaimer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("hold reclaimer already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("starting hold reclaimer",
		zap.Duration("interval", w.config.ScanInterval),
		zap.Int("batch_size", w.config.BatchSize),
	)

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

// Stop stops the reclaimer and waits for an in-flight scan to finish
func (w *HoldReclaimer) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("hold reclaimer stopped")
}

func (w *HoldReclaimer) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce expires one batch of stale holds. A full batch is followed by
// another scan straight away so a backlog drains without waiting a tick.
func (w *HoldReclaimer) RunOnce(ctx context.Context) int {
	total := 0
	for {
		n, err := w.expirer.ExpireHolds(ctx, w.config.BatchSize)
		w.record(n, err)
		if err != nil {
			w.log.Error("failed to expire holds", zap.Error(err))
			return total
		}
		total += n
		if n < w.config.BatchSize || ctx.Err() != nil {
			break
		}
	}
	if total > 0 {
		w.log.Info("expired stale holds", zap.Int("count", total))
	}
	return total
}

func (w *HoldReclaimer) record(n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastScanTime = time.Now()
	w.lastExpiredCount = n
	w.totalExpired += int64(n)
	w.lastError = ""
	if err != nil {
		w.lastError = err.Error()
	}
}

// GetStats returns reclaimer statistics
func (w *HoldReclaimer) GetStats() *HoldReclaimerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &HoldReclaimerStats{
		IsRunning:        w.running,
		TotalExpired:     w.totalExpired,
		LastScanTime:     w.lastScanTime,
		LastExpiredCount: w.lastExpiredCount,
		LastError:        w.lastError,
	}
}

// HoldReclaimerStats contains reclaimer statistics
type HoldReclaimerStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalExpired     int64     `json:"total_expired"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastExpiredCount int       `json:"last_expired_count"`
	LastError        string    `json:"last_error,omitempty"`
}
