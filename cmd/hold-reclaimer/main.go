package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/moshiverse/busmate/internal/di"
	"github.com/moshiverse/busmate/internal/metrics"
	"github.com/moshiverse/busmate/pkg/config"
	"github.com/moshiverse/busmate/pkg/logger"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "expire one backlog of stale holds and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "busmate-hold-reclaimer",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLog := logger.Get()

	if cfg.Booking.HoldTTL <= 0 {
		appLog.Info("BOOKING_HOLD_TTL is 0, nothing to reclaim")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "busmate-hold-reclaimer",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warn("telemetry disabled", zap.Error(err))
	}
	if err := metrics.Init(); err != nil {
		appLog.Warn("failed to register metrics", zap.Error(err))
	}

	// The reclaimer never migrates; the API server or cmd/migrate owns the schema
	cfg.Database.AutoMigrate = false
	infra, err := di.Connect(ctx, cfg)
	if err != nil {
		appLog.Fatal("failed to connect infrastructure", zap.Error(err))
	}
	defer infra.Close()

	container, err := di.NewContainer(infra.ContainerConfig(cfg))
	if err != nil {
		appLog.Fatal("failed to build container", zap.Error(err))
	}
	defer container.Close()

	if *once {
		n := container.HoldReclaimer.RunOnce(ctx)
		appLog.Info("reclaim pass finished", zap.Int("expired", n))
		return
	}

	if err := container.HoldReclaimer.Start(ctx); err != nil {
		appLog.Fatal("failed to start hold reclaimer", zap.Error(err))
	}
	<-ctx.Done()

	appLog.Info("shutting down hold reclaimer")
	container.HoldReclaimer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = telemetry.Shutdown(shutdownCtx)
}
