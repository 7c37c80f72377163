package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/moshiverse/busmate/internal/di"
	"github.com/moshiverse/busmate/internal/metrics"
	"github.com/moshiverse/busmate/pkg/config"
	"github.com/moshiverse/busmate/pkg/logger"
	"github.com/moshiverse/busmate/pkg/telemetry"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: cfg.OTel.ServiceName,
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("starting busmate booking service",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("gateway", cfg.Payment.Gateway),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
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

	infra, err := di.Connect(ctx, cfg)
	if err != nil {
		appLog.Fatal("failed to connect infrastructure", zap.Error(err))
	}
	defer infra.Close()

	container, err := di.NewContainer(infra.ContainerConfig(cfg))
	if err != nil {
		appLog.Fatal("failed to build container", zap.Error(err))
	}

	if cfg.Booking.HoldTTL > 0 {
		if err := container.HoldReclaimer.Start(ctx); err != nil {
			appLog.Fatal("failed to start hold reclaimer", zap.Error(err))
		}
	} else {
		appLog.Info("hold expiry disabled")
	}

	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := di.NewRouter(container)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		appLog.Info("listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("server forced to shutdown", zap.Error(err))
	}
	if err := container.Close(); err != nil {
		appLog.Warn("failed to close container", zap.Error(err))
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("failed to flush telemetry", zap.Error(err))
	}

	appLog.Info("server exited gracefully")
}
