package main

import (
	"flag"
	"log"

	"github.com/moshiverse/busmate/migrations"
	"github.com/moshiverse/busmate/pkg/config"
	"github.com/moshiverse/busmate/pkg/database"
	"github.com/moshiverse/busmate/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "busmate-migrate",
		Development: cfg.IsDevelopment(),
	}); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	appLog := logger.Get()

	if *down > 0 {
		if err := database.MigrateDown(migrations.FS, cfg.Database.URL(), *down); err != nil {
			appLog.Fatal("rollback failed", zap.Error(err))
		}
		appLog.Info("rolled back migrations", zap.Int("steps", *down))
		return
	}

	version, err := database.Migrate(migrations.FS, cfg.Database.URL())
	if err != nil {
		appLog.Fatal("migration failed", zap.Error(err))
	}
	appLog.Info("migrations applied", zap.Uint("version", version))
}
