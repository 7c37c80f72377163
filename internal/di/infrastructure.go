package di

import (
	"context"
	"fmt"
	"time"

	"github.com/moshiverse/busmate/migrations"
	"github.com/moshiverse/busmate/pkg/config"
	"github.com/moshiverse/busmate/pkg/database"
	"github.com/moshiverse/busmate/pkg/kafka"
	"github.com/moshiverse/busmate/pkg/logger"
	"github.com/moshiverse/busmate/pkg/redis"
	"go.uber.org/zap"
)

// Infrastructure holds the external connections shared by the binaries.
// Redis and Producer stay nil when disabled or unreachable.
type Infrastructure struct {
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer
}

// Connect opens Postgres, which is required, and the optional Redis and
// Kafka connections. Pending migrations are applied when AutoMigrate is set.
func Connect(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	log := logger.Get()
	infra := &Infrastructure{}

	dbCfg := database.DefaultPostgresConfig()
	dbCfg.Host = cfg.Database.Host
	dbCfg.Port = cfg.Database.Port
	dbCfg.User = cfg.Database.User
	dbCfg.Password = cfg.Database.Password
	dbCfg.Database = cfg.Database.DBName
	dbCfg.SSLMode = cfg.Database.SSLMode
	dbCfg.MaxConns = int32(cfg.Database.MaxConns)
	dbCfg.MinConns = int32(cfg.Database.MinConns)
	dbCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	dbCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	dbCfg.EnableTracing = cfg.OTel.Enabled

	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	infra.DB = db
	log.Info("database connected", zap.Int32("min_conns", dbCfg.MinConns), zap.Int32("max_conns", dbCfg.MaxConns))

	if cfg.Database.AutoMigrate {
		version, err := database.Migrate(migrations.FS, cfg.Database.URL())
		if err != nil {
			infra.Close()
			return nil, err
		}
		log.Info("database schema up to date", zap.Uint("version", version))
	}

	if cfg.Redis.Enabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		rc, err := redis.NewClient(ctx, redisCfg)
		if err != nil {
			log.Warn("redis connection failed, running without cache and webhook de-duplication", zap.Error(err))
		} else {
			infra.Redis = rc
			log.Info("redis connected", zap.String("addr", redisCfg.Addr()))
		}
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			ClientID:      cfg.Kafka.ClientID,
			MaxRetries:    3,
			BatchSize:     100,
			LingerMs:      10,
			RetryInterval: 2 * time.Second,
		})
		if err != nil {
			log.Warn("kafka connection failed, using no-op publishers", zap.Error(err))
		} else {
			infra.Producer = producer
			log.Info("kafka producer connected", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	}

	return infra, nil
}

// Close releases the connections. The producer is closed by the container's
// event publisher when one was built.
func (i *Infrastructure) Close() {
	if i.Redis != nil {
		if err := i.Redis.Close(); err != nil {
			logger.Get().Warn("failed to close redis", zap.Error(err))
		}
	}
	if i.DB != nil {
		i.DB.Close()
	}
}

// ContainerConfig returns the container wiring for these connections
func (i *Infrastructure) ContainerConfig(cfg *config.Config) *ContainerConfig {
	return &ContainerConfig{
		Config:   cfg,
		DB:       i.DB,
		Redis:    i.Redis,
		Producer: i.Producer,
	}
}
