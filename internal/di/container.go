package di

import (
	"fmt"

	"github.com/moshiverse/busmate/internal/gateway"
	"github.com/moshiverse/busmate/internal/handler"
	"github.com/moshiverse/busmate/internal/repository"
	"github.com/moshiverse/busmate/internal/service"
	"github.com/moshiverse/busmate/internal/worker"
	"github.com/moshiverse/busmate/pkg/config"
	"github.com/moshiverse/busmate/pkg/database"
	"github.com/moshiverse/busmate/pkg/kafka"
	"github.com/moshiverse/busmate/pkg/redis"
	"github.com/moshiverse/busmate/pkg/retry"
)

// Container holds all dependencies of the booking service
type Container struct {
	Config *config.Config

	// Infrastructure
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer

	// Repositories and adapters
	Store          repository.Store
	SeatCache      service.SeatCache
	WebhookDeduper service.WebhookDeduper
	EventPublisher service.EventPublisher
	DLQPublisher   retry.DLQPublisher
	Gateway        gateway.PaymentGateway

	// Services
	SeatService           service.SeatService
	BookingService        service.BookingService
	ReconciliationService service.ReconciliationService
	CascadeService        service.CascadeService

	// Workers
	HoldReclaimer *worker.HoldReclaimer

	// Handlers
	HealthHandler  *handler.HealthHandler
	SeatHandler    *handler.SeatHandler
	BookingHandler *handler.BookingHandler
	PaymentHandler *handler.PaymentHandler
	AdminHandler   *handler.AdminHandler
}

// ContainerConfig contains configuration for building the container.
// Redis and Producer are optional; Store defaults to Postgres on DB.
type ContainerConfig struct {
	Config   *config.Config
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer

	Store   repository.Store
	Gateway gateway.PaymentGateway
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) (*Container, error) {
	if cfg == nil || cfg.Config == nil {
		return nil, fmt.Errorf("container config is required")
	}
	appCfg := cfg.Config

	c := &Container{
		Config:   appCfg,
		DB:       cfg.DB,
		Redis:    cfg.Redis,
		Producer: cfg.Producer,
		Store:    cfg.Store,
		Gateway:  cfg.Gateway,
	}

	if c.Store == nil {
		if c.DB == nil {
			return nil, fmt.Errorf("a database or a store is required")
		}
		c.Store = repository.NewPostgresStore(c.DB.Pool())
	}

	if c.Redis != nil {
		c.SeatCache = repository.NewRedisSeatCache(c.Redis.Client(), 0)
		c.WebhookDeduper = repository.NewRedisWebhookDeduper(c.Redis.Client(), appCfg.Payment.WebhookDedupeTTL)
	} else {
		c.SeatCache = service.NewNoOpSeatCache()
		c.WebhookDeduper = service.NewNoOpWebhookDeduper()
	}

	if c.Producer != nil {
		c.EventPublisher = service.NewKafkaEventPublisherWithProducer(c.Producer, appCfg.Kafka.BookingTopic, appCfg.App.Name)
		c.DLQPublisher = retry.NewKafkaDLQPublisher(c.Producer, appCfg.Kafka.WebhookTopic, appCfg.App.Name)
	} else {
		c.EventPublisher = service.NewNoOpEventPublisher()
		c.DLQPublisher = retry.NoOpDLQPublisher{}
	}

	if c.Gateway == nil {
		gw, err := gateway.New(GatewayConfig(appCfg))
		if err != nil {
			return nil, fmt.Errorf("failed to create payment gateway: %w", err)
		}
		c.Gateway = gw
	}

	// Initialize services
	c.SeatService = service.NewSeatService(c.Store, c.SeatCache)
	c.ReconciliationService = service.NewReconciliationService(
		c.Store,
		c.Gateway,
		c.SeatCache,
		c.EventPublisher,
		c.WebhookDeduper,
		c.DLQPublisher,
		&service.ReconciliationConfig{
			MinAmount:             appCfg.Payment.MinAmount,
			PublicKey:             publicKey(appCfg),
			PayMongoWebhookSecret: appCfg.Payment.PayMongoWebhookSecret,
			StripeWebhookSecret:   appCfg.Payment.StripeWebhookSecret,
		},
	)
	c.BookingService = service.NewBookingService(c.Store, c.SeatCache, c.EventPublisher, &service.BookingServiceConfig{
		HoldTTL:         appCfg.Booking.HoldTTL,
		DefaultCurrency: appCfg.Payment.Currency,
		EnforcePrice:    appCfg.Booking.EnforcePriceAmount,
	}, service.WithHoldSettler(c.ReconciliationService))
	c.CascadeService = service.NewCascadeService(c.Store, c.SeatCache)

	c.HoldReclaimer = worker.NewHoldReclaimer(c.BookingService, &worker.HoldReclaimerConfig{
		ScanInterval: appCfg.Booking.ReclaimInterval,
		BatchSize:    appCfg.Booking.ReclaimBatchSize,
	})

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(c.healthComponents())
	c.SeatHandler = handler.NewSeatHandler(c.SeatService)
	c.BookingHandler = handler.NewBookingHandler(c.BookingService)
	c.PaymentHandler = handler.NewPaymentHandler(c.ReconciliationService, c.BookingService)
	c.AdminHandler = handler.NewAdminHandler(c.CascadeService, c.BookingService)

	return c, nil
}

// healthComponents lists only the dependencies that were configured
func (c *Container) healthComponents() map[string]handler.HealthChecker {
	components := map[string]handler.HealthChecker{}
	if c.DB != nil {
		components["database"] = c.DB
	}
	if c.Redis != nil {
		components["redis"] = c.Redis
	}
	return components
}

// Close flushes the event publisher, which also closes the shared producer
func (c *Container) Close() error {
	c.HoldReclaimer.Stop()
	return c.EventPublisher.Close()
}

// GatewayConfig maps application config to the gateway factory's config
func GatewayConfig(cfg *config.Config) *gateway.Config {
	return &gateway.Config{
		Gateway:        cfg.Payment.Gateway,
		RequestTimeout: cfg.Payment.RequestTimeout,
		PayMongo: &gateway.PayMongoConfig{
			SecretKey: cfg.Payment.PayMongoSecretKey,
			BaseURL:   cfg.Payment.PayMongoBaseURL,
		},
		Stripe: &gateway.StripeConfig{
			SecretKey:     cfg.Payment.StripeSecretKey,
			WebhookSecret: cfg.Payment.StripeWebhookSecret,
		},
		Mock: &gateway.MockConfig{},
	}
}

func publicKey(cfg *config.Config) string {
	if cfg.Payment.Gateway == gateway.NameStripe {
		return cfg.Payment.StripePublicKey
	}
	return cfg.Payment.PayMongoPublicKey
}
