package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const defaultJWTSecret = "change-me-busmate-secret"

// Config holds all application configuration
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Auth     AuthConfig     `mapstructure:"auth"`
	OTel     OTelConfig     `mapstructure:"otel"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Booking  BookingConfig  `mapstructure:"booking"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// URL returns the connection string in URL form, as golang-migrate expects it
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf("pgx5://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// KafkaConfig holds Kafka/Redpanda connection settings
type KafkaConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Brokers      []string `mapstructure:"brokers"`
	ClientID     string   `mapstructure:"client_id"`
	BookingTopic string   `mapstructure:"booking_topic"`
	WebhookTopic string   `mapstructure:"webhook_topic"`
}

// JWTConfig holds JWT verification settings
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// AuthConfig controls how the caller identity is resolved
type AuthConfig struct {
	// AllowHeaderIdentity lets X-User-ID stand in for a bearer token (gateway deployments, load tests)
	AllowHeaderIdentity bool `mapstructure:"allow_header_identity"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// PaymentConfig selects and configures the payment gateway
type PaymentConfig struct {
	Gateway        string        `mapstructure:"gateway"` // paymongo, stripe, mock
	Currency       string        `mapstructure:"currency"`
	MinAmount      int64         `mapstructure:"min_amount"` // minor units
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	PayMongoSecretKey     string `mapstructure:"paymongo_secret_key"`
	PayMongoPublicKey     string `mapstructure:"paymongo_public_key"`
	PayMongoBaseURL       string `mapstructure:"paymongo_base_url"`
	PayMongoWebhookSecret string `mapstructure:"paymongo_webhook_secret"`

	StripeSecretKey     string `mapstructure:"stripe_secret_key"`
	StripePublicKey     string `mapstructure:"stripe_public_key"`
	StripeWebhookSecret string `mapstructure:"stripe_webhook_secret"`

	WebhookDedupeTTL time.Duration `mapstructure:"webhook_dedupe_ttl"`
}

// BookingConfig holds booking ledger settings
type BookingConfig struct {
	HoldTTL            time.Duration `mapstructure:"hold_ttl"` // 0 disables hold expiry
	ReclaimInterval    time.Duration `mapstructure:"reclaim_interval"`
	ReclaimBatchSize   int           `mapstructure:"reclaim_batch_size"`
	EnforcePriceAmount bool          `mapstructure:"enforce_price_amount"`
}

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	return load(".env", false)
}

// LoadWithPath loads configuration from a specific env file, which must exist
func LoadWithPath(path string) (*Config, error) {
	return load(path, true)
}

func load(path string, required bool) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil && required {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := bindConfig(v)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "busmate")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("APP_LOG_LEVEL", "info")

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "15s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")
	v.SetDefault("SERVER_ALLOWED_ORIGINS", "http://localhost:5173")

	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "busmate")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_CONNS", 25)
	v.SetDefault("DATABASE_MIN_CONNS", 5)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")
	v.SetDefault("DATABASE_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	v.SetDefault("KAFKA_ENABLED", false)
	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CLIENT_ID", "busmate")
	v.SetDefault("KAFKA_BOOKING_TOPIC", "busmate.booking-events")
	v.SetDefault("KAFKA_WEBHOOK_TOPIC", "busmate.payment-webhooks")

	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ISSUER", "busmate")
	v.SetDefault("AUTH_ALLOW_HEADER_IDENTITY", false)

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "busmate-booking")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	v.SetDefault("PAYMENT_GATEWAY", "paymongo")
	v.SetDefault("PAYMENT_CURRENCY", "PHP")
	v.SetDefault("PAYMENT_MIN_AMOUNT", 2000)
	v.SetDefault("PAYMENT_REQUEST_TIMEOUT", "15s")
	v.SetDefault("PAYMENT_WEBHOOK_DEDUPE_TTL", "24h")
	v.SetDefault("PAYMONGO_BASE_URL", "https://api.paymongo.com/v1")

	v.SetDefault("BOOKING_HOLD_TTL", "15m")
	v.SetDefault("BOOKING_RECLAIM_INTERVAL", "30s")
	v.SetDefault("BOOKING_RECLAIM_BATCH_SIZE", 100)
	v.SetDefault("BOOKING_ENFORCE_PRICE_AMOUNT", true)
}

func bindConfig(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")
	cfg.App.LogLevel = v.GetString("APP_LOG_LEVEL")

	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")
	cfg.Server.AllowedOrigins = splitList(v.GetString("SERVER_ALLOWED_ORIGINS"))

	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxConns = v.GetInt("DATABASE_MAX_CONNS")
	cfg.Database.MinConns = v.GetInt("DATABASE_MIN_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")
	cfg.Database.AutoMigrate = v.GetBool("DATABASE_AUTO_MIGRATE")

	cfg.Redis.Enabled = v.GetBool("REDIS_ENABLED")
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	cfg.Kafka.Enabled = v.GetBool("KAFKA_ENABLED")
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.BookingTopic = v.GetString("KAFKA_BOOKING_TOPIC")
	cfg.Kafka.WebhookTopic = v.GetString("KAFKA_WEBHOOK_TOPIC")

	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")
	cfg.Auth.AllowHeaderIdentity = v.GetBool("AUTH_ALLOW_HEADER_IDENTITY")

	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	cfg.Payment.Gateway = strings.ToLower(v.GetString("PAYMENT_GATEWAY"))
	cfg.Payment.Currency = v.GetString("PAYMENT_CURRENCY")
	cfg.Payment.MinAmount = v.GetInt64("PAYMENT_MIN_AMOUNT")
	cfg.Payment.RequestTimeout = v.GetDuration("PAYMENT_REQUEST_TIMEOUT")
	cfg.Payment.WebhookDedupeTTL = v.GetDuration("PAYMENT_WEBHOOK_DEDUPE_TTL")
	cfg.Payment.PayMongoSecretKey = v.GetString("PAYMONGO_SECRET_KEY")
	cfg.Payment.PayMongoPublicKey = v.GetString("PAYMONGO_PUBLIC_KEY")
	cfg.Payment.PayMongoBaseURL = v.GetString("PAYMONGO_BASE_URL")
	cfg.Payment.PayMongoWebhookSecret = v.GetString("PAYMONGO_WEBHOOK_SECRET")
	cfg.Payment.StripeSecretKey = v.GetString("STRIPE_SECRET_KEY")
	cfg.Payment.StripePublicKey = v.GetString("STRIPE_PUBLIC_KEY")
	cfg.Payment.StripeWebhookSecret = v.GetString("STRIPE_WEBHOOK_SECRET")

	cfg.Booking.HoldTTL = v.GetDuration("BOOKING_HOLD_TTL")
	cfg.Booking.ReclaimInterval = v.GetDuration("BOOKING_RECLAIM_INTERVAL")
	cfg.Booking.ReclaimBatchSize = v.GetInt("BOOKING_RECLAIM_BATCH_SIZE")
	cfg.Booking.EnforcePriceAmount = v.GetBool("BOOKING_ENFORCE_PRICE_AMOUNT")

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return errors.New("app name is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Database.Host == "" || c.Database.DBName == "" {
		return errors.New("DATABASE_HOST and DATABASE_DBNAME are required")
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT secret is required")
	}
	if c.IsProduction() && c.JWT.Secret == defaultJWTSecret {
		return errors.New("JWT secret must be changed in production")
	}
	if c.Booking.HoldTTL < 0 {
		return fmt.Errorf("invalid BOOKING_HOLD_TTL: %s", c.Booking.HoldTTL)
	}
	if c.Payment.MinAmount < 0 {
		return fmt.Errorf("invalid PAYMENT_MIN_AMOUNT: %d", c.Payment.MinAmount)
	}

	switch c.Payment.Gateway {
	case "paymongo":
		if c.IsProduction() && c.Payment.PayMongoSecretKey == "" {
			return errors.New("PAYMONGO_SECRET_KEY is required in production")
		}
	case "stripe":
		if c.Payment.StripeSecretKey == "" {
			return errors.New("STRIPE_SECRET_KEY is required when PAYMENT_GATEWAY=stripe")
		}
	case "mock":
		if c.IsProduction() {
			return errors.New("mock payment gateway cannot be used in production")
		}
	default:
		return fmt.Errorf("unknown PAYMENT_GATEWAY: %q", c.Payment.Gateway)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
