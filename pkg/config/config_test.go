package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "busmate", cfg.App.Name)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "paymongo", cfg.Payment.Gateway)
	assert.Equal(t, "PHP", cfg.Payment.Currency)
	assert.Equal(t, int64(2000), cfg.Payment.MinAmount)
	assert.Equal(t, "https://api.paymongo.com/v1", cfg.Payment.PayMongoBaseURL)
	assert.Equal(t, 15*time.Minute, cfg.Booking.HoldTTL)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("PAYMENT_GATEWAY", "MOCK")
	t.Setenv("BOOKING_HOLD_TTL", "0s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "mock", cfg.Payment.Gateway)
	assert.Equal(t, time.Duration(0), cfg.Booking.HoldTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadWithPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_DBNAME=busmate_test\nPAYMENT_MIN_AMOUNT=5000\n"), 0o600))

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)
	assert.Equal(t, "busmate_test", cfg.Database.DBName)
	assert.Equal(t, int64(5000), cfg.Payment.MinAmount)

	_, err = LoadWithPath(filepath.Join(dir, "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:      AppConfig{Name: "busmate", Environment: "development"},
			Server:   ServerConfig{Port: 8080},
			Database: DatabaseConfig{Host: "localhost", DBName: "busmate"},
			JWT:      JWTConfig{Secret: defaultJWTSecret},
			Payment:  PaymentConfig{Gateway: "paymongo", MinAmount: 2000},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "missing db", mutate: func(c *Config) { c.Database.DBName = "" }, wantErr: true},
		{name: "default secret in production", mutate: func(c *Config) {
			c.App.Environment = "production"
			c.Payment.PayMongoSecretKey = "sk_live"
		}, wantErr: true},
		{name: "stripe without key", mutate: func(c *Config) { c.Payment.Gateway = "stripe" }, wantErr: true},
		{name: "mock in production", mutate: func(c *Config) {
			c.App.Environment = "production"
			c.JWT.Secret = "real"
			c.Payment.Gateway = "mock"
		}, wantErr: true},
		{name: "unknown gateway", mutate: func(c *Config) { c.Payment.Gateway = "paypal" }, wantErr: true},
		{name: "negative hold ttl", mutate: func(c *Config) { c.Booking.HoldTTL = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_URL(t *testing.T) {
	d := &DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "busmate", SSLMode: "disable"}
	assert.Equal(t, "pgx5://u:p@db:5433/busmate?sslmode=disable", d.URL())
}
