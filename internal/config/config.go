// Package config provides configuration management for the sidepot wagering service.
package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	App           AppConfig           `mapstructure:"app" validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database" validate:"required"`
	Wallet        WalletConfig        `mapstructure:"wallet" validate:"required"`
	Wagering      WageringConfig      `mapstructure:"wagering" validate:"required"`
	Tracker       TrackerConfig       `mapstructure:"tracker" validate:"required"`
	API           APIConfig           `mapstructure:"api" validate:"required"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Stream        StreamConfig        `mapstructure:"stream"`
	Metrics       MetricsConfig       `mapstructure:"metrics" validate:"required"`
	Health        HealthConfig        `mapstructure:"health" validate:"required"`
}

// AppConfig represents application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required,environment"`
	LogLevel    string `mapstructure:"log_level" validate:"required,loglevel"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host               string `mapstructure:"host" validate:"required"`
	Port               int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Name               string `mapstructure:"name" validate:"required"`
	User               string `mapstructure:"user" validate:"required"`
	Password           string `mapstructure:"password" validate:"required"`
	SSLMode            string `mapstructure:"ssl_mode" validate:"required,oneof=disable require verify-full"`
	MaxConnections     int    `mapstructure:"max_connections" validate:"required,gt=0"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections" validate:"required,gt=0"`
	InitSchema         bool   `mapstructure:"init_schema"`
}

// WalletConfig represents user point balance configuration
type WalletConfig struct {
	StartingBalance int64 `mapstructure:"starting_balance" validate:"required,gt=0"`
}

// WageringConfig represents bet placement configuration
type WageringConfig struct {
	MaxStake           int64 `mapstructure:"max_stake" validate:"required,gt=0"`
	MaxRetryAttempts   int   `mapstructure:"max_retry_attempts" validate:"required,gte=1,lte=10"`
	RetryBackoffMillis int   `mapstructure:"retry_backoff_millis" validate:"required,gt=0"`
}

// TrackerConfig represents odds history tracking configuration
type TrackerConfig struct {
	PoolDeltaThreshold int64   `mapstructure:"pool_delta_threshold" validate:"required,gt=0"`
	ProbDeltaThreshold float64 `mapstructure:"prob_delta_threshold" validate:"required,gt=0,lt=1"`
	RetentionDays      int     `mapstructure:"retention_days" validate:"required,gt=0"`
	PruneBatchSize     int     `mapstructure:"prune_batch_size" validate:"required,gt=0"`
	PruneSchedule      string  `mapstructure:"prune_schedule" validate:"required"`
	SweepSchedule      string  `mapstructure:"sweep_schedule" validate:"required"`
}

// APIConfig represents the JSON API server configuration
type APIConfig struct {
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`
}

// NotificationsConfig represents webhook notification configuration
type NotificationsConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	WebhookURL    string  `mapstructure:"webhook_url" validate:"omitempty,url"`
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// StreamConfig represents the odds stream websocket configuration. The
// stream shares the API server's listener.
type StreamConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MetricsConfig represents metrics and monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Path    string `mapstructure:"path" validate:"required"`
}

// HealthConfig represents the health check server configuration
type HealthConfig struct {
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`
}

// IsDevelopment checks if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsStaging checks if the application is running in staging mode
func (c *Config) IsStaging() bool {
	return c.App.Environment == "staging"
}

// IsProduction checks if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// GetDatabaseDSN returns a PostgreSQL DSN string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// RetryBackoff returns the wagering retry backoff as a duration
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Wagering.RetryBackoffMillis) * time.Millisecond
}

// Retention returns the odds history retention window as a duration
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Tracker.RetentionDays) * 24 * time.Hour
}
