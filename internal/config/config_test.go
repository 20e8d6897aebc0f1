// Package config provides configuration management for the sidepot wagering service.
package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

const (
	validConfigPath       = "testdata/valid_config.yaml"
	expansionConfigPath   = "testdata/expansion_config.yaml"
	nonexistentConfigPath = "testdata/nonexistent_config.yaml"
)

// TestLoadConfigSuccess tests loading a valid configuration file
func TestLoadConfigSuccess(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf("expected no error loading config, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}

	if cfg.App.Name != "sidepot" {
		t.Errorf("expected app name 'sidepot', got '%s'", cfg.App.Name)
	}
	if cfg.App.Environment != "development" {
		t.Errorf("expected environment 'development', got '%s'", cfg.App.Environment)
	}
	if cfg.Database.Host != "localhost" {
		t.Errorf("expected database host 'localhost', got '%s'", cfg.Database.Host)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("expected database port 5432, got %d", cfg.Database.Port)
	}
	if cfg.Wallet.StartingBalance != 1000 {
		t.Errorf("expected starting balance 1000, got %d", cfg.Wallet.StartingBalance)
	}
	if cfg.Tracker.RetentionDays != 30 {
		t.Errorf("expected retention 30 days, got %d", cfg.Tracker.RetentionDays)
	}
}

// TestLoadConfigFileNotFound tests handling of missing configuration file
func TestLoadConfigFileNotFound(t *testing.T) {
	_, err := Load(nonexistentConfigPath)
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

// TestLoadConfigEnvironmentVariables tests environment variable override
func TestLoadConfigEnvironmentVariables(t *testing.T) {
	os.Setenv("SIDEPOT_APP_NAME", "test-app")
	defer os.Unsetenv("SIDEPOT_APP_NAME")

	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.App.Name != "test-app" {
		t.Errorf("expected app name 'test-app' from environment, got '%s'", cfg.App.Name)
	}
}

// TestLoadConfigExpansion tests ${VAR} expansion inside the YAML file
func TestLoadConfigExpansion(t *testing.T) {
	os.Setenv("TEST_DB_PASSWORD", "expanded_secret_value")
	defer os.Unsetenv("TEST_DB_PASSWORD")

	cfg, err := Load(expansionConfigPath)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Database.Password != "expanded_secret_value" {
		t.Errorf("expected expanded password, got '%s'", cfg.Database.Password)
	}
}

// TestLoadWithDefaultsMissingFile tests that defaults apply without a file
func TestLoadWithDefaultsMissingFile(t *testing.T) {
	cfg, err := LoadWithDefaults(nonexistentConfigPath)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.App.Name != "sidepot" {
		t.Errorf("expected default app name 'sidepot', got '%s'", cfg.App.Name)
	}
	if cfg.Wagering.MaxStake != 100000 {
		t.Errorf("expected default max stake 100000, got %d", cfg.Wagering.MaxStake)
	}
	if cfg.Tracker.PruneSchedule != "0 3 * * *" {
		t.Errorf("expected default prune schedule, got '%s'", cfg.Tracker.PruneSchedule)
	}
}

// TestValidateValidConfig tests validation of a complete valid configuration
func TestValidateValidConfig(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

// TestValidateInvalidEnvironment tests the custom environment rule
func TestValidateInvalidEnvironment(t *testing.T) {
	cfg, _ := Load(validConfigPath)
	cfg.App.Environment = "invalid"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error for invalid environment")
	}
	if !strings.Contains(err.Error(), "Environment") {
		t.Errorf("expected environment in error, got: %v", err)
	}
}

// TestValidateInvalidLogLevel tests the custom log level rule
func TestValidateInvalidLogLevel(t *testing.T) {
	cfg, _ := Load(validConfigPath)
	cfg.App.LogLevel = "verbose"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected validation error for invalid log level")
	}
}

// TestValidateCrossField tests the cross-field rules
func TestValidateCrossField(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "production requires ssl",
			mutate: func(c *Config) {
				c.App.Environment = "production"
				c.Database.SSLMode = "disable"
			},
		},
		{
			name: "idle connections exceed max",
			mutate: func(c *Config) {
				c.Database.MaxIdleConnections = 50
				c.Database.MaxConnections = 10
			},
		},
		{
			name: "notifications enabled without webhook",
			mutate: func(c *Config) {
				c.Notifications.Enabled = true
				c.Notifications.WebhookURL = ""
			},
		},
		{
			name: "invalid prune schedule",
			mutate: func(c *Config) {
				c.Tracker.PruneSchedule = "not a schedule"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(validConfigPath)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

// TestGetDatabaseDSN tests DSN construction
func TestGetDatabaseDSN(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	dsn := cfg.GetDatabaseDSN()
	if !strings.HasPrefix(dsn, "postgres://") {
		t.Errorf("expected postgres DSN, got '%s'", dsn)
	}
	if !strings.Contains(dsn, "localhost:5432/sidepot") {
		t.Errorf("expected host and database in DSN, got '%s'", dsn)
	}
	if !strings.Contains(dsn, "sslmode=disable") {
		t.Errorf("expected sslmode in DSN, got '%s'", dsn)
	}
}

// TestDurationHelpers tests the duration accessor helpers
func TestDurationHelpers(t *testing.T) {
	cfg, err := Load(validConfigPath)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.RetryBackoff() != 25*time.Millisecond {
		t.Errorf("expected 25ms retry backoff, got %v", cfg.RetryBackoff())
	}
	if cfg.Retention() != 30*24*time.Hour {
		t.Errorf("expected 30-day retention, got %v", cfg.Retention())
	}
}

// TestEnvironmentHelpers tests the environment predicate helpers
func TestEnvironmentHelpers(t *testing.T) {
	cfg := &Config{App: AppConfig{Environment: "production"}}
	if !cfg.IsProduction() || cfg.IsDevelopment() || cfg.IsStaging() {
		t.Error("expected production environment predicates")
	}

	cfg.App.Environment = "development"
	if !cfg.IsDevelopment() || cfg.IsProduction() {
		t.Error("expected development environment predicates")
	}
}
