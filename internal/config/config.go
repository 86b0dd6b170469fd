// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
	DevMode         bool
	Retention       RetentionConfig
	Archive         ArchiveConfig
	Alerts          AlertConfig
}

// RetentionConfig controls the ledger retention job.
type RetentionConfig struct {
	Schedule              string // cron expression
	MovementRetentionDays int
	ErrorEventDays        int
	BatchSize             int
}

// ArchiveConfig points at the S3 bucket that receives purged ledger batches.
// An empty bucket disables archival (and with it the retention purge).
type ArchiveConfig struct {
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string // optional, for S3-compatible stores
}

// AlertConfig controls the stock alert sweep.
type AlertConfig struct {
	Schedule               string // cron expression
	MaintenanceHorizonDays int
}

// Load reads configuration from environment variables, consulting a .env
// file when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: time.Duration(getEnvAsInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)) * time.Minute,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		Retention: RetentionConfig{
			Schedule:              getEnv("RETENTION_SCHEDULE", "0 3 * * *"), // daily, 03:00
			MovementRetentionDays: getEnvAsInt("MOVEMENT_RETENTION_DAYS", 7*365),
			ErrorEventDays:        getEnvAsInt("ERROR_EVENT_RETENTION_DAYS", 365),
			BatchSize:             getEnvAsInt("RETENTION_BATCH_SIZE", 1000),
		},
		Archive: ArchiveConfig{
			Bucket:   getEnv("ARCHIVE_BUCKET", ""),
			Prefix:   getEnv("ARCHIVE_PREFIX", "ledger"),
			Region:   getEnv("ARCHIVE_REGION", "auto"),
			Endpoint: getEnv("ARCHIVE_ENDPOINT", ""),
		},
		Alerts: AlertConfig{
			Schedule:               getEnv("ALERT_SCHEDULE", "0 7 * * *"), // daily, 07:00
			MaintenanceHorizonDays: getEnvAsInt("MAINTENANCE_HORIZON_DAYS", 14),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if required configuration is present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Retention.MovementRetentionDays < 0 || c.Retention.ErrorEventDays < 0 {
		return fmt.Errorf("retention horizons must be non-negative")
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
