package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	DatabaseURL     string
	TelegramToken   string
	LogLevel        string
	Port            string
	TickInterval    time.Duration
	DefaultTimezone string
	MigrationsPath  string
}

// Load loads configuration from environment variables. TELEGRAM_TOKEN is
// optional: without it every delivery attempt fails and the retry/pause
// policy takes over, which keeps the scheduler itself healthy.
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken:   os.Getenv("TELEGRAM_TOKEN"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		Port:            getEnvOrDefault("PORT", "8080"),
		DefaultTimezone: getEnvOrDefault("DEFAULT_TIMEZONE", "Asia/Singapore"),
		MigrationsPath:  getEnvOrDefault("MIGRATIONS_PATH", "migrations"),
	}

	if cfg.DatabaseURL = os.Getenv("DATABASE_URL"); cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	seconds, err := strconv.Atoi(getEnvOrDefault("TICK_INTERVAL_SECONDS", "60"))
	if err != nil || seconds < 1 {
		return nil, fmt.Errorf("TICK_INTERVAL_SECONDS must be a positive integer")
	}
	cfg.TickInterval = time.Duration(seconds) * time.Second

	return cfg, nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
