// Package config provides configuration management for the automation service.
// It handles loading configuration from environment variables (with optional
// .env file support) with sensible defaults and validates the configuration
// to ensure the application starts safely.
//
// Environment Variables:
//
// Application Settings:
//   - LOG_LEVEL: Logging level - debug, info, warn, error (default: info)
//
// Trigger Store:
//   - STORE_TYPE: Persistence backend - "file", "sqlite", or "memory" (default: file)
//   - STORE_PATH: JSON snapshot file path (default: ./formease_triggers.json)
//   - SQLITE_PATH: SQLite database file path (default: ./formease_automation.db)
//
// Scheduler:
//   - SCHEDULER_POLL_INTERVAL: Poll granularity for scheduled triggers (default: 60s)
//
// Webhook Server:
//   - WEBHOOK_ENABLED: Serve inbound webhook bindings (default: true)
//   - WEBHOOK_ADDR: Listen address for the webhook server (default: :8085)
//   - WEBHOOK_RATE_LIMIT: Inbound requests per second per bound path (default: 100)
//   - WEBHOOK_RATE_BURST: Token bucket burst size per bound path (default: 20)
//
// Event History:
//   - HISTORY_CAP: Maximum in-memory history entries (default: 1000)
//   - HISTORY_RETENTION: How long history entries are kept (default: 720h)
//   - HISTORY_PRUNE_INTERVAL: Retention sweep interval (default: 1h)
//
// Integration Connector:
//   - CONNECTOR_CACHE_TTL: Response cache lifetime for read calls (default: 5m)
//   - CONNECTOR_RATE_LIMIT: Requests per window per connection (default: 60)
//   - CONNECTOR_RATE_WINDOW: Rate limit window (default: 1m)
//   - CONNECTOR_MAX_CONCURRENT: In-flight request cap (default: 10)
//   - CONNECTOR_RETRY_ATTEMPTS: Attempts per request, including the first (default: 3)
//   - CONNECTOR_RETRY_DELAY: Initial backoff delay (default: 500ms)
//   - CONNECTOR_RETRY_STRATEGY: Backoff growth - fixed, linear, exponential (default: exponential)
//
// Redis (optional, backs the connector response cache when enabled):
//   - REDIS_ENABLED: Use Redis instead of the in-process cache (default: false)
//   - REDIS_ADDRESS: Redis server address (default: localhost:6379)
//   - REDIS_PASSWORD: Redis password
//   - REDIS_DB: Redis database number 0-15 (default: 0)
//
// Example usage:
//
//	config := config.Load()
//	if err := config.Validate(); err != nil {
//		log.Fatalf("Invalid configuration: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration values for the automation service. Each
// field corresponds to an environment variable documented in the package
// comment.
type Config struct {
	// Application settings
	LogLevel string // Logging level (debug, info, warn, error)

	// Trigger store
	StoreType  string // Persistence backend: "file", "sqlite", or "memory"
	StorePath  string // JSON snapshot file path
	SQLitePath string // SQLite database file path

	// Scheduler
	SchedulerPollInterval time.Duration // Poll granularity for scheduled triggers

	// Webhook server
	WebhookEnabled   bool   // Whether inbound webhook bindings are served
	WebhookAddr      string // Listen address for the webhook server
	WebhookRateLimit int    // Inbound requests per second per bound path
	WebhookRateBurst int    // Token bucket burst size per bound path

	// Event history
	HistoryCap           int           // Maximum in-memory history entries
	HistoryRetention     time.Duration // How long history entries are kept
	HistoryPruneInterval time.Duration // Retention sweep interval

	// Integration connector
	ConnectorCacheTTL      time.Duration // Response cache lifetime
	ConnectorRateLimit     int           // Requests per window per connection
	ConnectorRateWindow    time.Duration // Rate limit window
	ConnectorMaxConcurrent int           // In-flight request cap
	ConnectorRetryAttempts int           // Attempts per request, including the first
	ConnectorRetryDelay    time.Duration // Initial backoff delay
	ConnectorRetryStrategy string        // Backoff growth: fixed, linear, exponential

	// Redis, optional backing for the connector response cache
	RedisEnabled  bool   // Use Redis instead of the in-process cache
	RedisAddress  string // Redis server address (host:port)
	RedisPassword string // Redis authentication password
	RedisDB       int    // Redis database number (0-15)
}

// Load creates a Config with values from the environment, reading a .env
// file first when one is present. Call Validate() on the result before use.
func Load() *Config {
	godotenv.Load()

	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),

		StoreType:  getEnv("STORE_TYPE", "file"),
		StorePath:  getEnv("STORE_PATH", "./formease_triggers.json"),
		SQLitePath: getEnv("SQLITE_PATH", "./formease_automation.db"),

		SchedulerPollInterval: getDurationEnv("SCHEDULER_POLL_INTERVAL", 60*time.Second),

		WebhookEnabled:   getBoolEnv("WEBHOOK_ENABLED", true),
		WebhookAddr:      getEnv("WEBHOOK_ADDR", ":8085"),
		WebhookRateLimit: getIntEnv("WEBHOOK_RATE_LIMIT", 100),
		WebhookRateBurst: getIntEnv("WEBHOOK_RATE_BURST", 20),

		HistoryCap:           getIntEnv("HISTORY_CAP", 1000),
		HistoryRetention:     getDurationEnv("HISTORY_RETENTION", 720*time.Hour),
		HistoryPruneInterval: getDurationEnv("HISTORY_PRUNE_INTERVAL", time.Hour),

		ConnectorCacheTTL:      getDurationEnv("CONNECTOR_CACHE_TTL", 5*time.Minute),
		ConnectorRateLimit:     getIntEnv("CONNECTOR_RATE_LIMIT", 60),
		ConnectorRateWindow:    getDurationEnv("CONNECTOR_RATE_WINDOW", time.Minute),
		ConnectorMaxConcurrent: getIntEnv("CONNECTOR_MAX_CONCURRENT", 10),
		ConnectorRetryAttempts: getIntEnv("CONNECTOR_RETRY_ATTEMPTS", 3),
		ConnectorRetryDelay:    getDurationEnv("CONNECTOR_RETRY_DELAY", 500*time.Millisecond),
		ConnectorRetryStrategy: getEnv("CONNECTOR_RETRY_STRATEGY", "exponential"),

		RedisEnabled:  getBoolEnv("REDIS_ENABLED", false),
		RedisAddress:  getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
	}
}

// Validate checks that all configuration values are usable: known enum
// values, positive intervals and caps, and in-range Redis settings
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid LOG_LEVEL %q: must be debug, info, warn, or error", c.LogLevel)
	}

	switch c.StoreType {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("invalid STORE_TYPE %q: must be file, sqlite, or memory", c.StoreType)
	}
	if c.StoreType == "file" && c.StorePath == "" {
		return fmt.Errorf("STORE_PATH is required when STORE_TYPE is file")
	}
	if c.StoreType == "sqlite" && c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required when STORE_TYPE is sqlite")
	}

	if c.SchedulerPollInterval <= 0 {
		return fmt.Errorf("SCHEDULER_POLL_INTERVAL must be positive, got %v", c.SchedulerPollInterval)
	}

	if c.WebhookEnabled {
		if c.WebhookRateLimit <= 0 {
			return fmt.Errorf("WEBHOOK_RATE_LIMIT must be positive, got %d", c.WebhookRateLimit)
		}
		if c.WebhookRateBurst <= 0 {
			return fmt.Errorf("WEBHOOK_RATE_BURST must be positive, got %d", c.WebhookRateBurst)
		}
	}

	if c.HistoryCap <= 0 {
		return fmt.Errorf("HISTORY_CAP must be positive, got %d", c.HistoryCap)
	}
	if c.HistoryRetention <= 0 {
		return fmt.Errorf("HISTORY_RETENTION must be positive, got %v", c.HistoryRetention)
	}
	if c.HistoryPruneInterval <= 0 {
		return fmt.Errorf("HISTORY_PRUNE_INTERVAL must be positive, got %v", c.HistoryPruneInterval)
	}

	if c.ConnectorRateLimit <= 0 {
		return fmt.Errorf("CONNECTOR_RATE_LIMIT must be positive, got %d", c.ConnectorRateLimit)
	}
	if c.ConnectorMaxConcurrent <= 0 {
		return fmt.Errorf("CONNECTOR_MAX_CONCURRENT must be positive, got %d", c.ConnectorMaxConcurrent)
	}
	if c.ConnectorRetryAttempts <= 0 {
		return fmt.Errorf("CONNECTOR_RETRY_ATTEMPTS must be positive, got %d", c.ConnectorRetryAttempts)
	}
	switch c.ConnectorRetryStrategy {
	case "fixed", "linear", "exponential":
	default:
		return fmt.Errorf("invalid CONNECTOR_RETRY_STRATEGY %q: must be fixed, linear, or exponential", c.ConnectorRetryStrategy)
	}

	if c.RedisEnabled {
		if c.RedisAddress == "" {
			return fmt.Errorf("REDIS_ADDRESS is required when REDIS_ENABLED is true")
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			return fmt.Errorf("REDIS_DB must be 0-15, got %d", c.RedisDB)
		}
	}

	return nil
}

// getEnv retrieves an environment variable value or returns defaultValue
// when unset or empty
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv retrieves a boolean environment variable. Unset, empty, or
// unparsable values fall back to defaultValue.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getIntEnv retrieves an integer environment variable. Unset, empty, or
// unparsable values fall back to defaultValue.
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getDurationEnv retrieves a duration environment variable in Go duration
// syntax (e.g. "60s", "5m"). Unset, empty, or unparsable values fall back to
// defaultValue.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
