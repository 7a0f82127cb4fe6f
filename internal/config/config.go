// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Payment processor
	ProcessorMode          string // "mock" or "live"
	ProcessorKeyID         string
	ProcessorKeySecret     string
	ProcessorWebhookSecret string // HMAC secret for inbound webhook verification
	ProcessorTimeout       time.Duration
	Currency               string

	// Escrow
	PendingMaxAge time.Duration // how long a PENDING reservation may sit before the sweep expires it

	// Tracing
	OTLPEndpoint string
}

const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultProcessorMode    = "mock"
	DefaultCurrency         = "INR"
	DefaultProcessorTimeout = 10 * time.Second
	DefaultPendingMaxAge    = 30 * time.Minute
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                   getEnv("PORT", DefaultPort),
		Env:                    getEnv("ENV", DefaultEnv),
		LogLevel:               getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:            os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ProcessorMode:          getEnv("PROCESSOR_MODE", DefaultProcessorMode),
		ProcessorKeyID:         os.Getenv("PROCESSOR_KEY_ID"),
		ProcessorKeySecret:     os.Getenv("PROCESSOR_KEY_SECRET"),
		ProcessorWebhookSecret: os.Getenv("PROCESSOR_WEBHOOK_SECRET"),
		ProcessorTimeout:       getEnvSeconds("PROCESSOR_TIMEOUT_SECONDS", DefaultProcessorTimeout),
		Currency:               getEnv("CURRENCY", DefaultCurrency),
		PendingMaxAge:          getEnvMinutes("PENDING_MAX_AGE_MINUTES", DefaultPendingMaxAge),
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	switch c.ProcessorMode {
	case "mock":
		// Mock mode needs no credentials.
	case "live":
		if c.ProcessorKeyID == "" || c.ProcessorKeySecret == "" {
			return fmt.Errorf("PROCESSOR_KEY_ID and PROCESSOR_KEY_SECRET are required in live mode")
		}
		if c.ProcessorWebhookSecret == "" {
			return fmt.Errorf("PROCESSOR_WEBHOOK_SECRET is required in live mode")
		}
	default:
		return fmt.Errorf("PROCESSOR_MODE must be \"mock\" or \"live\", got %q", c.ProcessorMode)
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil && i > 0 {
			return time.Duration(i) * time.Second
		}
	}
	return defaultValue
}

func getEnvMinutes(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil && i > 0 {
			return time.Duration(i) * time.Minute
		}
	}
	return defaultValue
}
