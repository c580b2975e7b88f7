// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
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

	// Protocol network settings
	OnixBapURL     string // Base URL of the upstream ONIX counterparty gateway
	SubscriberID   string // Our BAP id, embedded in every envelope context
	SubscriberURI  string // Our callback base URI, embedded in every envelope context
	ProtocolDomain string // Network domain code (e.g. "energy:retail")
	CoreVersion    string // Protocol core version string
	EnvelopeTTL    string // ISO-8601 duration carried in context.ttl

	// Bridge timing
	CallbackTimeout time.Duration // How long a caller waits for the async callback
	UpstreamTimeout time.Duration // HTTP timeout for the synchronous dispatch

	// Trade settings
	WheelingCharge string // Per-kWh wheeling surcharge added to quote totals

	// Notifications
	NotifyWebhookURL    string
	NotifyWebhookSecret string

	// Security
	RateLimitRPM int

	// Tracing
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultProtocolDomain  = "energy:retail"
	DefaultCoreVersion     = "1.1.0"
	DefaultEnvelopeTTL     = "PT30S"
	DefaultCallbackTimeout = 30 * time.Second
	DefaultUpstreamTimeout = 10 * time.Second
	DefaultWheelingCharge  = "0.50"
	DefaultRateLimit       = 120
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OnixBapURL:          os.Getenv("ONIX_BAP_URL"), // Required, no default
		SubscriberID:        os.Getenv("SUBSCRIBER_ID"),
		SubscriberURI:       os.Getenv("SUBSCRIBER_URI"),
		ProtocolDomain:      getEnv("PROTOCOL_DOMAIN", DefaultProtocolDomain),
		CoreVersion:         getEnv("CORE_VERSION", DefaultCoreVersion),
		EnvelopeTTL:         getEnv("ENVELOPE_TTL", DefaultEnvelopeTTL),
		CallbackTimeout:     getEnvMillis("CALLBACK_TIMEOUT_MS", DefaultCallbackTimeout),
		UpstreamTimeout:     getEnvMillis("UPSTREAM_TIMEOUT_MS", DefaultUpstreamTimeout),
		WheelingCharge:      getEnv("WHEELING_CHARGE", DefaultWheelingCharge),
		NotifyWebhookURL:    os.Getenv("NOTIFY_WEBHOOK_URL"),
		NotifyWebhookSecret: os.Getenv("NOTIFY_WEBHOOK_SECRET"),
		RateLimitRPM:        int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.OnixBapURL == "" {
		return fmt.Errorf("ONIX_BAP_URL is required")
	}
	if !strings.HasPrefix(c.OnixBapURL, "http://") && !strings.HasPrefix(c.OnixBapURL, "https://") {
		return fmt.Errorf("ONIX_BAP_URL must be an http(s) URL")
	}

	if c.SubscriberID == "" {
		return fmt.Errorf("SUBSCRIBER_ID is required")
	}

	if c.CallbackTimeout <= 0 {
		return fmt.Errorf("CALLBACK_TIMEOUT_MS must be positive")
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil && i > 0 {
			return time.Duration(i) * time.Millisecond
		}
	}
	return defaultValue
}
