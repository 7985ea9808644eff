// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database (optional, in-memory stores if not set)
	DatabaseURL string

	// Upstream collaborators
	AIServiceURL         string // AI scoring model (POST /analyze-transaction)
	VisualServiceURL     string // visual analytics reanalysis trigger
	VisualInternalAPIKey string // X-INTERNAL-API-KEY for the visual service
	SecurityServiceURL   string // remote JA3 risk engine; empty = evaluate in-process
	UpstreamTimeout      time.Duration

	// JA3 risk engine
	BotThreshold int

	// Fraud event ledger
	LedgerBatchSize int

	// Kafka fraud-event pipeline (optional)
	KafkaBrokers []string
	KafkaTopic   string

	// Tracing (optional)
	OTLPEndpoint string
}

// Defaults.
const (
	DefaultPort            = "8080"
	DefaultEnv             = "development"
	DefaultLogLevel        = "info"
	DefaultUpstreamTimeout = 5 * time.Second
	DefaultBotThreshold    = 50
	DefaultBatchSize       = 10
	DefaultKafkaTopic      = "fraud-events"
)

// Load reads configuration from environment variables.
// It loads a .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		AIServiceURL:         os.Getenv("AI_SERVICE_URL"),
		VisualServiceURL:     os.Getenv("VISUAL_SERVICE_URL"),
		VisualInternalAPIKey: os.Getenv("VISUAL_INTERNAL_API_KEY"),
		SecurityServiceURL:   os.Getenv("SECURITY_SERVICE_URL"),
		UpstreamTimeout:      getEnvDuration("UPSTREAM_TIMEOUT_MS", DefaultUpstreamTimeout),
		BotThreshold:         getEnvInt("BOT_THRESHOLD", DefaultBotThreshold),
		LedgerBatchSize:      getEnvInt("LEDGER_BATCH_SIZE", DefaultBatchSize),
		KafkaBrokers:         splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:           getEnv("KAFKA_TOPIC", DefaultKafkaTopic),
		OTLPEndpoint:         os.Getenv("OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that configuration values are sane.
func (c *Config) Validate() error {
	if c.BotThreshold <= 0 {
		return fmt.Errorf("BOT_THRESHOLD must be positive, got %d", c.BotThreshold)
	}
	if c.LedgerBatchSize <= 0 {
		return fmt.Errorf("LEDGER_BATCH_SIZE must be positive, got %d", c.LedgerBatchSize)
	}
	if c.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT_MS must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
