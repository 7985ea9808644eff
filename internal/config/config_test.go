package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "")
	setEnv(t, "BOT_THRESHOLD", "")
	setEnv(t, "LEDGER_BATCH_SIZE", "")
	setEnv(t, "UPSTREAM_TIMEOUT_MS", "")
	setEnv(t, "KAFKA_TOPIC", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultBotThreshold, cfg.BotThreshold)
	assert.Equal(t, DefaultBatchSize, cfg.LedgerBatchSize)
	assert.Equal(t, DefaultUpstreamTimeout, cfg.UpstreamTimeout)
	assert.Equal(t, DefaultKafkaTopic, cfg.KafkaTopic)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "BOT_THRESHOLD", "25")
	setEnv(t, "UPSTREAM_TIMEOUT_MS", "2500")
	setEnv(t, "KAFKA_BROKERS", "broker-1:9092, broker-2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 25, cfg.BotThreshold)
	assert.Equal(t, 2500*time.Millisecond, cfg.UpstreamTimeout)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
}

func TestLoad_InvalidThreshold(t *testing.T) {
	setEnv(t, "BOT_THRESHOLD", "-1")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "BOT_THRESHOLD must be positive")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "valid config",
			config:  Config{BotThreshold: 50, LedgerBatchSize: 10, UpstreamTimeout: time.Second},
			wantErr: "",
		},
		{
			name:    "zero threshold",
			config:  Config{BotThreshold: 0, LedgerBatchSize: 10, UpstreamTimeout: time.Second},
			wantErr: "BOT_THRESHOLD must be positive",
		},
		{
			name:    "zero batch size",
			config:  Config{BotThreshold: 50, LedgerBatchSize: 0, UpstreamTimeout: time.Second},
			wantErr: "LEDGER_BATCH_SIZE must be positive",
		},
		{
			name:    "zero timeout",
			config:  Config{BotThreshold: 50, LedgerBatchSize: 10},
			wantErr: "UPSTREAM_TIMEOUT_MS must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvInt(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, 42, getEnvInt("TEST_INT", 0))
	assert.Equal(t, 99, getEnvInt("NONEXISTENT_VAR", 99))
	assert.Equal(t, 99, getEnvInt("TEST_INVALID", 99)) // Falls back on parse error
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a"}, splitList("a"))
	assert.Equal(t, []string{"a", "b"}, splitList("a, ,b,"))
}
