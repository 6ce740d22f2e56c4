package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:      AppConfig{Port: "3000"},
		Telegram: TelegramConfig{Token: "t", SetupKey: "k"},
		APRS:     APRSConfig{PollInterval: 90 * time.Second, MaxFailures: 7, BackoffBase: 86, BackoffGrowth: 4},
		ORS:      ORSConfig{BaseURL: "https://api.openrouteservice.org"},
		Follow:   FollowConfig{Thresholds: []int{-1, 60, 30, 10, 1}},
		Store:    StoreConfig{Backend: "file"},
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"APRS_POLL_INTERVAL", "APRS_MAX_FAILURES", "ALERT_THRESHOLDS", "STORE_BACKEND"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg := Load()
	assert.Equal(t, 90*time.Second, cfg.APRS.PollInterval)
	assert.Equal(t, 7, cfg.APRS.MaxFailures)
	assert.Equal(t, []int{-1, 60, 30, 10, 1}, cfg.Follow.Thresholds)
	assert.Equal(t, "file", cfg.Store.Backend)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APRS_POLL_INTERVAL", "30")
	t.Setenv("APRS_BACKOFF_GROWTH", "2.5")
	t.Setenv("ALERT_THRESHOLDS", "-1, 45, 5")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.APRS.PollInterval)
	assert.Equal(t, 2.5, cfg.APRS.BackoffGrowth)
	assert.Equal(t, []int{-1, 45, 5}, cfg.Follow.Thresholds)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.True(t, cfg.Infra.OtelEnabled)
}

func TestEnvParsers(t *testing.T) {
	t.Setenv("X_DURATION", "2m")
	t.Setenv("X_BAD_LIST", "-1,abc")
	t.Setenv("X_BAD_INT", "seven")

	assert.Equal(t, 2*time.Minute, getEnvAsDuration("X_DURATION", time.Second))
	assert.Equal(t, []int{1}, getEnvAsIntList("X_BAD_LIST", []int{1}))
	assert.Equal(t, 3, getEnvAsInt("X_BAD_INT", 3))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing token", mutate: func(c *Config) { c.Telegram.Token = "" }, wantErr: "Token"},
		{name: "missing setup key", mutate: func(c *Config) { c.Telegram.SetupKey = "" }, wantErr: "SetupKey"},
		{name: "unknown backend", mutate: func(c *Config) { c.Store.Backend = "mongo" }, wantErr: "Backend"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Backend = "postgres" }, wantErr: "DB_CONNECTION_STRING"},
		{name: "short ladder", mutate: func(c *Config) { c.Follow.Thresholds = []int{-1} }, wantErr: "Thresholds"},
		{name: "zero interval", mutate: func(c *Config) { c.APRS.PollInterval = 0 }, wantErr: "PollInterval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFeatureFlags(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.HasAPRS())
	assert.False(t, cfg.HasORS())

	cfg.APRS.ReplayFile = "route.json"
	cfg.ORS.APIKey = "key"
	assert.True(t, cfg.HasAPRS())
	assert.True(t, cfg.HasORS())
}
