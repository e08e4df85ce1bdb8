package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/p2pescrow/internal/ledger"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	_ = os.Setenv(key, value)
	t.Cleanup(func() {
		if !had {
			_ = os.Unsetenv(key)
		} else {
			_ = os.Setenv(key, old)
		}
	})
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "ENV", "LOG_LEVEL", "LOG_FORMAT", "DATABASE_URL", "ADMIN_SECRET",
		"RATE_LIMIT_RPM", "OTEL_EXPORTER_OTLP_ENDPOINT", "ESCROW_ACCOUNT_TYPE",
		"PAYMENT_WINDOW", "EXPIRY_INTERVAL", "RECONCILE_INTERVAL", "OTEL_TRACES_SAMPLER_ARG",
		"CORS_ALLOWED_ORIGINS",
	} {
		setEnv(t, k, "")
	}
}

func validConfig() Config {
	return Config{
		Env:               "development",
		LogFormat:         "json",
		RateLimitRPM:      60,
		EscrowAccount:     ledger.AccountFunding,
		PaymentWindow:     time.Minute,
		ExpiryInterval:    time.Second,
		ReconcileInterval: time.Minute,
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Equal(t, ledger.AccountFunding, cfg.EscrowAccount)
	assert.Equal(t, 15*time.Minute, cfg.PaymentWindow)
	assert.Equal(t, 30*time.Second, cfg.ExpiryInterval)
	assert.Equal(t, 5*time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, DefaultRateLimitRPM, cfg.RateLimitRPM)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	setEnv(t, "PORT", "9090")
	setEnv(t, "LOG_FORMAT", "text")
	setEnv(t, "ESCROW_ACCOUNT_TYPE", "spot")
	setEnv(t, "PAYMENT_WINDOW", "30m")
	setEnv(t, "EXPIRY_INTERVAL", "10s")
	setEnv(t, "OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, ledger.AccountSpot, cfg.EscrowAccount)
	assert.Equal(t, 30*time.Minute, cfg.PaymentWindow)
	assert.Equal(t, 10*time.Second, cfg.ExpiryInterval)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	setEnv(t, "PAYMENT_WINDOW", "fifteen minutes")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYMENT_WINDOW")
}

func TestLoad_ProductionRequiresSecrets(t *testing.T) {
	clearEnv(t)
	setEnv(t, "ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")

	setEnv(t, "DATABASE_URL", "postgres://localhost/p2pescrow")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_SECRET is required")

	setEnv(t, "ADMIN_SECRET", "s3cret")
	_, err = Load()
	assert.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid config", func(*Config) {}, ""},
		{"bad escrow account", func(c *Config) { c.EscrowAccount = "MARGIN" }, "ESCROW_ACCOUNT_TYPE"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"zero payment window", func(c *Config) { c.PaymentWindow = 0 }, "PAYMENT_WINDOW"},
		{"negative expiry interval", func(c *Config) { c.ExpiryInterval = -time.Second }, "EXPIRY_INTERVAL"},
		{"zero rate limit", func(c *Config) { c.RateLimitRPM = 0 }, "RATE_LIMIT_RPM"},
		{"sample ratio above one", func(c *Config) { c.TraceSampleRatio = 1.5 }, "OTEL_TRACES_SAMPLER_ARG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_ValidateNormalizesAccount(t *testing.T) {
	cfg := validConfig()
	cfg.EscrowAccount = " spot "
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ledger.AccountSpot, cfg.EscrowAccount)
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnvInt64(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, int64(42), getEnvInt64("TEST_INT", 0))
	assert.Equal(t, int64(99), getEnvInt64("NONEXISTENT_VAR", 99))
	assert.Equal(t, int64(99), getEnvInt64("TEST_INVALID", 99))
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DUR", "90s")

	d, err := getEnvDuration("TEST_DUR", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = getEnvDuration("NONEXISTENT_VAR", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)
}

func TestGetEnvFloat(t *testing.T) {
	setEnv(t, "TEST_RATIO", "0.25")
	setEnv(t, "TEST_BAD_RATIO", "a quarter")

	f, err := getEnvFloat("TEST_RATIO", 1)
	require.NoError(t, err)
	assert.Equal(t, 0.25, f)

	f, err = getEnvFloat("NONEXISTENT_VAR", 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f)

	_, err = getEnvFloat("TEST_BAD_RATIO", 1)
	assert.Error(t, err)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"https://a.example", "https://b.example"},
		splitList(" https://a.example, ,https://b.example "))
	assert.Nil(t, splitList(""))
}
