package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "local")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/membersync")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "membersync", cfg.Service)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 10, cfg.RateLimit.MaxRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 10, cfg.Monitor.ErrorRateFloor)
	assert.InDelta(t, 0.10, cfg.Monitor.ErrorRateThreshold, 0.001)
	assert.Equal(t, 3*time.Second, cfg.Monitor.SlowAvgThreshold)
	assert.Equal(t, 15*time.Minute, cfg.Monitor.StuckClaimAge)
	assert.NotEmpty(t, cfg.Stripe.AllowedSourceIPs)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_MissingWebhookSecretIsNotFatal(t *testing.T) {
	// The signing secret is validated at request time, not at boot.
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Stripe.WebhookSecret.IsSet())
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoad_InvalidEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "yolo")

	_, err := Load()
	require.Error(t, err)

	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrValidation, cfgErr.Type)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("WEBHOOK_RATE_LIMIT_MAX", "25")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_live")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 25, cfg.RateLimit.MaxRequests)
	assert.True(t, cfg.Stripe.WebhookSecret.IsSet())
	// The secret never leaks through formatting.
	assert.NotContains(t, cfg.Stripe.WebhookSecret.String(), "whsec_live")
}
