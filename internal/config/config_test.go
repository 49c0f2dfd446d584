package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("BITMARKET_BASE_PUBLIC_URL", "https://shop.example.com/")
	t.Setenv("BITMARKET_HOST_RETURN_URL", "https://shop.example.com/checkout/received")
	t.Setenv("BITMARKET_HTTP_ADDR", "")
	t.Setenv("BITMARKET_CHECKOUT_BASE_URL", "")
	t.Setenv("BITMARKET_API_BASE_URL", "")
	t.Setenv("BITMARKET_RECONCILE_INTERVAL", "")
	t.Setenv("BITMARKET_PENDING_TTL", "")
	t.Setenv("BITMARKET_REDIS_DB", "")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "https://shop.example.com", cfg.BasePublicURL, "trailing slash trimmed")
	assert.Equal(t, "https://bitmarket.com/checkouts", cfg.CheckoutBaseURL)
	assert.Equal(t, "https://bitmarket.com/api/v1", cfg.APIBaseURL)
	assert.Zero(t, cfg.ReconcileInterval, "sweep disabled by default")
	assert.Equal(t, time.Hour, cfg.PendingTTL)
}

func TestFromEnvValidation(t *testing.T) {
	t.Setenv("BITMARKET_BASE_PUBLIC_URL", "")
	t.Setenv("BITMARKET_HOST_RETURN_URL", "https://shop.example.com/checkout/received")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BITMARKET_BASE_PUBLIC_URL")
}

func TestFromEnvBadDuration(t *testing.T) {
	t.Setenv("BITMARKET_BASE_PUBLIC_URL", "https://shop.example.com")
	t.Setenv("BITMARKET_HOST_RETURN_URL", "https://shop.example.com/checkout/received")
	t.Setenv("BITMARKET_RECONCILE_INTERVAL", "soon")

	_, err := FromEnv()
	require.Error(t, err)
}
