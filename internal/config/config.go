package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr      string
	BasePublicURL string

	// HostReturnURL is the storefront page customers land on after paying
	// or cancelling. Success/cancel URLs are derived from it.
	HostReturnURL string

	// CheckoutBaseURL is where customers are redirected to pay; the checkout
	// code returned by the API is appended to it.
	CheckoutBaseURL string
	APIBaseURL      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// ReconcileInterval enables the abandoned-order sweep when > 0.
	ReconcileInterval time.Duration
	PendingTTL        time.Duration
}

func FromEnv() (Config, error) {
	var c Config

	c.HTTPAddr = strings.TrimSpace(os.Getenv("BITMARKET_HTTP_ADDR"))
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}

	c.BasePublicURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BITMARKET_BASE_PUBLIC_URL")), "/")
	c.HostReturnURL = strings.TrimSpace(os.Getenv("BITMARKET_HOST_RETURN_URL"))

	c.CheckoutBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BITMARKET_CHECKOUT_BASE_URL")), "/")
	if c.CheckoutBaseURL == "" {
		c.CheckoutBaseURL = "https://bitmarket.com/checkouts"
	}
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("BITMARKET_API_BASE_URL")), "/")
	if c.APIBaseURL == "" {
		c.APIBaseURL = "https://bitmarket.com/api/v1"
	}

	c.RedisAddr = strings.TrimSpace(os.Getenv("BITMARKET_REDIS_ADDR"))
	c.RedisPassword = os.Getenv("BITMARKET_REDIS_PASSWORD")
	if raw := strings.TrimSpace(os.Getenv("BITMARKET_REDIS_DB")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return c, fmt.Errorf("BITMARKET_REDIS_DB: %w", err)
		}
		c.RedisDB = v
	}

	var err error
	c.ReconcileInterval, err = parseDuration("BITMARKET_RECONCILE_INTERVAL", 0)
	if err != nil {
		return c, err
	}
	c.PendingTTL, err = parseDuration("BITMARKET_PENDING_TTL", time.Hour)
	if err != nil {
		return c, err
	}

	if c.BasePublicURL == "" {
		return c, fmt.Errorf("BITMARKET_BASE_PUBLIC_URL is empty")
	}
	if c.HostReturnURL == "" {
		return c, fmt.Errorf("BITMARKET_HOST_RETURN_URL is empty")
	}

	return c, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
