package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "http://localhost:5000", cfg.BackendURL)
	assert.Equal(t, 30*time.Second, cfg.BackendTimeout)
	assert.Equal(t, ".servicechat/session.json", cfg.SessionFile)
	assert.False(t, cfg.RequirePhoneVerification)
	assert.Equal(t, 60, cfg.RateLimitRequests)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.TracingEnabled)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("BACKEND_URL", "http://backend:8000")
	t.Setenv("BACKEND_TIMEOUT", "5s")
	t.Setenv("REQUIRE_PHONE_VERIFICATION", "true")
	t.Setenv("RATE_LIMIT_REQUESTS", "10")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "http://backend:8000", cfg.BackendURL)
	assert.Equal(t, 5*time.Second, cfg.BackendTimeout)
	assert.True(t, cfg.RequirePhoneVerification)
	assert.Equal(t, 10, cfg.RateLimitRequests)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("BACKEND_TIMEOUT", "soon")
	t.Setenv("RATE_LIMIT_REQUESTS", "many")
	t.Setenv("REQUIRE_PHONE_VERIFICATION", "yep")

	cfg := Load()

	assert.Equal(t, 30*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 60, cfg.RateLimitRequests)
	assert.False(t, cfg.RequirePhoneVerification)
}
