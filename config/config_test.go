package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 4.0, cfg.Retry.RateLimitMultiplier)
	assert.Equal(t, time.Second, cfg.AntiBot.MinDelay)
	assert.Equal(t, 3*time.Second, cfg.AntiBot.MaxDelay)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.Sources.FinnhubLookback)
	assert.NotEmpty(t, cfg.Sources.ReutersItemSelectors)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("NEWSINGEST_RETRY_ATTEMPTS", "5")
	t.Setenv("NEWSINGEST_MIN_DELAY", "250ms")
	t.Setenv("NEWSINGEST_USER_AGENTS", "ua-one, ua-two ,")
	t.Setenv("NEWSINGEST_ESCALATION_DELAYS", "0s,1s,bogus")
	t.Setenv("NEWSINGEST_FETCH_DETAILS", "false")

	cfg := Load()

	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.AntiBot.MinDelay)
	assert.Equal(t, []string{"ua-one", "ua-two"}, cfg.AntiBot.UserAgents)
	require.Len(t, cfg.Engine.EscalationDelays, 2)
	assert.Equal(t, time.Second, cfg.Engine.EscalationDelays[1])
	assert.False(t, cfg.Scraper.FetchDetails)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("NEWSINGEST_PORT", "not-a-port")
	t.Setenv("NEWSINGEST_HEADLESS", "maybe")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Browser.Headless)
}
