package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReadsPanelOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("PANEL_BATCH_SIZE", "4")
	t.Setenv("PANEL_MIN_RESPONSES", "2")
	t.Setenv("ARCHETYPE_CACHE_TTL_SECONDS", "90")
	t.Setenv("PRICING_OUTPUT_PER_MILLION", "12.5")
	t.Setenv("REDIS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Panel.BatchSize)
	assert.Equal(t, 2, cfg.Panel.MinViableResponses)
	assert.Equal(t, 90*time.Second, cfg.Panel.ArchetypeCacheTTL)
	assert.Equal(t, 12.5, cfg.Pricing.OutputPerMillion)
	assert.False(t, cfg.Redis.Enabled)
}

func TestValidateRequiresAProvider(t *testing.T) {
	cfg := &Config{
		Postgres:  PostgresConfig{Host: "localhost"},
		Panel:     PanelConfig{BatchSize: 3, MinViableResponses: 3},
		RateLimit: RateLimitConfig{RequestsPerSecond: 1},
	}
	assert.Error(t, cfg.Validate())

	cfg.OpenAI.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsZeroBatch(t *testing.T) {
	cfg := &Config{
		Gemini:    GeminiConfig{APIKey: "k"},
		Postgres:  PostgresConfig{Host: "localhost"},
		Panel:     PanelConfig{BatchSize: 0, MinViableResponses: 3},
		RateLimit: RateLimitConfig{RequestsPerSecond: 1},
	}
	assert.Error(t, cfg.Validate())
}
