package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrmushfiq/llm0-express/internal/express/dispatch"
	"github.com/mrmushfiq/llm0-express/internal/express/limits"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, limits.Tier1, cfg.DefaultTier)
	assert.Equal(t, dispatch.Cooperative, cfg.Strategy)
	assert.Equal(t, 62*time.Second, cfg.Window)
	assert.Equal(t, 0, cfg.PoolWorkers)
	assert.Equal(t, dispatch.DefaultBatchTimeout, cfg.BatchTimeout)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, time.Hour, cfg.CacheTTL())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("DEFAULT_TIER", "4")
	t.Setenv("DISPATCH_STRATEGY", "pool")
	t.Setenv("WINDOW_SECONDS", "1.5")
	t.Setenv("POOL_WORKERS", "3")
	t.Setenv("CACHE_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, limits.Tier4, cfg.DefaultTier)
	assert.Equal(t, dispatch.Pool, cfg.Strategy)
	assert.Equal(t, 1500*time.Millisecond, cfg.Window)
	assert.Equal(t, 3, cfg.PoolWorkers)
	assert.False(t, cfg.CacheEnabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing api key", env: map[string]string{"OPENAI_API_KEY": ""}},
		{name: "bad tier", env: map[string]string{"OPENAI_API_KEY": "sk", "DEFAULT_TIER": "tier_9"}},
		{name: "bad strategy", env: map[string]string{"OPENAI_API_KEY": "sk", "DISPATCH_STRATEGY": "fork"}},
		{name: "zero window", env: map[string]string{"OPENAI_API_KEY": "sk", "WINDOW_SECONDS": "0"}},
		{name: "negative workers", env: map[string]string{"OPENAI_API_KEY": "sk", "POOL_WORKERS": "-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
