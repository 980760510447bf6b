package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookup(nil))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Generation.BaseDelay)
	assert.Equal(t, 120*time.Second, cfg.Generation.InitialTimeout)
	assert.Equal(t, 30*time.Second, cfg.Generation.ActivityWindow)
	assert.Equal(t, 50, cfg.Generation.HistoryDepth)
	assert.True(t, cfg.Generation.Planning)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"LLM_PROVIDER":                 "Anthropic",
		"GENERATION_MAX_ATTEMPTS":      "5",
		"GENERATION_TIMEOUT_INITIAL":   "90",
		"GENERATION_ACTIVITY_WINDOW":   "45s",
		"GENERATION_PLANNING":          "false",
		"LLM_DEFAULT_TEMPERATURE":      "0.2",
		"GENERATION_PROGRESS_INTERVAL": "500ms",
	}))
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	orch := cfg.OrchestratorConfig()
	assert.Equal(t, 5, orch.Retry.MaxAttempts)
	assert.Equal(t, 90*time.Second, orch.Timeout.Initial)
	assert.Equal(t, 45*time.Second, orch.Timeout.ActivityWindow)
	assert.Equal(t, 500*time.Millisecond, orch.ProgressInterval)
	assert.False(t, orch.Planning)
	assert.InDelta(t, 0.2, orch.Temperature, 1e-9)
}

func TestFromEnvReportsEveryBadValue(t *testing.T) {
	_, err := FromEnv(lookup(map[string]string{
		"GENERATION_MAX_ATTEMPTS": "three",
		"LOG_DEVELOPMENT":         "maybe",
	}))
	require.Error(t, err)
	assert.ErrorContains(t, err, "GENERATION_MAX_ATTEMPTS")
	assert.ErrorContains(t, err, "LOG_DEVELOPMENT")
}

func TestValidate(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{"LLM_PROVIDER": "mystery"}))
	require.NoError(t, err)
	err = cfg.Validate()
	assert.ErrorContains(t, err, `unknown LLM_PROVIDER "mystery"`)
	assert.ErrorContains(t, err, "LLM_API_KEY is required")

	cfg, err = FromEnv(lookup(map[string]string{"LLM_PROVIDER": "ollama"}))
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.ErrorContains(t, cfg.ValidateServer(), "DATABASE_URL is required")

	cfg.Generation.MaxAttempts = 0
	assert.ErrorContains(t, cfg.Validate(), "GENERATION_MAX_ATTEMPTS must be positive")
}

func TestModelName(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{"LLM_PROVIDER": "gemini"}))
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.0-flash", cfg.ModelName())

	cfg.LLM.Model = "gemini-2.5-pro"
	assert.Equal(t, "gemini-2.5-pro", cfg.ModelName())
}
