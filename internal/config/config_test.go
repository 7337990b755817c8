// Package config tests.
package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setLayerEnvs(t *testing.T) {
	t.Helper()
	envs := map[string]string{
		"LAYER_API_KEY":      "pat-test",
		"LAYER_WORKSPACE_ID": "ws-123",
		"SLACK_BOT_TOKEN":    "xoxb-test",
	}
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Success(t *testing.T) {
	setLayerEnvs(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "pat-test", cfg.LayerAPIKey)
	assert.Equal(t, "ws-123", cfg.LayerWorkspaceID)
	assert.True(t, cfg.LayerEnabled())
	assert.True(t, cfg.SlackEnabled())
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTPPort)
}

func TestLoad_AllOptional(t *testing.T) {
	os.Clearenv()
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.LayerEnabled())
	assert.False(t, cfg.SlackEnabled())
	assert.Equal(t, 50, cfg.MinCreditsRequired)
	assert.Equal(t, 512, cfg.MaxImageDimension)
	assert.Equal(t, 5242880, cfg.MaxPlayableBytes)
}

func TestLoad_Defaults(t *testing.T) {
	setLayerEnvs(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.PollInitialDelay)
	assert.Equal(t, 10*time.Second, cfg.PollMaxDelay)
	assert.Equal(t, 1.5, cfg.PollMultiplier)
	assert.Equal(t, 60*time.Second, cfg.PollTimeout)
	assert.Equal(t, 3, cfg.ForgeMaxAttempts)
	assert.Equal(t, "#playable-builds", cfg.SlackChannel)
}

func TestLoad_InvalidQuality(t *testing.T) {
	setLayerEnvs(t)
	t.Setenv("JPEG_QUALITY", "150")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JPEG_QUALITY")
}

func TestPollBackoff_Schedule(t *testing.T) {
	setLayerEnvs(t)
	cfg, err := Load()
	require.NoError(t, err)

	backoff := cfg.PollBackoff()
	assert.Equal(t, 2*time.Second, backoff.Delay(0))
	assert.Equal(t, 3*time.Second, backoff.Delay(1))
	assert.Equal(t, 10*time.Second, backoff.Delay(20)) // capped
}

func TestForgeBackoff_Attempts(t *testing.T) {
	setLayerEnvs(t)
	t.Setenv("FORGE_MAX_ATTEMPTS", "5")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.ForgeBackoff().MaxAttempts)
}
