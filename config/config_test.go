package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_FromFile(t *testing.T) {
	path := writeConfig(t, `
api_key: test-key
model: models/custom-model
system_instruction: "be brief"
generation:
  voice: Puck
  temperature: 0.7
video:
  fps: 0.5
  frame_width: 800
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.APIKey)
	assert.Equal(t, "models/custom-model", cfg.Model)
	assert.Equal(t, "be brief", cfg.SystemInstruction)
	assert.Equal(t, "Puck", cfg.Generation.Voice)
	require.NotNil(t, cfg.Generation.Temperature)
	assert.Equal(t, 0.7, *cfg.Generation.Temperature)
	assert.Equal(t, 0.5, cfg.Video.FPS)
	assert.Equal(t, 800, cfg.Video.FrameWidth)

	// Defaults fill in everything the file omitted.
	assert.Equal(t, DefaultEndpoint, cfg.Endpoint)
	assert.Equal(t, DefaultFrameQuality, cfg.Video.FrameQuality)
	assert.Equal(t, DefaultCaptureRate, cfg.Audio.CaptureRate)
	assert.Equal(t, 1.0, cfg.Audio.Gain)
}

func TestLoad_EnvOverridesKey(t *testing.T) {
	path := writeConfig(t, "api_key: file-key\n")
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.APIKey)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, "env-key", cfg.APIKey)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "{{{not yaml")
	t.Setenv("GEMINI_API_KEY", "env-key")

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	bad := func(mutate func(*Config)) error {
		cfg := Default()
		cfg.APIKey = "key"
		mutate(cfg)
		return cfg.Validate()
	}

	assert.NoError(t, bad(func(_ *Config) {}))
	assert.ErrorIs(t, bad(func(c *Config) { c.APIKey = "" }), ErrInvalidConfig)
	assert.ErrorIs(t, bad(func(c *Config) { c.Model = "" }), ErrInvalidConfig)
	assert.ErrorIs(t, bad(func(c *Config) { c.Video.FPS = -1 }), ErrInvalidConfig)
	assert.ErrorIs(t, bad(func(c *Config) { c.Video.FrameQuality = 101 }), ErrInvalidConfig)
	assert.ErrorIs(t, bad(func(c *Config) { c.Audio.Gain = -0.1 }), ErrInvalidConfig)

	temp := 3.0
	assert.ErrorIs(t, bad(func(c *Config) { c.Generation.Temperature = &temp }), ErrInvalidConfig)

	topP := 1.5
	assert.ErrorIs(t, bad(func(c *Config) { c.Generation.TopP = &topP }), ErrInvalidConfig)
}

func TestWebSocketURL(t *testing.T) {
	cfg := Default()
	cfg.APIKey = "secret"
	assert.Equal(t, DefaultEndpoint+"?key=secret", cfg.WebSocketURL())
}
