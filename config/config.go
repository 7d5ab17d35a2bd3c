// Package config defines the explicit configuration object a session is
// built from. Values load from a YAML file with environment overrides for
// secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates the configuration cannot produce a working
// session.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults applied by Load and Validate.
const (
	DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultModel    = "models/gemini-2.0-flash-exp"
	DefaultVoice    = "Aoede"

	DefaultFPS           = 1.0
	DefaultFrameWidth    = 640
	DefaultFrameQuality  = 70
	DefaultHeartbeat     = 30 * time.Second
	DefaultCaptureRate   = 16000
	DefaultPlaybackRate  = 24000
	DefaultSetupDeadline = 10 * time.Second
)

// Config is everything needed to run a live session.
type Config struct {
	// Endpoint is the WebSocket URL of the live service, without the API
	// key query parameter.
	Endpoint string `yaml:"endpoint"`

	// APIKey authenticates the connection. Usually supplied via the
	// GEMINI_API_KEY environment variable rather than the file.
	APIKey string `yaml:"api_key"`

	// Model is the model resource name.
	Model string `yaml:"model"`

	// SystemInstruction steers model behavior for the whole session.
	SystemInstruction string `yaml:"system_instruction"`

	Generation GenerationConfig `yaml:"generation"`
	Safety     []SafetySetting  `yaml:"safety"`
	Audio      AudioConfig      `yaml:"audio"`
	Video      VideoConfig      `yaml:"video"`
	Transport  TransportConfig  `yaml:"transport"`

	// Transcription enables model and user speech transcription events.
	Transcription bool `yaml:"transcription"`

	// MetricsAddr, when set, serves Prometheus metrics on this address.
	MetricsAddr string `yaml:"metrics_addr"`
}

// GenerationConfig holds sampling parameters and voice selection.
type GenerationConfig struct {
	Temperature *float64 `yaml:"temperature"`
	TopP        *float64 `yaml:"top_p"`
	TopK        *int     `yaml:"top_k"`
	Voice       string   `yaml:"voice"`

	// ResponseModalities selects the model's output channels. Defaults to
	// audio only.
	ResponseModalities []string `yaml:"response_modalities"`
}

// SafetySetting maps a harm category to a blocking threshold.
type SafetySetting struct {
	Category  string `yaml:"category"`
	Threshold string `yaml:"threshold"`
}

// AudioConfig holds sample rates and playback gain.
type AudioConfig struct {
	CaptureRate  int     `yaml:"capture_rate"`
	PlaybackRate int     `yaml:"playback_rate"`
	Gain         float64 `yaml:"gain"`
}

// VideoConfig holds frame capture cadence and encoding parameters.
type VideoConfig struct {
	// FPS is the frame capture rate. Fractional rates are supported; 0.5
	// means one frame every two seconds.
	FPS float64 `yaml:"fps"`

	// FrameWidth is the width frames are downscaled to before sending.
	FrameWidth int `yaml:"frame_width"`

	// FrameQuality is the JPEG quality (1-100).
	FrameQuality int `yaml:"frame_quality"`

	// MaxFrameBytes caps the encoded size of one frame (0 = no limit).
	MaxFrameBytes int64 `yaml:"max_frame_bytes"`

	// CameraDevice and ScreenDisplay identify the capture sources, in the
	// form the local ffmpeg expects.
	CameraDevice  string `yaml:"camera_device"`
	ScreenDisplay string `yaml:"screen_display"`
}

// TransportConfig holds connection tuning.
type TransportConfig struct {
	DialTimeout       time.Duration `yaml:"dial_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	SetupDeadline     time.Duration `yaml:"setup_deadline"`
	MaxRetries        int           `yaml:"max_retries"`
}

// Default returns a Config with all defaults applied and no API key.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Generation.Voice == "" {
		c.Generation.Voice = DefaultVoice
	}
	if len(c.Generation.ResponseModalities) == 0 {
		c.Generation.ResponseModalities = []string{"audio"}
	}
	if c.Audio.CaptureRate == 0 {
		c.Audio.CaptureRate = DefaultCaptureRate
	}
	if c.Audio.PlaybackRate == 0 {
		c.Audio.PlaybackRate = DefaultPlaybackRate
	}
	if c.Audio.Gain == 0 {
		c.Audio.Gain = 1.0
	}
	if c.Video.FPS == 0 {
		c.Video.FPS = DefaultFPS
	}
	if c.Video.FrameWidth == 0 {
		c.Video.FrameWidth = DefaultFrameWidth
	}
	if c.Video.FrameQuality == 0 {
		c.Video.FrameQuality = DefaultFrameQuality
	}
	if c.Transport.HeartbeatInterval == 0 {
		c.Transport.HeartbeatInterval = DefaultHeartbeat
	}
	if c.Transport.SetupDeadline == 0 {
		c.Transport.SetupDeadline = DefaultSetupDeadline
	}
}

// Load reads a YAML config file, applies defaults, and overlays the
// GEMINI_API_KEY environment variable. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.APIKey = key
	}

	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// Validate checks the configuration for values that cannot produce a working
// session. All failures wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidConfig)
	}
	if c.Endpoint == "" {
		return fmt.Errorf("%w: endpoint is required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if c.Video.FPS <= 0 {
		return fmt.Errorf("%w: fps must be positive, got %v", ErrInvalidConfig, c.Video.FPS)
	}
	if c.Video.FrameQuality < 1 || c.Video.FrameQuality > 100 {
		return fmt.Errorf("%w: frame quality must be in [1,100], got %d", ErrInvalidConfig, c.Video.FrameQuality)
	}
	if c.Audio.CaptureRate <= 0 || c.Audio.PlaybackRate <= 0 {
		return fmt.Errorf("%w: sample rates must be positive", ErrInvalidConfig)
	}
	if c.Audio.Gain < 0 {
		return fmt.Errorf("%w: gain must not be negative", ErrInvalidConfig)
	}
	if t := c.Generation.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("%w: temperature must be in [0,2], got %v", ErrInvalidConfig, *t)
	}
	if p := c.Generation.TopP; p != nil && (*p < 0 || *p > 1) {
		return fmt.Errorf("%w: top_p must be in [0,1], got %v", ErrInvalidConfig, *p)
	}
	return nil
}

// WebSocketURL returns the endpoint with the API key appended.
func (c *Config) WebSocketURL() string {
	return c.Endpoint + "?key=" + c.APIKey
}
