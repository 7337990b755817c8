package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/p-blackswan/playable-forge/internal/retry"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`

	// Generation backend (Layer-style GraphQL API)
	LayerAPIURL      string        `envconfig:"LAYER_API_URL" default:"https://api.app.layer.ai/v1/graphql"`
	LayerAPIKey      string        `envconfig:"LAYER_API_KEY"`
	LayerWorkspaceID string        `envconfig:"LAYER_WORKSPACE_ID"`
	LayerHTTPTimeout time.Duration `envconfig:"LAYER_HTTP_TIMEOUT" default:"60s"`
	StyleCacheSize   int           `envconfig:"STYLE_CACHE_SIZE" default:"64"`

	// Credit guard
	MinCreditsRequired int `envconfig:"MIN_CREDITS_REQUIRED" default:"50"`
	LowCreditThreshold int `envconfig:"LOW_CREDIT_THRESHOLD" default:"100"`

	// Generation polling and per-slot retry
	PollTimeout      time.Duration `envconfig:"POLL_TIMEOUT" default:"60s"`
	PollInitialDelay time.Duration `envconfig:"POLL_INITIAL_DELAY" default:"2s"`
	PollMaxDelay     time.Duration `envconfig:"POLL_MAX_DELAY" default:"10s"`
	PollMultiplier   float64       `envconfig:"POLL_MULTIPLIER" default:"1.5"`
	ForgeMaxAttempts int           `envconfig:"FORGE_MAX_ATTEMPTS" default:"3"`
	ForgeSlotDelay   time.Duration `envconfig:"FORGE_SLOT_DELAY" default:"500ms"` // pause between sequential slot submissions

	// Image optimization
	MaxImageDimension int `envconfig:"MAX_IMAGE_DIMENSION" default:"512"`
	JPEGQuality       int `envconfig:"JPEG_QUALITY" default:"85"`

	// Assembly
	MaxPlayableBytes    int    `envconfig:"MAX_PLAYABLE_BYTES" default:"5242880"` // 5 MB hard ceiling
	TemplateOverlayPath string `envconfig:"TEMPLATE_OVERLAY_PATH"`                // optional YAML registry overlay

	// API server
	APIAuthMode    string `envconfig:"API_AUTH_MODE" default:"api-key"`
	APIKey         string `envconfig:"API_KEY"`
	RateLimitRPS   int    `envconfig:"RATE_LIMIT_RPS" default:"100"`
	RateLimitBurst int    `envconfig:"RATE_LIMIT_BURST" default:"200"`
	CORSOrigins    string `envconfig:"CORS_ORIGINS"`
	TLSCert        string `envconfig:"TLS_CERT"`
	TLSKey         string `envconfig:"TLS_KEY"`

	// Build engine
	BuildWorkers   int           `envconfig:"BUILD_WORKERS" default:"4"`
	BuildQueueSize int           `envconfig:"BUILD_QUEUE_SIZE" default:"256"`
	BuildTimeout   time.Duration `envconfig:"BUILD_TIMEOUT" default:"15m"`

	// Retention of finished builds
	BuildRetention         time.Duration `envconfig:"BUILD_RETENTION" default:"24h"`
	RetentionSweepInterval time.Duration `envconfig:"RETENTION_SWEEP_INTERVAL" default:"10m"`

	// Slack (optional, service runs without notifications)
	SlackBotToken string `envconfig:"SLACK_BOT_TOKEN"`
	SlackChannel  string `envconfig:"SLACK_CHANNEL" default:"#playable-builds"`
}

// LayerEnabled returns true if generation backend credentials are configured.
func (c *Config) LayerEnabled() bool {
	return c.LayerAPIKey != "" && c.LayerWorkspaceID != ""
}

// SlackEnabled returns true if Slack notifications are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != ""
}

// PollBackoff returns the backoff schedule used when polling generation jobs.
func (c *Config) PollBackoff() retry.Config {
	return retry.Config{
		MaxAttempts: 1 << 30, // polling is bounded by the timeout, not attempts
		BaseDelay:   c.PollInitialDelay,
		MaxDelay:    c.PollMaxDelay,
		Multiplier:  c.PollMultiplier,
	}
}

// ForgeBackoff returns the backoff schedule used between per-slot retry attempts.
func (c *Config) ForgeBackoff() retry.Config {
	return retry.Config{
		MaxAttempts: c.ForgeMaxAttempts,
		BaseDelay:   c.PollInitialDelay,
		MaxDelay:    c.PollMaxDelay,
		Multiplier:  c.PollMultiplier,
	}
}

// Validate checks invariants that envconfig defaults cannot express.
func (c *Config) Validate() error {
	if c.MinCreditsRequired < 0 {
		return fmt.Errorf("MIN_CREDITS_REQUIRED must be >= 0")
	}
	if c.MaxImageDimension < 16 {
		return fmt.Errorf("MAX_IMAGE_DIMENSION must be >= 16")
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be in [1,100]")
	}
	if c.MaxPlayableBytes <= 0 {
		return fmt.Errorf("MAX_PLAYABLE_BYTES must be > 0")
	}
	if c.ForgeMaxAttempts < 1 {
		return fmt.Errorf("FORGE_MAX_ATTEMPTS must be >= 1")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
