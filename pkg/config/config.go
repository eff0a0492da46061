// Package config loads and validates the application configuration from
// YAML, with environment-variable fallbacks for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// maxConfigSize bounds how large a config file may be.
const maxConfigSize = 1 << 20 // 1MB

// Duration wraps time.Duration so YAML can carry values like "30s".
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config represents the application configuration
type Config struct {
	// Default model settings, used when an agent definition omits them
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	// API credentials
	OpenAIKey   string `yaml:"openai_key"`
	GCPProject  string `yaml:"gcp_project"`
	GCPLocation string `yaml:"gcp_location"`

	Mail          MailConfig          `yaml:"mail"`
	Continuation  ContinuationConfig  `yaml:"continuation"`
	Channels      ChannelConfig       `yaml:"channels"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`

	// Agents to create at startup
	Agents []AgentDef `yaml:"agents"`
}

// AgentDef declares one agent to create at startup.
type AgentDef struct {
	ID          string  `yaml:"id"`
	Provider    string  `yaml:"provider,omitempty"`
	Model       string  `yaml:"model,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxTokens   int     `yaml:"max_tokens,omitempty"`
	Prompt      string  `yaml:"prompt,omitempty"`
}

// MailConfig tunes inter-agent messaging.
type MailConfig struct {
	// MaxHops bounds mail chain depth before rejection as circular.
	MaxHops int `yaml:"max_hops"`

	// SwitchTimeout is the default synchronous switch timeout.
	SwitchTimeout Duration `yaml:"switch_timeout"`
}

// ContinuationConfig tunes the continuation loop.
type ContinuationConfig struct {
	MaxIterations   int   `yaml:"max_iterations"`
	RequireExplicit *bool `yaml:"require_explicit,omitempty"`
}

// ChannelConfig tunes channel routing and storage.
type ChannelConfig struct {
	// Storage selects the backend: "memory" or "redis".
	Storage string `yaml:"storage"`

	HistoryCap int      `yaml:"history_cap"`
	Retention  Duration `yaml:"retention"`

	// CleanupSchedule is a cron expression for the retention sweep.
	CleanupSchedule string `yaml:"cleanup_schedule,omitempty"`

	// Default per-session visibility. ShowCommentary defaults to true,
	// ShowAnalysis to false.
	ShowCommentary *bool `yaml:"show_commentary,omitempty"`
	ShowAnalysis   bool  `yaml:"show_analysis"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds redis connection settings for channel storage.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// RateLimitConfig throttles collaborator invocations per agent.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// ObservabilityConfig controls the metrics/health endpoint and tracing.
type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	Port           int    `yaml:"port"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
	TraceExporter  string `yaml:"trace_exporter,omitempty"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes configuration from YAML bytes, applying defaults and
// environment fallbacks.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 1000
	}
	if c.Mail.MaxHops == 0 {
		c.Mail.MaxHops = 10
	}
	if c.Mail.SwitchTimeout.Duration == 0 {
		c.Mail.SwitchTimeout.Duration = 30 * time.Second
	}
	if c.Continuation.MaxIterations == 0 {
		c.Continuation.MaxIterations = 20
	}
	if c.Continuation.RequireExplicit == nil {
		t := true
		c.Continuation.RequireExplicit = &t
	}
	if c.Channels.Storage == "" {
		c.Channels.Storage = "memory"
	}
	if c.Channels.HistoryCap == 0 {
		c.Channels.HistoryCap = 1000
	}
	if c.Channels.Retention.Duration == 0 {
		c.Channels.Retention.Duration = 24 * time.Hour
	}
	if c.Channels.CleanupSchedule == "" {
		c.Channels.CleanupSchedule = "@hourly"
	}
	if c.Channels.ShowCommentary == nil {
		t := true
		c.Channels.ShowCommentary = &t
	}
	if c.Observability.Port == 0 {
		c.Observability.Port = 9090
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}
}

func (c *Config) applyEnv() {
	if c.OpenAIKey == "" {
		c.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.GCPProject == "" {
		c.GCPProject = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if c.GCPLocation == "" {
		c.GCPLocation = os.Getenv("GOOGLE_CLOUD_LOCATION")
	}
	if c.Channels.Redis.Addr == "" {
		c.Channels.Redis.Addr = os.Getenv("REDIS_ADDR")
	}
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Mail.MaxHops < 1 {
		return fmt.Errorf("mail.max_hops must be at least 1")
	}
	if c.Continuation.MaxIterations < 1 {
		return fmt.Errorf("continuation.max_iterations must be at least 1")
	}
	if c.RateLimit.RPS < 0 {
		return fmt.Errorf("rate_limit.rps must not be negative")
	}

	switch c.Channels.Storage {
	case "memory":
	case "redis":
		if c.Channels.Redis.Addr == "" {
			return fmt.Errorf("channels.redis.addr is required for redis storage")
		}
	default:
		return fmt.Errorf("unknown channel storage %q (want memory or redis)", c.Channels.Storage)
	}

	seen := make(map[string]bool, len(c.Agents))
	for i, def := range c.Agents {
		if def.ID == "" {
			return fmt.Errorf("agents[%d]: id is required", i)
		}
		if seen[def.ID] {
			return fmt.Errorf("duplicate agent id %q", def.ID)
		}
		seen[def.ID] = true
	}
	return nil
}
