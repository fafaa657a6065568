// Package config loads the connector's YAML configuration file.
// Core packages never read files themselves; they receive plain values wired
// from here by the command binary.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface.
type Config struct {
	DingTalk   DingTalkConfig   `yaml:"dingtalk"`
	Completion CompletionConfig `yaml:"completion"`
	Session    SessionConfig    `yaml:"session"`
	Media      MediaConfig      `yaml:"media"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Policy     PolicyConfig     `yaml:"policy"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Transport  TransportConfig  `yaml:"transport"`
}

// TransportConfig controls the inbound HTTP callback listener.
type TransportConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DingTalkConfig holds the app identity and card template.
type DingTalkConfig struct {
	AppKey         string `yaml:"app_key"`
	AppSecret      string `yaml:"app_secret"`
	RobotCode      string `yaml:"robot_code"`
	CardTemplateID string `yaml:"card_template_id"`
}

// CompletionConfig points at the backend chat-completions endpoint.
type CompletionConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
}

// SessionConfig controls conversation continuity.
type SessionConfig struct {
	TimeoutMinutes int `yaml:"timeout_minutes"`
}

// Timeout returns the configured session timeout as a duration.
func (s SessionConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMinutes) * time.Minute
}

// MediaConfig controls local-reference upload rewriting.
type MediaConfig struct {
	UploadEnabled bool `yaml:"upload_enabled"`
}

// PromptConfig carries the operator's custom system prompt.
type PromptConfig struct {
	Custom string `yaml:"custom"`
}

// PolicyConfig controls which conversation types the bot answers.
type PolicyConfig struct {
	AllowGroup  *bool `yaml:"allow_group"`
	AllowDirect *bool `yaml:"allow_direct"`
}

// GroupAllowed reports the group policy, defaulting to allowed.
func (p PolicyConfig) GroupAllowed() bool {
	return p.AllowGroup == nil || *p.AllowGroup
}

// DirectAllowed reports the direct-message policy, defaulting to allowed.
func (p PolicyConfig) DirectAllowed() bool {
	return p.AllowDirect == nil || *p.AllowDirect
}

// LoggingConfig controls log verbosity.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TelemetryConfig controls OTLP trace export.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Session.TimeoutMinutes <= 0 {
		c.Session.TimeoutMinutes = 30
	}
	if c.Completion.BaseURL == "" {
		c.Completion.BaseURL = "http://127.0.0.1:8000"
	}
	if c.Completion.Model == "" {
		c.Completion.Model = "default"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Transport.ListenAddr == "" {
		c.Transport.ListenAddr = ":8080"
	}
}

func (c *Config) validate() error {
	if c.DingTalk.AppKey == "" || c.DingTalk.AppSecret == "" {
		return fmt.Errorf("dingtalk.app_key and dingtalk.app_secret are required")
	}
	if c.DingTalk.CardTemplateID == "" {
		return fmt.Errorf("dingtalk.card_template_id is required")
	}
	return nil
}
