// ABOUTME: Configuration loading and parsing for the support gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete support-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Support  SupportConfig  `yaml:"support"`
	Presence PresenceConfig `yaml:"presence"`
	Media    MediaConfig    `yaml:"media"`
	Push     PushConfig     `yaml:"push"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// SupportConfig holds the assignment policy and the support agent roster.
// Agents are identity IDs issued by the external auth service.
type SupportConfig struct {
	Policy string   `yaml:"policy"` // single | round_robin | least_busy | availability
	Agents []string `yaml:"agents"`
}

// PresenceConfig holds presence registry configuration. When RedisURL is
// set, presence is shared across gateway instances through Redis with the
// given TTL; otherwise it stays process-local.
type PresenceConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"-"`

	TTLRaw string `yaml:"ttl"`
}

// MediaConfig holds the external media store client configuration
type MediaConfig struct {
	BaseURL    string        `yaml:"base_url"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"-"`

	TimeoutRaw string `yaml:"timeout"`
}

// PushConfig holds push notification emission configuration
type PushConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RedisURL string `yaml:"redis_url"`
	Queue    string `yaml:"queue"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a config with sensible development defaults.
func DefaultConfig() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: ":8080"},
		Database: DatabaseConfig{Path: "data/support.db"},
		Support:  SupportConfig{Policy: "single"},
		Presence: PresenceConfig{TTL: 60 * time.Second},
		Media:    MediaConfig{Timeout: 5 * time.Second, MaxRetries: 3},
		Push:     PushConfig{Queue: "notifications"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR_NAME} references with environment values.
// Unset variables expand to the empty string.
func expandEnv(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded and
// duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(expandEnv(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) parseDurations() error {
	if c.Presence.TTLRaw != "" {
		d, err := time.ParseDuration(c.Presence.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing presence.ttl: %w", err)
		}
		c.Presence.TTL = d
	}
	if c.Media.TimeoutRaw != "" {
		d, err := time.ParseDuration(c.Media.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing media.timeout: %w", err)
		}
		c.Media.Timeout = d
	}
	return nil
}

// Validate checks the configuration for missing or contradictory values.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	switch c.Support.Policy {
	case "single", "round_robin", "least_busy", "availability":
	default:
		return fmt.Errorf("support.policy: unknown policy %q", c.Support.Policy)
	}
	if len(c.Support.Agents) == 0 {
		return fmt.Errorf("support.agents: at least one support agent is required")
	}
	if c.Push.Enabled && c.Push.RedisURL == "" {
		return fmt.Errorf("push.redis_url is required when push is enabled")
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format: must be text or json, got %q", c.Logging.Format)
	}
	return nil
}
