// ABOUTME: Configuration loading and parsing for wa-gateway
// ABOUTME: Supports YAML files with environment variable expansion plus env-only defaults

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete wa-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Network   NetworkConfig   `yaml:"network"`
	Storage   StorageConfig   `yaml:"storage"`
	Session   SessionConfig   `yaml:"session"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the HTTP listen address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// NetworkConfig holds the messaging network relay configuration
type NetworkConfig struct {
	URL        string `yaml:"url"`
	ClientName string `yaml:"client_name"`
}

// StorageConfig selects the credential store backend.
// DSN set means SQLite; empty means one file per key under Dir.
type StorageConfig struct {
	DSN string `yaml:"dsn"`
	Dir string `yaml:"dir"`
}

// SessionConfig holds reconnect tuning
type SessionConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	RetryDelayRaw string `yaml:"retry_delay"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Hostname  string `yaml:"hostname"`
	AuthKey   string `yaml:"auth_key"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no config file exists.
// Environment overrides still apply via applyEnv.
func Default() *Config {
	cfg := &Config{
		Server:  ServerConfig{HTTPAddr: ":8080"},
		Network: NetworkConfig{ClientName: "wa-gateway"},
		Storage: StorageConfig{Dir: "auth_session"},
		Session: SessionConfig{MaxAttempts: 5, RetryDelay: 5 * time.Second},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
	applyEnv(cfg)
	return cfg
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded. If the file does
// not exist, Default() is returned instead of an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment
// variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills zero-value fields with the same defaults Default() uses
func applyDefaults(cfg *Config) {
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":8080"
	}
	if cfg.Network.ClientName == "" {
		cfg.Network.ClientName = "wa-gateway"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "auth_session"
	}
	if cfg.Session.MaxAttempts == 0 {
		cfg.Session.MaxAttempts = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// applyEnv applies the plain environment overrides the deployment platform sets:
// PORT, DATABASE_URL and LOG_LEVEL.
func applyEnv(cfg *Config) {
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.HTTPAddr = ":" + port
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Storage.DSN = dsn
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// parseDurations converts raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	if cfg.Session.RetryDelayRaw == "" {
		if cfg.Session.RetryDelay == 0 {
			cfg.Session.RetryDelay = 5 * time.Second
		}
		return nil
	}

	d, err := time.ParseDuration(cfg.Session.RetryDelayRaw)
	if err != nil {
		return fmt.Errorf("invalid session.retry_delay %q: %w", cfg.Session.RetryDelayRaw, err)
	}
	cfg.Session.RetryDelay = d
	return nil
}

// Validate checks the configuration for invalid field combinations
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Session.MaxAttempts < 1 {
		return fmt.Errorf("session.max_attempts must be at least 1, got %d", c.Session.MaxAttempts)
	}
	if c.Session.RetryDelay < 0 {
		return fmt.Errorf("session.retry_delay must not be negative")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	return nil
}
