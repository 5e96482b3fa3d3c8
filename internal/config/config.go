// Package config loads the queue server connection configuration used by
// the CLI. Values are resolved in order of increasing priority: built-in
// defaults, the configuration file, environment variables, command-line
// flags (applied by the commands themselves).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables recognized during resolution.
const (
	EnvZMQControlAddress = "QSERVER_ZMQ_CONTROL_ADDRESS"
	EnvZMQInfoAddress    = "QSERVER_ZMQ_INFO_ADDRESS"
	EnvHTTPServerURI     = "QSERVER_HTTP_SERVER_URI"
)

// Config is the top-level qserver.yml configuration.
type Config struct {
	Protocol string     `yaml:"protocol,omitempty"` // "zmq" (default) or "http"
	ZMQ      ZMQConfig  `yaml:"zmq,omitempty"`
	HTTP     HTTPConfig `yaml:"http,omitempty"`
	User     UserConfig `yaml:"user,omitempty"`

	// Timeout applied to wait commands such as "qserver wait idle".
	WaitTimeout time.Duration `yaml:"wait_timeout,omitempty"`
}

// ZMQConfig holds 0MQ connection settings.
type ZMQConfig struct {
	ControlAddress string        `yaml:"control_address,omitempty"`
	InfoAddress    string        `yaml:"info_address,omitempty"`
	SendTimeout    time.Duration `yaml:"send_timeout,omitempty"`
	RecvTimeout    time.Duration `yaml:"recv_timeout,omitempty"`
}

// HTTPConfig holds REST API connection settings.
type HTTPConfig struct {
	ServerURI string        `yaml:"server_uri,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

// UserConfig identifies the requests sent by the CLI.
type UserConfig struct {
	Name  string `yaml:"name,omitempty"`
	Group string `yaml:"group,omitempty"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Protocol:    "zmq",
		WaitTimeout: 60 * time.Second,
		User:        UserConfig{Name: "qserver-cli", Group: "admin"},
	}
}

// DefaultPath returns the default configuration file location
// (~/.config/qserver/qserver.yml). An empty string means no usable home
// directory was found.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "qserver", "qserver.yml")
}

// Load resolves the configuration. If path is empty the default location
// is tried; a missing file at the default location is not an error. A
// missing file at an explicitly given path is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
			// Fall through to defaults.
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvZMQControlAddress); v != "" {
		c.ZMQ.ControlAddress = v
	}
	if v := os.Getenv(EnvZMQInfoAddress); v != "" {
		c.ZMQ.InfoAddress = v
	}
	if v := os.Getenv(EnvHTTPServerURI); v != "" {
		c.HTTP.ServerURI = v
	}
}

// Validate performs strict validation on the configuration.
func (c *Config) Validate() error {
	switch c.Protocol {
	case "", "zmq", "http":
	default:
		return fmt.Errorf("unsupported protocol: %s (expected: zmq or http)", c.Protocol)
	}
	if c.WaitTimeout < 0 {
		return fmt.Errorf("wait_timeout must be >= 0, got %s", c.WaitTimeout)
	}
	if c.ZMQ.SendTimeout < 0 || c.ZMQ.RecvTimeout < 0 {
		return fmt.Errorf("zmq timeouts must be >= 0")
	}
	if c.HTTP.Timeout < 0 {
		return fmt.Errorf("http timeout must be >= 0, got %s", c.HTTP.Timeout)
	}
	return nil
}
