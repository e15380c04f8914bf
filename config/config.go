// Package config loads the daemon configuration: which gRPC endpoint serves
// each scheme and isolation domain, and how the session is run.
//
// Config is stored at $XDG_CONFIG_HOME/bundlesync/config.yaml (defaults to
// ~/.config/bundlesync/config.yaml).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultWorkers      = 2
	defaultRestartRetry = time.Second
)

var ErrNoDefaultTarget = errors.New("default target is required")

// Config describes one session and the endpoints its Bundle is built from.
type Config struct {
	Session              string            `yaml:"session,omitempty"`
	Default              string            `yaml:"default"`
	Schemes              map[string]string `yaml:"schemes,omitempty"`
	Isolation            map[string]string `yaml:"isolation,omitempty"`
	BypassRedirectChecks bool              `yaml:"bypass_redirect_checks,omitempty"`
	Workers              int               `yaml:"workers,omitempty"`
	LogLevel             string            `yaml:"log_level,omitempty"`
	RestartRetry         time.Duration     `yaml:"restart_retry,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Session:      "default",
		Schemes:      make(map[string]string),
		Isolation:    make(map[string]string),
		Workers:      defaultWorkers,
		RestartRetry: defaultRestartRetry,
	}
}

// Path returns the config file location. It respects XDG_CONFIG_HOME,
// falling back to ~/.config/bundlesync/config.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "bundlesync", "config.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "bundlesync", "config.yaml")
}

// Load reads the config file at path, or Path() when path is empty. A
// missing file yields Default (not an error). Unset fields take their
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Session == "" {
		cfg.Session = "default"
	}
	if cfg.Schemes == nil {
		cfg.Schemes = make(map[string]string)
	}
	if cfg.Isolation == nil {
		cfg.Isolation = make(map[string]string)
	}
	if cfg.RestartRetry == 0 {
		cfg.RestartRetry = defaultRestartRetry
	}
	return cfg, nil
}

// Save writes the config to path, creating directories as needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate reports the first problem that would keep a session from
// starting.
func (c *Config) Validate() error {
	if c.Default == "" {
		return ErrNoDefaultTarget
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.RestartRetry < 0 {
		return fmt.Errorf("restart_retry must not be negative, got %s", c.RestartRetry)
	}
	for scheme, target := range c.Schemes {
		if scheme == "" {
			return errors.New("scheme name must not be empty")
		}
		if target == "" {
			return fmt.Errorf("scheme %q has no target", scheme)
		}
	}
	for key, target := range c.Isolation {
		if key == "" {
			return errors.New("isolation key must not be empty")
		}
		if target == "" {
			return fmt.Errorf("isolation %q has no target", key)
		}
	}
	return nil
}
