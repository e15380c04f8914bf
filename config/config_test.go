package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Workers != defaultWorkers || cfg.RestartRetry != defaultRestartRetry || cfg.Session != "default" {
		t.Fatalf("Load() = %+v, want defaults", cfg)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrNoDefaultTarget) {
		t.Fatalf("Validate() error = %v, want ErrNoDefaultTarget", err)
	}
}

func TestLoad_ParsesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`session: frame-1
default: unix:///run/network.sock
schemes:
  https: unix:///run/network.sock
  file: passthrough:///files
isolation:
  chrome-extension://abc: passthrough:///extension
bypass_redirect_checks: true
workers: 4
log_level: debug
restart_retry: 250ms
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.Session != "frame-1" || cfg.Workers != 4 || cfg.LogLevel != "debug" || !cfg.BypassRedirectChecks {
		t.Fatalf("Load() = %+v", cfg)
	}
	if cfg.RestartRetry != 250*time.Millisecond {
		t.Fatalf("RestartRetry = %s, want 250ms", cfg.RestartRetry)
	}
	if cfg.Schemes["file"] != "passthrough:///files" || cfg.Isolation["chrome-extension://abc"] != "passthrough:///extension" {
		t.Fatalf("targets = %v %v", cfg.Schemes, cfg.Isolation)
	}
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("schemes: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load() accepted malformed yaml")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Default = "passthrough:///network"
	cfg.Schemes["https"] = "passthrough:///network"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Default != cfg.Default || got.Schemes["https"] != "passthrough:///network" {
		t.Fatalf("Load() = %+v", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"negative retry", func(c *Config) { c.RestartRetry = -time.Second }},
		{"empty scheme", func(c *Config) { c.Schemes[""] = "x" }},
		{"scheme without target", func(c *Config) { c.Schemes["https"] = "" }},
		{"isolation without target", func(c *Config) { c.Isolation["ext"] = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Default = "passthrough:///network"
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("Validate() accepted invalid config")
			}
		})
	}
}

func TestPath_RespectsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if got, want := Path(), filepath.Join(dir, "bundlesync", "config.yaml"); got != want {
		t.Fatalf("Path() = %s, want %s", got, want)
	}
}
