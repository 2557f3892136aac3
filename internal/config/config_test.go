package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
	if cfg.Verifier.Bin != "dafny" {
		t.Errorf("Verifier.Bin = %q, want %q", cfg.Verifier.Bin, "dafny")
	}
	if cfg.Verifier.DefaultTimeout > cfg.Verifier.MaxTimeout {
		t.Error("default timeout exceeds max timeout")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"missing bin", func(c *Config) { c.Verifier.Bin = "" }, "verifier.bin"},
		{"unknown backend", func(c *Config) { c.Verifier.Backend = "docker" }, "verifier.backend"},
		{"remote without url", func(c *Config) { c.Verifier.Backend = "remote" }, "remote_url"},
		{"zero default timeout", func(c *Config) { c.Verifier.DefaultTimeout = 0 }, "default_timeout"},
		{"default above max", func(c *Config) {
			c.Verifier.DefaultTimeout = 10 * time.Minute
			c.Verifier.MaxTimeout = time.Minute
		}, "default_timeout"},
		{"zero concurrency", func(c *Config) { c.Verifier.MaxConcurrent = 0 }, "max_concurrent"},
		{"negative cache", func(c *Config) { c.Cache.Capacity = -1 }, "cache.capacity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
verifier:
  bin: /opt/dafny/dafny
  backend: local
  default_timeout: 90s
  max_timeout: 10m
cache:
  capacity: 64
security:
  allowed_keys:
    - test-key
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Verifier.Bin != "/opt/dafny/dafny" {
		t.Errorf("Verifier.Bin = %q", cfg.Verifier.Bin)
	}
	if cfg.Verifier.DefaultTimeout != 90*time.Second {
		t.Errorf("DefaultTimeout = %v, want 90s", cfg.Verifier.DefaultTimeout)
	}
	if cfg.Cache.Capacity != 64 {
		t.Errorf("Cache.Capacity = %d, want 64", cfg.Cache.Capacity)
	}
	if len(cfg.Security.AllowedKeys) != 1 || cfg.Security.AllowedKeys[0] != "test-key" {
		t.Errorf("AllowedKeys = %v", cfg.Security.AllowedKeys)
	}

	// Unset fields fall back to defaults.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Verifier.MaxConcurrent != 16 {
		t.Errorf("MaxConcurrent = %d, want default 16", cfg.Verifier.MaxConcurrent)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("verifier:\n  bin: \"\"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Load accepted a config with no verifier binary")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load accepted a missing file")
	}
}

func TestAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 9999
	if got := cfg.Address(); got != "127.0.0.1:9999" {
		t.Errorf("Address() = %q, want %q", got, "127.0.0.1:9999")
	}
}
