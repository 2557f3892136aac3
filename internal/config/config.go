package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Verifier VerifierConfig `yaml:"verifier"`
	Cache    CacheConfig    `yaml:"cache"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Security SecurityConfig `yaml:"security"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody  int64         `yaml:"max_request_body_bytes"`
}

type VerifierConfig struct {
	// Bin is the verifier executable. Resolved via PATH when not absolute.
	Bin string `yaml:"bin"`
	// Backend selects "local" (subprocess), "remote" (HTTP), or "auto":
	// remote when remote_url is set, local otherwise.
	Backend        string        `yaml:"backend"`
	RemoteURL      string        `yaml:"remote_url"`
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MaxTimeout     time.Duration `yaml:"max_timeout"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
}

type CacheConfig struct {
	// Capacity is the maximum number of retained reports; least recently
	// used entries are evicted first. Zero disables retention (single-flight
	// deduplication still applies).
	Capacity int `yaml:"capacity"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TracingConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Endpoint string  `yaml:"endpoint"`
	Sample   float64 `yaml:"sample_rate"`
}

type SecurityConfig struct {
	APIKeyHeader   string   `yaml:"api_key_header"`
	AllowedKeys    []string `yaml:"allowed_keys"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from CLI flag or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    6 * time.Minute, // > max verification timeout + overhead
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  2 << 20, // 2MB: 1MB source plus JSON framing
		},
		Verifier: VerifierConfig{
			Bin:            "dafny",
			Backend:        "auto",
			DefaultTimeout: 60 * time.Second,
			MaxTimeout:     5 * time.Minute,
			MaxConcurrent:  16,
		},
		Cache: CacheConfig{
			Capacity: 256,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled: false,
			Sample:  0.1,
		},
		Security: SecurityConfig{
			APIKeyHeader:   "X-API-Key",
			RateLimitRPS:   100,
			RateLimitBurst: 200,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Verifier.Bin == "" {
		return fmt.Errorf("verifier.bin is required")
	}
	switch c.Verifier.Backend {
	case "", "auto", "local", "remote":
	default:
		return fmt.Errorf("verifier.backend must be auto, local, or remote, got %q", c.Verifier.Backend)
	}
	if c.Verifier.Backend == "remote" && c.Verifier.RemoteURL == "" {
		return fmt.Errorf("verifier.remote_url is required when backend is remote")
	}
	if c.Verifier.DefaultTimeout <= 0 {
		return fmt.Errorf("verifier.default_timeout must be positive")
	}
	if c.Verifier.DefaultTimeout > c.Verifier.MaxTimeout {
		return fmt.Errorf("verifier.default_timeout (%s) must be <= max_timeout (%s)",
			c.Verifier.DefaultTimeout, c.Verifier.MaxTimeout)
	}
	if c.Verifier.MaxConcurrent < 1 {
		return fmt.Errorf("verifier.max_concurrent must be >= 1")
	}
	if c.Cache.Capacity < 0 {
		return fmt.Errorf("cache.capacity must be >= 0")
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable — connections to Postgres are unencrypted")
	}
	return nil
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
