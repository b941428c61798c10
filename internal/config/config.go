// Adaptive Coach - Personalized Training Recommendation Engine
// Copyright 2026 Adaptive Fit
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/adaptivefit/coach

// Package config loads application configuration with layered sources:
// built-in defaults, an optional YAML config file, then environment
// variables with the COACH_ prefix. ENV > file > defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/adaptivefit/coach/internal/coach"
	"github.com/adaptivefit/coach/internal/coach/scorers"
	"github.com/adaptivefit/coach/internal/logging"
)

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "COACH_CONFIG_PATH"

// envPrefix namespaces the application's environment variables.
const envPrefix = "COACH_"

// DefaultConfigPaths are searched in order when no explicit path is set.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/adaptive-coach/config.yaml",
}

// Config is the application configuration. Immutable after Load and
// safe for concurrent reads.
type Config struct {
	Server  ServerConfig   `koanf:"server"`
	Store   StoreConfig    `koanf:"store"`
	Engine  coach.Config   `koanf:"engine"`
	Scorer  ScorerConfig   `koanf:"scorer"`
	Audit   AuditConfig    `koanf:"audit"`
	Logging logging.Config `koanf:"logging"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// RateLimit is requests per minute per client IP. Zero disables.
	RateLimit int `koanf:"rate_limit"`

	// CORSOrigins lists allowed origins; empty allows none.
	CORSOrigins []string `koanf:"cors_origins"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// Dir is the Badger data directory.
	Dir string `koanf:"dir"`

	// InMemory runs without disk. For development only.
	InMemory bool `koanf:"in_memory"`

	// GCInterval is how often value-log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval"`
}

// ScorerConfig controls the optional external model scorer.
type ScorerConfig struct {
	// Enabled wires the HTTP model scorer into the engine. When false
	// the engine runs rule-based only.
	Enabled bool `koanf:"enabled"`

	Model scorers.ModelConfig `koanf:"model"`
}

// AuditConfig controls the audit pipeline.
type AuditConfig struct {
	// Enabled starts the audit recorder and archiver.
	Enabled bool `koanf:"enabled"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       300,
		},
		Store: StoreConfig{
			Dir:        "data/coach",
			GCInterval: 10 * time.Minute,
		},
		Engine: coach.DefaultConfig(),
		Scorer: ScorerConfig{
			Model: scorers.DefaultModelConfig(),
		},
		Audit: AuditConfig{
			Enabled: true,
		},
		Logging: logging.Config{
			Level:     "info",
			Format:    "json",
			Timestamp: true,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file,
// and COACH_-prefixed environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// COACH_SERVER_PORT -> server.port, COACH_SCORER_MODEL_URL ->
	// scorer.model.url. Multi-word leaf keys use double underscores:
	// COACH_SERVER_RATE__LIMIT -> server.rate_limit.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		s = strings.ReplaceAll(s, "__", "-")
		s = strings.ReplaceAll(s, "_", ".")
		return strings.ReplaceAll(s, "-", "_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks cross-field configuration sanity.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d outside [1, 65535]", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if !c.Store.InMemory && c.Store.Dir == "" {
		return fmt.Errorf("store.dir is required unless store.in_memory is set")
	}
	if c.Store.GCInterval <= 0 {
		return fmt.Errorf("store.gc_interval must be positive")
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.Scorer.Enabled && c.Scorer.Model.URL == "" {
		return fmt.Errorf("scorer.model.url is required when the scorer is enabled")
	}
	return nil
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
