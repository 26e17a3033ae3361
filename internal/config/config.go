// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

// Package config loads daemon configuration with layered sources: struct
// defaults, then an optional YAML file, then environment variables. The
// merged result is validated before the daemon starts.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/fosdem-syncd/config.yaml",
	"/etc/fosdem-syncd/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// envPrefix namespaces the daemon's environment variables.
const envPrefix = "FOSDEM_"

// Config is the root daemon configuration.
type Config struct {
	Logging LoggingConfig `koanf:"logging"`
	Store   StoreConfig   `koanf:"store"`
	Remote  RemoteConfig  `koanf:"remote"`
	Sync    SyncConfig    `koanf:"sync"`
	Cache   CacheConfig   `koanf:"cache"`
	Server  ServerConfig  `koanf:"server"`
}

// LoggingConfig configures the zerolog-backed logger.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// StoreConfig configures the durable local store.
type StoreConfig struct {
	Path         string        `koanf:"path" validate:"required"`
	SyncWrites   bool          `koanf:"sync_writes"`
	CloseTimeout time.Duration `koanf:"close_timeout" validate:"min=1s"`
}

// RemoteConfig configures the companion API client.
type RemoteConfig struct {
	BaseURL string        `koanf:"base_url" validate:"required,url"`
	Token   string        `koanf:"token"`
	UserID  string        `koanf:"user_id"`
	Timeout time.Duration `koanf:"timeout" validate:"min=1s"`

	// Breaker enables the circuit breaker around remote calls.
	Breaker bool `koanf:"breaker"`
}

// SyncConfig configures the background sync engine.
type SyncConfig struct {
	Interval      time.Duration `koanf:"interval" validate:"min=10s"`
	RetryAttempts int           `koanf:"retry_attempts" validate:"min=1,max=10"`
	RetryDelay    time.Duration `koanf:"retry_delay" validate:"min=100ms"`
}

// CacheConfig configures the two-tier dataset cache.
type CacheConfig struct {
	Capacity     int           `koanf:"capacity" validate:"min=1"`
	SoftTTL      time.Duration `koanf:"soft_ttl" validate:"min=1m"`
	FetchTimeout time.Duration `koanf:"fetch_timeout" validate:"min=1s"`

	// Persistent stores entries in the local store's database so the
	// dataset survives restarts.
	Persistent bool `koanf:"persistent"`

	// SweepInterval is how often the janitor drops hard-expired entries.
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"min=10s"`
}

// ServerConfig configures the health/metrics HTTP listener.
type ServerConfig struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"min=1s"`
}

// defaultConfig returns the built-in defaults, applied before file and env
// layers.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Store: StoreConfig{
			Path:         "/data/fosdem-syncd",
			SyncWrites:   false,
			CloseTimeout: 30 * time.Second,
		},
		Remote: RemoteConfig{
			BaseURL: "https://fosdempwa.com",
			Timeout: 30 * time.Second,
			Breaker: true,
		},
		Sync: SyncConfig{
			Interval:      5 * time.Minute,
			RetryAttempts: 3,
			RetryDelay:    2 * time.Second,
		},
		Cache: CacheConfig{
			Capacity:      1024,
			SoftTTL:       time.Hour,
			FetchTimeout:  30 * time.Second,
			Persistent:    true,
			SweepInterval: 10 * time.Minute,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variables, in ascending priority, then validates the result.
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile loads configuration with an explicit file path (no search).
func LoadFile(path string) (*Config, error) {
	return loadFrom(path)
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	// FOSDEM_REMOTE_BASE_URL -> remote.base_url etc. Only the first
	// underscore separates the section; the rest stays a field name.
	envProvider := env.Provider(envPrefix, ".", envTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransform maps FOSDEM_SECTION_FIELD_NAME to section.field_name.
func envTransform(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	parts := strings.SplitN(s, "_", 2)
	if len(parts) != 2 {
		return s
	}
	return parts[0] + "." + parts[1]
}

// Validate checks the merged configuration against the struct's validate
// tags.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("field %s failed rule %q", fe.Namespace(), fe.Tag())
		}
		return err
	}
	return nil
}

// findConfigFile returns the first existing config file path, checking the
// CONFIG_PATH environment variable before the default search paths.
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
