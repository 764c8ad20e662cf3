// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stagepass Contributors

// Package config loads and validates the service configuration from a YAML
// file, command-line flags and the environment.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the full service configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database" json:"database,omitempty"`
	API      APIConfig      `koanf:"api" json:"api,omitempty"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics,omitempty"`
	Auth     AuthConfig     `koanf:"auth" json:"auth,omitempty"`
	SMTP     SMTPConfig     `koanf:"smtp" json:"smtp,omitempty"`
	Reset    ResetConfig    `koanf:"reset" json:"reset,omitempty"`
	Log      LogConfig      `koanf:"log" json:"log,omitempty"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL DSN. Falls back to the DATABASE_URL environment
	// variable when empty.
	URL string `koanf:"url" json:"url,omitempty"`
}

// APIConfig holds the public HTTP API settings.
type APIConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty"`
}

// MetricsConfig holds the observability endpoint settings.
type MetricsConfig struct {
	// Addr is the metrics/health listen address. Empty disables the server.
	Addr string `koanf:"addr" json:"addr,omitempty"`
}

// AuthConfig holds session and registration rate-limit tunables.
type AuthConfig struct {
	SessionTTL    time.Duration `koanf:"session_ttl" json:"session_ttl,omitempty" jsonschema:"oneof_type=string;integer"`
	MaxAttempts   int           `koanf:"max_attempts" json:"max_attempts,omitempty"`
	AttemptWindow time.Duration `koanf:"attempt_window" json:"attempt_window,omitempty" jsonschema:"oneof_type=string;integer"`
	BlockDuration time.Duration `koanf:"block_duration" json:"block_duration,omitempty" jsonschema:"oneof_type=string;integer"`
}

// SMTPConfig holds outbound mail settings.
type SMTPConfig struct {
	Host     string `koanf:"host" json:"host,omitempty"`
	Port     int    `koanf:"port" json:"port,omitempty"`
	Username string `koanf:"username" json:"username,omitempty"`
	Password string `koanf:"password" json:"password,omitempty"`
	From     string `koanf:"from" json:"from,omitempty"`
}

// ResetConfig holds password-reset settings.
type ResetConfig struct {
	// RecoveryEmail is the only address reset requests are honored for.
	RecoveryEmail string `koanf:"recovery_email" json:"recovery_email,omitempty"`

	// SiteURL is the public base URL used to build reset links.
	SiteURL string `koanf:"site_url" json:"site_url,omitempty"`

	TokenTTL time.Duration `koanf:"token_ttl" json:"token_ttl,omitempty" jsonschema:"oneof_type=string;integer"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		API:     APIConfig{Addr: ":8080"},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Auth: AuthConfig{
			SessionTTL:    30 * 24 * time.Hour,
			MaxAttempts:   3,
			AttemptWindow: time.Hour,
			BlockDuration: time.Hour,
		},
		SMTP:  SMTPConfig{Port: 587},
		Reset: ResetConfig{TokenTTL: time.Hour},
		Log:   LogConfig{Format: "json", Level: "info"},
	}
}

// Load merges the configuration in precedence order: defaults, then the YAML
// file at path (if non-empty), then changed flags, then the DATABASE_URL
// environment variable as a database URL fallback. Flag names use dots as
// section separators (e.g. "api.addr").
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		raw, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateSchema(raw); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the merged configuration for values the schema cannot
// express, such as cross-field requirements.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url (or DATABASE_URL) is required")
	}
	if c.API.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("api.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if c.Auth.MaxAttempts <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.max_attempts must be positive")
	}
	if c.Auth.AttemptWindow <= 0 || c.Auth.BlockDuration <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("auth.attempt_window and auth.block_duration must be positive")
	}
	if c.Reset.RecoveryEmail != "" {
		if c.SMTP.Host == "" || c.SMTP.Username == "" || c.SMTP.Password == "" {
			return oops.Code("CONFIG_INVALID").
				Errorf("smtp.host, smtp.username and smtp.password are required when reset.recovery_email is set")
		}
		if c.Reset.SiteURL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("reset.site_url is required when reset.recovery_email is set")
		}
	}
	return nil
}
