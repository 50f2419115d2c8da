// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config provides the configuration model for the UiPath MCP bridge
// server. The model is loaded from a YAML file, overlaid with defaults, and
// validated before the server starts.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a wrapper around time.Duration that marshals/unmarshals as a
// duration string. This ensures duration values are serialized as "30s",
// "1m", etc. instead of nanosecond integers.
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// Config is the top-level configuration model for the bridge server.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server"`

	// Database configures the persistence layer.
	Database DatabaseConfig `yaml:"database"`

	// Auth configures user token issuance.
	Auth AuthConfig `yaml:"auth"`

	// Jobs configures UiPath job monitoring.
	Jobs JobsConfig `yaml:"jobs"`

	// Transport configures the MCP transport adapters.
	Transport TransportConfig `yaml:"transport"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Host is the address to bind to.
	Host string `yaml:"host"`

	// Port is the TCP port to listen on.
	Port int `yaml:"port"`
}

// DatabaseConfig configures the persistence layer.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path"`
}

// AuthConfig configures user token issuance.
type AuthConfig struct {
	// JWTSecret signs user access tokens. Required.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenExpiry is the lifetime of issued user tokens.
	TokenExpiry Duration `yaml:"token_expiry"`
}

// JobsConfig configures UiPath job monitoring.
type JobsConfig struct {
	// PollInterval is the delay between job status polls.
	PollInterval Duration `yaml:"poll_interval"`

	// MaxDuration bounds how long a single tool call may monitor a job.
	MaxDuration Duration `yaml:"max_duration"`
}

// TransportConfig configures the MCP transport adapters.
type TransportConfig struct {
	// ReadinessTimeout bounds how long an inbound message waits for the
	// session handshake to complete before being rejected.
	ReadinessTimeout Duration `yaml:"readiness_timeout"`

	// KeepAliveInterval is the period between SSE keep-alive comments.
	KeepAliveInterval Duration `yaml:"keep_alive_interval"`
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LoadFromYAML parses a Config from YAML bytes, applies defaults, and
// validates the result.
func LoadFromYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if time.Duration(c.Jobs.PollInterval) <= 0 {
		return fmt.Errorf("jobs.poll_interval must be positive")
	}
	if time.Duration(c.Jobs.MaxDuration) < time.Duration(c.Jobs.PollInterval) {
		return fmt.Errorf("jobs.max_duration must be at least one poll interval")
	}
	if time.Duration(c.Transport.ReadinessTimeout) <= 0 {
		return fmt.Errorf("transport.readiness_timeout must be positive")
	}
	if time.Duration(c.Transport.KeepAliveInterval) <= 0 {
		return fmt.Errorf("transport.keep_alive_interval must be positive")
	}
	return nil
}
