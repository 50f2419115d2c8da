// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"time"

	"dario.cat/mergo"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
)

// Default constants for operational configuration.
const (
	// defaultHost binds to all interfaces; the server fronts a reverse proxy
	// in most deployments.
	defaultHost = "0.0.0.0"

	// defaultPort matches the port the web clients are configured against.
	defaultPort = 8000

	// defaultDatabasePath is the SQLite file created next to the binary.
	defaultDatabasePath = "uipath_mcp.db"

	// defaultTokenExpiry is the lifetime of issued user tokens.
	defaultTokenExpiry = 24 * time.Hour

	// defaultPollInterval is the delay between job status polls.
	defaultPollInterval = 2 * time.Second

	// defaultMaxDuration bounds how long a tool call monitors a job.
	defaultMaxDuration = 10 * time.Minute

	// defaultReadinessTimeout bounds the wait for the SSE handshake before
	// an inbound message is rejected.
	defaultReadinessTimeout = 500 * time.Millisecond

	// defaultKeepAliveInterval is the period between SSE keep-alive comments.
	defaultKeepAliveInterval = 30 * time.Second
)

// DefaultConfig returns a fully populated Config with default values.
// This is the single source of truth for all operational defaults.
// The JWT secret has no default; it must be provided.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: defaultHost,
			Port: defaultPort,
		},
		Database: DatabaseConfig{
			Path: defaultDatabasePath,
		},
		Auth: AuthConfig{
			TokenExpiry: Duration(defaultTokenExpiry),
		},
		Jobs: JobsConfig{
			PollInterval: Duration(defaultPollInterval),
			MaxDuration:  Duration(defaultMaxDuration),
		},
		Transport: TransportConfig{
			ReadinessTimeout:  Duration(defaultReadinessTimeout),
			KeepAliveInterval: Duration(defaultKeepAliveInterval),
		},
	}
}

// ApplyDefaults fills zero-valued fields of cfg from DefaultConfig.
// Explicitly configured values always win.
func ApplyDefaults(cfg *Config) {
	if err := mergo.Merge(cfg, DefaultConfig()); err != nil {
		// mergo only fails on non-struct destinations; surface loudly if the
		// model ever changes in a way that breaks merging.
		logger.Errorf("failed to apply configuration defaults: %v", err)
	}
}
