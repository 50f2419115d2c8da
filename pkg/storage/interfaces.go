// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides domain-specific storage interfaces for the
// bridge server.
package storage

import (
	"context"
)

// UserStore defines the interface for managing user persistence.
type UserStore interface {
	// Create stores a new user.
	Create(ctx context.Context, user *User) (*User, error)
	// GetByID retrieves a user by id.
	GetByID(ctx context.Context, id int64) (*User, error)
	// GetByUsername retrieves a user by username.
	GetByUsername(ctx context.Context, username string) (*User, error)
	// UpdateUiPathConfig replaces the user's UiPath connection settings.
	UpdateUiPathConfig(ctx context.Context, userID int64, cfg UiPathConfig) error
	// UpdateAccessToken replaces only the stored UiPath access token.
	// Used after an OAuth refresh.
	UpdateAccessToken(ctx context.Context, userID int64, token string) error
}

// UiPathConfig is the updatable subset of a user's UiPath settings.
type UiPathConfig struct {
	URL          string
	AuthType     string
	AccessToken  string
	ClientID     string
	ClientSecret string
}

// ServerStore defines the interface for managing MCP server persistence.
type ServerStore interface {
	// Create stores a new server.
	Create(ctx context.Context, server *Server) (*Server, error)
	// GetByID retrieves a server by id.
	GetByID(ctx context.Context, id int64) (*Server, error)
	// GetByEndpoint retrieves a server by its tenant/server name pair.
	GetByEndpoint(ctx context.Context, tenantName, serverName string) (*Server, error)
	// List returns servers owned by userID, or all servers when userID is 0.
	List(ctx context.Context, userID int64) ([]*Server, error)
	// Update modifies a server's description.
	Update(ctx context.Context, server *Server) error
	// SetAPIToken replaces the server's API token. Empty revokes it.
	SetAPIToken(ctx context.Context, serverID int64, token string) error
	// Delete removes a server and its tools.
	Delete(ctx context.Context, serverID int64) error
}

// ToolStore defines the interface for managing MCP tool persistence.
type ToolStore interface {
	// Create stores a new tool.
	Create(ctx context.Context, tool *Tool) (*Tool, error)
	// GetByID retrieves a tool by id.
	GetByID(ctx context.Context, id int64) (*Tool, error)
	// GetByName retrieves a tool by server id and tool name.
	GetByName(ctx context.Context, serverID int64, name string) (*Tool, error)
	// List returns all tools registered on a server.
	List(ctx context.Context, serverID int64) ([]*Tool, error)
	// Update modifies an existing tool.
	Update(ctx context.Context, tool *Tool) error
	// Delete removes a tool.
	Delete(ctx context.Context, toolID int64) error
}
