// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import "time"

// Role values for User.Role.
const (
	// RoleUser is a regular account that owns its own MCP servers.
	RoleUser = "user"
	// RoleAdmin can see and manage every MCP server.
	RoleAdmin = "admin"
)

// UiPath auth types for User.UiPathAuthType.
const (
	// AuthTypePAT uses a long-lived personal access token.
	AuthTypePAT = "pat"
	// AuthTypeOAuth uses client-credentials tokens refreshed on expiry.
	AuthTypeOAuth = "oauth"
)

// User is a registered account. Each user carries its own UiPath
// Orchestrator connection settings; jobs started from the user's MCP
// servers run under these credentials.
type User struct {
	ID             int64
	Username       string
	Email          string
	HashedPassword string
	Role           string
	IsActive       bool

	// UiPath Orchestrator connection settings.
	UiPathURL          string
	UiPathAuthType     string
	UiPathAccessToken  string
	UiPathClientID     string
	UiPathClientSecret string

	CreatedAt time.Time
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Server is a registered MCP endpoint. The (TenantName, ServerName) pair is
// unique and forms the endpoint's URL path segment.
type Server struct {
	ID          int64
	TenantName  string
	ServerName  string
	Description string
	UserID      int64

	// APIToken grants MCP access to this endpoint without a user token.
	// Empty means no token has been issued.
	APIToken string

	CreatedAt time.Time
}

// Tool is an MCP tool registered on a Server. A tool either maps to a UiPath
// process (ProcessName set) or to a built-in function (the name matches a
// registered builtin).
type Tool struct {
	ID          int64
	ServerID    int64
	Name        string
	Description string

	// InputSchema is the JSON Schema for the tool's arguments.
	InputSchema map[string]any

	// UiPath process binding. Empty for built-in tools.
	ProcessName string
	FolderPath  string
	FolderID    string

	CreatedAt time.Time
}

// IsBuiltin reports whether the tool is backed by a built-in function
// rather than a UiPath process.
func (t *Tool) IsBuiltin() bool {
	return t.ProcessName == ""
}
