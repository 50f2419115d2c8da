// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

// ServerStore implements storage.ServerStore using SQLite.
type ServerStore struct {
	db *sql.DB
}

// NewServerStore creates a new SQLite-backed ServerStore.
func NewServerStore(db *DB) *ServerStore {
	return &ServerStore{db: db.DB()}
}

var _ storage.ServerStore = (*ServerStore)(nil)

const serverColumns = `id, tenant_name, server_name, description, user_id, api_token, created_at`

// Create stores a new server.
func (s *ServerStore) Create(ctx context.Context, server *storage.Server) (*storage.Server, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_servers (tenant_name, server_name, description, user_id, api_token)
		VALUES (?, ?, ?, ?, ?)`,
		server.TenantName, server.ServerName, server.Description, server.UserID, server.APIToken,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrAlreadyExists
		}
		return nil, fmt.Errorf("inserting server: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting server id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID retrieves a server by id.
func (s *ServerStore) GetByID(ctx context.Context, id int64) (*storage.Server, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM mcp_servers WHERE id = ?`, id)
	return scanServer(row)
}

// GetByEndpoint retrieves a server by its tenant/server name pair.
func (s *ServerStore) GetByEndpoint(ctx context.Context, tenantName, serverName string) (*storage.Server, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+serverColumns+` FROM mcp_servers WHERE tenant_name = ? AND server_name = ?`,
		tenantName, serverName)
	return scanServer(row)
}

// List returns servers owned by userID, or all servers when userID is 0.
func (s *ServerStore) List(ctx context.Context, userID int64) ([]*storage.Server, error) {
	query := `SELECT ` + serverColumns + ` FROM mcp_servers ORDER BY tenant_name, server_name`
	args := []any{}
	if userID != 0 {
		query = `SELECT ` + serverColumns + ` FROM mcp_servers WHERE user_id = ? ORDER BY tenant_name, server_name`
		args = append(args, userID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	defer rows.Close()

	var servers []*storage.Server
	for rows.Next() {
		var srv storage.Server
		if err := rows.Scan(
			&srv.ID, &srv.TenantName, &srv.ServerName, &srv.Description,
			&srv.UserID, &srv.APIToken, &srv.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning server row: %w", err)
		}
		servers = append(servers, &srv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating server rows: %w", err)
	}
	return servers, nil
}

// Update modifies a server's description.
func (s *ServerStore) Update(ctx context.Context, server *storage.Server) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mcp_servers SET description = ? WHERE id = ?`,
		server.Description, server.ID)
	if err != nil {
		return fmt.Errorf("updating server: %w", err)
	}
	return requireRowAffected(res)
}

// SetAPIToken replaces the server's API token. Empty revokes it.
func (s *ServerStore) SetAPIToken(ctx context.Context, serverID int64, token string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE mcp_servers SET api_token = ? WHERE id = ?`, token, serverID)
	if err != nil {
		return fmt.Errorf("setting api token: %w", err)
	}
	return requireRowAffected(res)
}

// Delete removes a server; its tools cascade.
func (s *ServerStore) Delete(ctx context.Context, serverID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mcp_servers WHERE id = ?`, serverID)
	if err != nil {
		return fmt.Errorf("deleting server: %w", err)
	}
	return requireRowAffected(res)
}

func scanServer(row *sql.Row) (*storage.Server, error) {
	var srv storage.Server
	err := row.Scan(
		&srv.ID, &srv.TenantName, &srv.ServerName, &srv.Description,
		&srv.UserID, &srv.APIToken, &srv.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning server: %w", err)
	}
	return &srv, nil
}
