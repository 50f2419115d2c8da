// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

// ToolStore implements storage.ToolStore using SQLite.
type ToolStore struct {
	db *sql.DB
}

// NewToolStore creates a new SQLite-backed ToolStore.
func NewToolStore(db *DB) *ToolStore {
	return &ToolStore{db: db.DB()}
}

var _ storage.ToolStore = (*ToolStore)(nil)

const toolColumns = `id, server_id, name, description, input_schema,
	uipath_process_name, uipath_folder_path, uipath_folder_id, created_at`

// Create stores a new tool.
func (s *ToolStore) Create(ctx context.Context, tool *storage.Tool) (*storage.Tool, error) {
	schemaJSON, err := encodeSchema(tool.InputSchema)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO mcp_tools (
			server_id, name, description, input_schema,
			uipath_process_name, uipath_folder_path, uipath_folder_id
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tool.ServerID, tool.Name, tool.Description, schemaJSON,
		tool.ProcessName, tool.FolderPath, tool.FolderID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrAlreadyExists
		}
		return nil, fmt.Errorf("inserting tool: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting tool id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID retrieves a tool by id.
func (s *ToolStore) GetByID(ctx context.Context, id int64) (*storage.Tool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+toolColumns+` FROM mcp_tools WHERE id = ?`, id)
	return scanTool(row)
}

// GetByName retrieves a tool by server id and tool name.
func (s *ToolStore) GetByName(ctx context.Context, serverID int64, name string) (*storage.Tool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+toolColumns+` FROM mcp_tools WHERE server_id = ? AND name = ?`,
		serverID, name)
	return scanTool(row)
}

// List returns all tools registered on a server.
func (s *ToolStore) List(ctx context.Context, serverID int64) ([]*storage.Tool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+toolColumns+` FROM mcp_tools WHERE server_id = ? ORDER BY name`, serverID)
	if err != nil {
		return nil, fmt.Errorf("listing tools: %w", err)
	}
	defer rows.Close()

	var tools []*storage.Tool
	for rows.Next() {
		tool, err := scanToolRow(rows)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool rows: %w", err)
	}
	return tools, nil
}

// Update modifies an existing tool.
func (s *ToolStore) Update(ctx context.Context, tool *storage.Tool) error {
	schemaJSON, err := encodeSchema(tool.InputSchema)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE mcp_tools SET
			name = ?, description = ?, input_schema = ?,
			uipath_process_name = ?, uipath_folder_path = ?, uipath_folder_id = ?
		WHERE id = ?`,
		tool.Name, tool.Description, schemaJSON,
		tool.ProcessName, tool.FolderPath, tool.FolderID, tool.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("updating tool: %w", err)
	}
	return requireRowAffected(res)
}

// Delete removes a tool.
func (s *ToolStore) Delete(ctx context.Context, toolID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mcp_tools WHERE id = ?`, toolID)
	if err != nil {
		return fmt.Errorf("deleting tool: %w", err)
	}
	return requireRowAffected(res)
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type scanner interface {
	Scan(dest ...any) error
}

func scanTool(row *sql.Row) (*storage.Tool, error) {
	tool, err := scanToolRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return tool, err
}

func scanToolRow(row scanner) (*storage.Tool, error) {
	var t storage.Tool
	var schemaJSON string
	err := row.Scan(
		&t.ID, &t.ServerID, &t.Name, &t.Description, &schemaJSON,
		&t.ProcessName, &t.FolderPath, &t.FolderID, &t.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning tool: %w", err)
	}
	if err := json.Unmarshal([]byte(schemaJSON), &t.InputSchema); err != nil {
		return nil, fmt.Errorf("decoding input schema: %w", err)
	}
	return &t, nil
}

func encodeSchema(schema map[string]any) (string, error) {
	if schema == nil {
		return "{}", nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return "", fmt.Errorf("encoding input schema: %w", err)
	}
	return string(data), nil
}
