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

// UserStore implements storage.UserStore using SQLite.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new SQLite-backed UserStore.
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db.DB()}
}

var _ storage.UserStore = (*UserStore)(nil)

// userColumns is the SELECT column list shared by user queries.
const userColumns = `id, username, email, hashed_password, role, is_active,
	uipath_url, uipath_auth_type, uipath_access_token,
	uipath_client_id, uipath_client_secret, created_at`

// Create stores a new user.
func (s *UserStore) Create(ctx context.Context, user *storage.User) (*storage.User, error) {
	role := user.Role
	if role == "" {
		role = storage.RoleUser
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (
			username, email, hashed_password, role, is_active,
			uipath_url, uipath_auth_type, uipath_access_token,
			uipath_client_id, uipath_client_secret
		) VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?, ?)`,
		user.Username,
		user.Email,
		user.HashedPassword,
		role,
		user.UiPathURL,
		user.UiPathAuthType,
		user.UiPathAccessToken,
		user.UiPathClientID,
		user.UiPathClientSecret,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrAlreadyExists
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// GetByID retrieves a user by id.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*storage.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetByUsername retrieves a user by username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*storage.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// UpdateUiPathConfig replaces the user's UiPath connection settings.
func (s *UserStore) UpdateUiPathConfig(ctx context.Context, userID int64, cfg storage.UiPathConfig) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET
			uipath_url = ?, uipath_auth_type = ?, uipath_access_token = ?,
			uipath_client_id = ?, uipath_client_secret = ?
		WHERE id = ?`,
		cfg.URL, cfg.AuthType, cfg.AccessToken, cfg.ClientID, cfg.ClientSecret, userID,
	)
	if err != nil {
		return fmt.Errorf("updating uipath config: %w", err)
	}
	return requireRowAffected(res)
}

// UpdateAccessToken replaces only the stored UiPath access token.
func (s *UserStore) UpdateAccessToken(ctx context.Context, userID int64, token string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET uipath_access_token = ? WHERE id = ?`, token, userID)
	if err != nil {
		return fmt.Errorf("updating access token: %w", err)
	}
	return requireRowAffected(res)
}

func scanUser(row *sql.Row) (*storage.User, error) {
	var u storage.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.Role, &u.IsActive,
		&u.UiPathURL, &u.UiPathAuthType, &u.UiPathAccessToken,
		&u.UiPathClientID, &u.UiPathClientSecret, &u.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &u, nil
}

// requireRowAffected maps a zero-row UPDATE/DELETE to ErrNotFound.
func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
