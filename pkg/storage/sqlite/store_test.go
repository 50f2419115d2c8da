// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB, username string) *storage.User {
	t.Helper()
	user, err := NewUserStore(db).Create(context.Background(), &storage.User{
		Username:       username,
		Email:          username + "@example.com",
		HashedPassword: "digest",
	})
	require.NoError(t, err)
	return user
}

func TestUserStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)
	store := NewUserStore(db)

	user, err := store.Create(ctx, &storage.User{
		Username:       "alice",
		Email:          "alice@example.com",
		HashedPassword: "digest",
	})
	require.NoError(t, err)
	assert.NotZero(t, user.ID)
	assert.Equal(t, storage.RoleUser, user.Role)
	assert.True(t, user.IsActive)
	assert.False(t, user.CreatedAt.IsZero())

	t.Run("duplicate username rejected", func(t *testing.T) {
		_, err := store.Create(ctx, &storage.User{
			Username:       "alice",
			Email:          "other@example.com",
			HashedPassword: "digest",
		})
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("lookup by username", func(t *testing.T) {
		got, err := store.GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)

		_, err = store.GetByUsername(ctx, "nobody")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("uipath config roundtrip", func(t *testing.T) {
		cfg := storage.UiPathConfig{
			URL:          "https://cloud.uipath.com/acme/prod",
			AuthType:     storage.AuthTypeOAuth,
			AccessToken:  "tok",
			ClientID:     "cid",
			ClientSecret: "secret",
		}
		require.NoError(t, store.UpdateUiPathConfig(ctx, user.ID, cfg))

		got, err := store.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, cfg.URL, got.UiPathURL)
		assert.Equal(t, cfg.AuthType, got.UiPathAuthType)
		assert.Equal(t, cfg.ClientID, got.UiPathClientID)

		require.NoError(t, store.UpdateAccessToken(ctx, user.ID, "tok2"))
		got, err = store.GetByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "tok2", got.UiPathAccessToken)
	})

	t.Run("update on missing user", func(t *testing.T) {
		err := store.UpdateAccessToken(ctx, 9999, "tok")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestServerStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)
	store := NewServerStore(db)

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	srv, err := store.Create(ctx, &storage.Server{
		TenantName: "acme",
		ServerName: "crm",
		UserID:     alice.ID,
	})
	require.NoError(t, err)
	_, err = store.Create(ctx, &storage.Server{
		TenantName: "acme",
		ServerName: "hr",
		UserID:     bob.ID,
	})
	require.NoError(t, err)

	t.Run("endpoint pair unique", func(t *testing.T) {
		_, err := store.Create(ctx, &storage.Server{
			TenantName: "acme", ServerName: "crm", UserID: bob.ID,
		})
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("same server name under another tenant allowed", func(t *testing.T) {
		_, err := store.Create(ctx, &storage.Server{
			TenantName: "globex", ServerName: "crm", UserID: bob.ID,
		})
		assert.NoError(t, err)
	})

	t.Run("lookup by endpoint", func(t *testing.T) {
		got, err := store.GetByEndpoint(ctx, "acme", "crm")
		require.NoError(t, err)
		assert.Equal(t, srv.ID, got.ID)

		_, err = store.GetByEndpoint(ctx, "acme", "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("list scoped by owner", func(t *testing.T) {
		mine, err := store.List(ctx, alice.ID)
		require.NoError(t, err)
		assert.Len(t, mine, 1)

		all, err := store.List(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("api token lifecycle", func(t *testing.T) {
		require.NoError(t, store.SetAPIToken(ctx, srv.ID, "secret-token"))
		got, err := store.GetByID(ctx, srv.ID)
		require.NoError(t, err)
		assert.Equal(t, "secret-token", got.APIToken)

		require.NoError(t, store.SetAPIToken(ctx, srv.ID, ""))
		got, err = store.GetByID(ctx, srv.ID)
		require.NoError(t, err)
		assert.Empty(t, got.APIToken)
	})

	t.Run("delete cascades to tools", func(t *testing.T) {
		tools := NewToolStore(db)
		_, err := tools.Create(ctx, &storage.Tool{
			ServerID: srv.ID, Name: "run_report", ProcessName: "Reports.Monthly",
		})
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, srv.ID))
		_, err = store.GetByID(ctx, srv.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)

		remaining, err := tools.List(ctx, srv.ID)
		require.NoError(t, err)
		assert.Empty(t, remaining)

		assert.ErrorIs(t, store.Delete(ctx, srv.ID), storage.ErrNotFound)
	})
}

func TestToolStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	db := openTestDB(t)
	store := NewToolStore(db)

	alice := createTestUser(t, db, "alice")
	srv, err := NewServerStore(db).Create(ctx, &storage.Server{
		TenantName: "acme", ServerName: "crm", UserID: alice.ID,
	})
	require.NoError(t, err)

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"month": map[string]any{"type": "string"},
		},
		"required": []any{"month"},
	}
	tool, err := store.Create(ctx, &storage.Tool{
		ServerID:    srv.ID,
		Name:        "run_report",
		Description: "Runs the monthly report process",
		InputSchema: schema,
		ProcessName: "Reports.Monthly",
		FolderPath:  "Shared",
		FolderID:    "42",
	})
	require.NoError(t, err)
	assert.Equal(t, schema, tool.InputSchema)
	assert.False(t, tool.IsBuiltin())

	t.Run("name unique per server", func(t *testing.T) {
		_, err := store.Create(ctx, &storage.Tool{ServerID: srv.ID, Name: "run_report"})
		assert.ErrorIs(t, err, storage.ErrAlreadyExists)
	})

	t.Run("builtin tool has no process binding", func(t *testing.T) {
		bt, err := store.Create(ctx, &storage.Tool{ServerID: srv.ID, Name: "uipath_list_folders"})
		require.NoError(t, err)
		assert.True(t, bt.IsBuiltin())
		assert.Equal(t, map[string]any{}, bt.InputSchema)
	})

	t.Run("lookup by name", func(t *testing.T) {
		got, err := store.GetByName(ctx, srv.ID, "run_report")
		require.NoError(t, err)
		assert.Equal(t, tool.ID, got.ID)

		_, err = store.GetByName(ctx, srv.ID, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("update", func(t *testing.T) {
		tool.Description = "updated"
		tool.FolderPath = "Finance"
		require.NoError(t, store.Update(ctx, tool))

		got, err := store.GetByID(ctx, tool.ID)
		require.NoError(t, err)
		assert.Equal(t, "updated", got.Description)
		assert.Equal(t, "Finance", got.FolderPath)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, tool.ID))
		assert.ErrorIs(t, store.Delete(ctx, tool.ID), storage.ErrNotFound)
	})
}
