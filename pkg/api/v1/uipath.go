// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/auth"
	apperrors "github.com/javaos74/uipath-mcp-server-sub000/pkg/errors"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/orchestrator"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

// UiPathRoutes defines the routes for browsing a user's Orchestrator.
type UiPathRoutes struct {
	users storage.UserStore
	creds *orchestrator.CredentialService
}

// UiPathRouter creates a new router for the UiPath browsing API.
func UiPathRouter(users storage.UserStore, creds *orchestrator.CredentialService) http.Handler {
	routes := UiPathRoutes{users: users, creds: creds}

	r := chi.NewRouter()
	r.Get("/folders", routes.listFolders)
	r.Get("/processes", routes.listProcesses)
	return r
}

// clientForCaller builds an Orchestrator client from the calling user's
// stored connection settings.
func (u *UiPathRoutes) clientForCaller(r *http.Request) (*orchestrator.Client, orchestrator.Credentials, error) {
	identity, _ := auth.IdentityFromContext(r.Context())
	user, err := u.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		return nil, nil, err
	}
	if user.UiPathURL == "" || user.UiPathAccessToken == "" {
		return nil, nil, errNotConfigured
	}
	creds := u.creds.ForUser(user)
	return orchestrator.NewClient(user.UiPathURL, creds), creds, nil
}

var errNotConfigured = &notConfiguredError{}

type notConfiguredError struct{}

func (*notConfiguredError) Error() string { return "uipath connection is not configured" }

// listFolders
//
//	@Summary		List Orchestrator folders
//	@Tags			uipath
//	@Produce		json
//	@Param			q	query		string	false	"Folder name filter"
//	@Success		200	{object}	map[string][]orchestrator.Folder
//	@Router			/api/uipath/folders [get]
func (u *UiPathRoutes) listFolders(w http.ResponseWriter, r *http.Request) {
	client, creds, err := u.clientForCaller(r)
	if err != nil {
		writeClientError(w, err)
		return
	}

	var folders []orchestrator.Folder
	err = withAuthRetry(r.Context(), creds, func() error {
		var listErr error
		folders, listErr = client.ListFolders(r.Context(), r.URL.Query().Get("q"))
		return listErr
	})
	if err != nil {
		logger.Warnw("failed to list uipath folders", "error", err)
		writeOrchestratorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"folders": folders})
}

// listProcesses
//
//	@Summary		List processes in an Orchestrator folder
//	@Tags			uipath
//	@Produce		json
//	@Param			folder_id	query		string	true	"Folder id"
//	@Success		200	{object}	map[string][]orchestrator.Process
//	@Router			/api/uipath/processes [get]
func (u *UiPathRoutes) listProcesses(w http.ResponseWriter, r *http.Request) {
	folderID := r.URL.Query().Get("folder_id")
	if folderID == "" {
		http.Error(w, "folder_id parameter is required", http.StatusBadRequest)
		return
	}

	client, creds, err := u.clientForCaller(r)
	if err != nil {
		writeClientError(w, err)
		return
	}

	var processes []orchestrator.Process
	err = withAuthRetry(r.Context(), creds, func() error {
		var listErr error
		processes, listErr = client.ListProcesses(r.Context(), folderID)
		return listErr
	})
	if err != nil {
		logger.Warnw("failed to list uipath processes", "folder_id", folderID, "error", err)
		writeOrchestratorError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"processes": processes})
}

// withAuthRetry runs op, refreshing the caller's credentials and retrying
// once when the Orchestrator rejects the current token.
func withAuthRetry(ctx context.Context, creds orchestrator.Credentials, op func() error) error {
	err := op()
	if err == nil || !apperrors.IsJobAuthExpired(err) {
		return err
	}
	if _, refreshErr := creds.Refresh(ctx); refreshErr != nil {
		return err
	}
	return op()
}

func writeClientError(w http.ResponseWriter, err error) {
	if err == errNotConfigured {
		http.Error(w, "UiPath connection is not configured", http.StatusBadRequest)
		return
	}
	http.Error(w, "User not found", http.StatusNotFound)
}

func writeOrchestratorError(w http.ResponseWriter, err error) {
	if apperrors.IsJobAuthExpired(err) {
		http.Error(w, "UiPath credentials were rejected", http.StatusUnauthorized)
		return
	}
	http.Error(w, "UiPath Orchestrator request failed", http.StatusBadGateway)
}
