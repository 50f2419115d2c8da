// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/auth"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

// ServerRoutes defines the routes for MCP server and tool management.
type ServerRoutes struct {
	servers storage.ServerStore
	tools   storage.ToolStore
	cache   RuntimeInvalidator
}

// ServerRouter creates a new router for the server management API.
func ServerRouter(servers storage.ServerStore, tools storage.ToolStore, cache RuntimeInvalidator) http.Handler {
	routes := ServerRoutes{servers: servers, tools: tools, cache: cache}

	r := chi.NewRouter()
	r.Get("/", routes.listServers)
	r.Post("/", routes.createServer)
	r.Route("/{serverID}", func(r chi.Router) {
		r.Get("/", routes.getServer)
		r.Put("/", routes.updateServer)
		r.Delete("/", routes.deleteServer)

		r.Post("/token", routes.generateToken)
		r.Get("/token", routes.getToken)
		r.Delete("/token", routes.revokeToken)

		r.Get("/tools", routes.listTools)
		r.Post("/tools", routes.createTool)
		r.Route("/tools/{toolID}", func(r chi.Router) {
			r.Get("/", routes.getTool)
			r.Put("/", routes.updateTool)
			r.Delete("/", routes.deleteTool)
		})
	})
	return r
}

type serverResponse struct {
	ID          int64  `json:"id"`
	TenantName  string `json:"tenant_name"`
	ServerName  string `json:"server_name"`
	Description string `json:"description"`
	UserID      int64  `json:"user_id"`
	// Endpoint is the MCP path clients connect to.
	Endpoint string `json:"endpoint"`
}

func toServerResponse(srv *storage.Server) serverResponse {
	return serverResponse{
		ID:          srv.ID,
		TenantName:  srv.TenantName,
		ServerName:  srv.ServerName,
		Description: srv.Description,
		UserID:      srv.UserID,
		Endpoint:    "/mcp/" + srv.TenantName + "/" + srv.ServerName,
	}
}

// loadOwned resolves the server from the URL and enforces ownership: the
// owner and admins pass, everyone else gets a 403. The returned bool
// reports whether the response has already been written.
func (s *ServerRoutes) loadOwned(w http.ResponseWriter, r *http.Request) (*storage.Server, bool) {
	id, ok := idParam(r, "serverID")
	if !ok {
		http.Error(w, "Invalid server id", http.StatusBadRequest)
		return nil, false
	}

	srv, err := s.servers.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Server not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		logger.Errorw("failed to load server", "server_id", id, "error", err)
		http.Error(w, "Failed to load server", http.StatusInternalServerError)
		return nil, false
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	if !identity.IsAdmin() && identity.UserID != srv.UserID {
		http.Error(w, "Not enough permissions", http.StatusForbidden)
		return nil, false
	}
	return srv, true
}

// listServers
//
//	@Summary		List MCP servers
//	@Description	Admins see every server, other users only their own
//	@Tags			servers
//	@Produce		json
//	@Success		200	{array}	serverResponse
//	@Router			/api/servers [get]
func (s *ServerRoutes) listServers(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	ownerID := identity.UserID
	if identity.IsAdmin() {
		ownerID = 0
	}

	servers, err := s.servers.List(r.Context(), ownerID)
	if err != nil {
		logger.Errorw("failed to list servers", "error", err)
		http.Error(w, "Failed to list servers", http.StatusInternalServerError)
		return
	}

	out := make([]serverResponse, 0, len(servers))
	for _, srv := range servers {
		out = append(out, toServerResponse(srv))
	}
	writeJSON(w, http.StatusOK, out)
}

type createServerRequest struct {
	TenantName  string `json:"tenant_name"`
	ServerName  string `json:"server_name"`
	Description string `json:"description"`
}

// createServer
//
//	@Summary		Register a new MCP server
//	@Tags			servers
//	@Accept			json
//	@Produce		json
//	@Success		201	{object}	serverResponse
//	@Failure		409	{string}	string	"Server already exists"
//	@Router			/api/servers [post]
func (s *ServerRoutes) createServer(w http.ResponseWriter, r *http.Request) {
	var req createServerRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TenantName == "" || req.ServerName == "" {
		http.Error(w, "tenant_name and server_name are required", http.StatusBadRequest)
		return
	}

	identity, _ := auth.IdentityFromContext(r.Context())
	srv, err := s.servers.Create(r.Context(), &storage.Server{
		TenantName:  req.TenantName,
		ServerName:  req.ServerName,
		Description: req.Description,
		UserID:      identity.UserID,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		http.Error(w, "Server already exists", http.StatusConflict)
		return
	}
	if err != nil {
		logger.Errorw("failed to create server", "error", err)
		http.Error(w, "Failed to create server", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, toServerResponse(srv))
}

// getServer returns one server's details.
func (s *ServerRoutes) getServer(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.loadOwned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toServerResponse(srv))
}

type updateServerRequest struct {
	Description string `json:"description"`
}

// updateServer modifies a server's description.
func (s *ServerRoutes) updateServer(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.loadOwned(w, r)
	if !ok {
		return
	}

	var req updateServerRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	srv.Description = req.Description
	if err := s.servers.Update(r.Context(), srv); err != nil {
		logger.Errorw("failed to update server", "server_id", srv.ID, "error", err)
		http.Error(w, "Failed to update server", http.StatusInternalServerError)
		return
	}

	s.cache.InvalidateServer(srv)
	writeJSON(w, http.StatusOK, toServerResponse(srv))
}

// deleteServer removes a server and its tools.
func (s *ServerRoutes) deleteServer(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.loadOwned(w, r)
	if !ok {
		return
	}

	if err := s.servers.Delete(r.Context(), srv.ID); err != nil {
		logger.Errorw("failed to delete server", "server_id", srv.ID, "error", err)
		http.Error(w, "Failed to delete server", http.StatusInternalServerError)
		return
	}

	s.cache.InvalidateServer(srv)
	w.WriteHeader(http.StatusNoContent)
}

type apiTokenResponse struct {
	APIToken string `json:"api_token"`
}

// generateToken
//
//	@Summary		Issue a new API token for the server
//	@Description	Replaces any previously issued token
//	@Tags			servers
//	@Produce		json
//	@Success		200	{object}	apiTokenResponse
//	@Router			/api/servers/{serverID}/token [post]
func (s *ServerRoutes) generateToken(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.loadOwned(w, r)
	if !ok {
		return
	}

	token, err := auth.NewAPIToken()
	if err != nil {
		logger.Errorw("failed to generate api token", "server_id", srv.ID, "error", err)
		http.Error(w, "Failed to generate API token", http.StatusInternalServerError)
		return
	}
	if err := s.servers.SetAPIToken(r.Context(), srv.ID, token); err != nil {
		logger.Errorw("failed to store api token", "server_id", srv.ID, "error", err)
		http.Error(w, "Failed to store API token", http.StatusInternalServerError)
		return
	}

	s.cache.InvalidateServer(srv)
	writeJSON(w, http.StatusOK, apiTokenResponse{APIToken: token})
}

// getToken returns the server's current API token.
func (s *ServerRoutes) getToken(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.loadOwned(w, r)
	if !ok {
		return
	}
	if srv.APIToken == "" {
		http.Error(w, "No API token issued", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, apiTokenResponse{APIToken: srv.APIToken})
}

// revokeToken clears the server's API token.
func (s *ServerRoutes) revokeToken(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.loadOwned(w, r)
	if !ok {
		return
	}

	if err := s.servers.SetAPIToken(r.Context(), srv.ID, ""); err != nil {
		logger.Errorw("failed to revoke api token", "server_id", srv.ID, "error", err)
		http.Error(w, "Failed to revoke API token", http.StatusInternalServerError)
		return
	}

	s.cache.InvalidateServer(srv)
	w.WriteHeader(http.StatusNoContent)
}

type toolRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	ProcessName string         `json:"process_name"`
	FolderPath  string         `json:"folder_path"`
	FolderID    string         `json:"folder_id"`
}

type toolResponse struct {
	ID          int64          `json:"id"`
	ServerID    int64          `json:"server_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
	ProcessName string         `json:"process_name,omitempty"`
	FolderPath  string         `json:"folder_path,omitempty"`
	FolderID    string         `json:"folder_id,omitempty"`
	IsBuiltin   bool           `json:"is_builtin"`
}

func toToolResponse(tool *storage.Tool) toolResponse {
	return toolResponse{
		ID:          tool.ID,
		ServerID:    tool.ServerID,
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: tool.InputSchema,
		ProcessName: tool.ProcessName,
		FolderPath:  tool.FolderPath,
		FolderID:    tool.FolderID,
		IsBuiltin:   tool.IsBuiltin(),
	}
}

// listTools returns the tools registered on a server.
func (s *ServerRoutes) listTools(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.loadOwned(w, r)
	if !ok {
		return
	}

	tools, err := s.tools.List(r.Context(), srv.ID)
	if err != nil {
		logger.Errorw("failed to list tools", "server_id", srv.ID, "error", err)
		http.Error(w, "Failed to list tools", http.StatusInternalServerError)
		return
	}

	out := make([]toolResponse, 0, len(tools))
	for _, tool := range tools {
		out = append(out, toToolResponse(tool))
	}
	writeJSON(w, http.StatusOK, out)
}

// createTool
//
//	@Summary		Register a tool on a server
//	@Description	A tool with a process_name runs that UiPath process; one
//	@Description	without binds to the built-in function of the same name
//	@Tags			servers
//	@Accept			json
//	@Produce		json
//	@Success		201	{object}	toolResponse
//	@Failure		409	{string}	string	"Tool already exists"
//	@Router			/api/servers/{serverID}/tools [post]
func (s *ServerRoutes) createTool(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.loadOwned(w, r)
	if !ok {
		return
	}

	var req toolRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Tool name is required", http.StatusBadRequest)
		return
	}
	if req.ProcessName != "" && req.FolderID == "" {
		http.Error(w, "folder_id is required for process tools", http.StatusBadRequest)
		return
	}

	tool, err := s.tools.Create(r.Context(), &storage.Tool{
		ServerID:    srv.ID,
		Name:        req.Name,
		Description: req.Description,
		InputSchema: req.InputSchema,
		ProcessName: req.ProcessName,
		FolderPath:  req.FolderPath,
		FolderID:    req.FolderID,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		http.Error(w, "Tool already exists", http.StatusConflict)
		return
	}
	if err != nil {
		logger.Errorw("failed to create tool", "server_id", srv.ID, "error", err)
		http.Error(w, "Failed to create tool", http.StatusInternalServerError)
		return
	}

	s.cache.InvalidateServer(srv)
	writeJSON(w, http.StatusCreated, toToolResponse(tool))
}

// loadTool resolves the tool from the URL after the ownership check and
// verifies it belongs to the routed server.
func (s *ServerRoutes) loadTool(w http.ResponseWriter, r *http.Request, srv *storage.Server) (*storage.Tool, bool) {
	id, ok := idParam(r, "toolID")
	if !ok {
		http.Error(w, "Invalid tool id", http.StatusBadRequest)
		return nil, false
	}

	tool, err := s.tools.GetByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && tool.ServerID != srv.ID) {
		http.Error(w, "Tool not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		logger.Errorw("failed to load tool", "tool_id", id, "error", err)
		http.Error(w, "Failed to load tool", http.StatusInternalServerError)
		return nil, false
	}
	return tool, true
}

// getTool returns one tool's details.
func (s *ServerRoutes) getTool(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.loadOwned(w, r)
	if !ok {
		return
	}
	tool, ok := s.loadTool(w, r, srv)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toToolResponse(tool))
}

// updateTool replaces a tool's definition.
func (s *ServerRoutes) updateTool(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.loadOwned(w, r)
	if !ok {
		return
	}
	tool, ok := s.loadTool(w, r, srv)
	if !ok {
		return
	}

	var req toolRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name != "" {
		tool.Name = req.Name
	}
	tool.Description = req.Description
	tool.InputSchema = req.InputSchema
	tool.ProcessName = req.ProcessName
	tool.FolderPath = req.FolderPath
	tool.FolderID = req.FolderID

	if err := s.tools.Update(r.Context(), tool); err != nil {
		logger.Errorw("failed to update tool", "tool_id", tool.ID, "error", err)
		http.Error(w, "Failed to update tool", http.StatusInternalServerError)
		return
	}

	s.cache.InvalidateServer(srv)
	writeJSON(w, http.StatusOK, toToolResponse(tool))
}

// deleteTool removes a tool from a server.
func (s *ServerRoutes) deleteTool(w http.ResponseWriter, r *http.Request) {
	srv, ok := s.loadOwned(w, r)
	if !ok {
		return
	}
	tool, ok := s.loadTool(w, r, srv)
	if !ok {
		return
	}

	if err := s.tools.Delete(r.Context(), tool.ID); err != nil {
		logger.Errorw("failed to delete tool", "tool_id", tool.ID, "error", err)
		http.Error(w, "Failed to delete tool", http.StatusInternalServerError)
		return
	}

	s.cache.InvalidateServer(srv)
	w.WriteHeader(http.StatusNoContent)
}
