// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/auth"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/bridge"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/bridge/transport"
	apperrors "github.com/javaos74/uipath-mcp-server-sub000/pkg/errors"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
)

// MCPRoutes exposes endpoint runtimes over the MCP wire transports.
type MCPRoutes struct {
	registry   *bridge.Registry
	authorizer *auth.EndpointAuthorizer
	keepAlive  time.Duration
	readiness  time.Duration
}

// MCPRouter creates the router for MCP client traffic. It expects to be
// mounted at /mcp.
func MCPRouter(
	registry *bridge.Registry,
	authorizer *auth.EndpointAuthorizer,
	keepAlive, readiness time.Duration,
) http.Handler {
	routes := MCPRoutes{
		registry:   registry,
		authorizer: authorizer,
		keepAlive:  keepAlive,
		readiness:  readiness,
	}

	r := chi.NewRouter()
	r.Get("/{tenant}/{server}/sse", routes.serveSSEStream)
	r.Post("/{tenant}/{server}/sse/messages", routes.serveSSEMessages)
	r.Handle("/{tenant}/{server}", http.HandlerFunc(routes.serveStreamable))
	return r
}

// runtimeForRequest authorizes the caller against the addressed endpoint and
// returns its runtime. Unknown endpoints and bad credentials get the same
// denial so callers cannot probe which endpoints exist. The returned bool
// reports whether the response has already been written.
func (m *MCPRoutes) runtimeForRequest(w http.ResponseWriter, r *http.Request) (*bridge.Runtime, bool) {
	tenant := chi.URLParam(r, "tenant")
	server := chi.URLParam(r, "server")

	srv, err := m.registry.Lookup(r.Context(), tenant, server)
	if err != nil {
		if !apperrors.IsEndpointNotFound(err) {
			logger.Errorw("endpoint lookup failed", "tenant", tenant, "server", server, "error", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return nil, false
		}
		deny(w)
		return nil, false
	}

	if err := m.authorizer.Authorize(r.Context(), srv, auth.BearerToken(r)); err != nil {
		deny(w)
		return nil, false
	}

	rt, err := m.registry.GetOrCreate(r.Context(), tenant, server)
	if err != nil {
		logger.Errorw("failed to build endpoint runtime", "tenant", tenant, "server", server, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return rt, true
}

func deny(w http.ResponseWriter) {
	http.Error(w, "access denied", http.StatusUnauthorized)
}

func (m *MCPRoutes) sseAdapter(w http.ResponseWriter, r *http.Request) (*transport.SSEAdapter, bool) {
	rt, ok := m.runtimeForRequest(w, r)
	if !ok {
		return nil, false
	}

	messagesPath := "/mcp/" + chi.URLParam(r, "tenant") + "/" + chi.URLParam(r, "server") + "/sse/messages"
	adapter, err := rt.Adapter(transport.KindSSE, func() (bridge.Adapter, error) {
		return transport.NewSSEAdapter(rt, messagesPath, m.keepAlive, m.readiness), nil
	})
	if err != nil {
		logger.Errorw("sse transport unavailable", "endpoint", rt.Key(), "error", err)
		http.Error(w, "Failed to initialize transport", http.StatusInternalServerError)
		return nil, false
	}
	return adapter.(*transport.SSEAdapter), true
}

// serveSSEStream opens the SSE event stream for an endpoint.
func (m *MCPRoutes) serveSSEStream(w http.ResponseWriter, r *http.Request) {
	adapter, ok := m.sseAdapter(w, r)
	if !ok {
		return
	}
	adapter.ServeStream(w, r)
}

// serveSSEMessages accepts a JSON-RPC message for a live SSE session.
func (m *MCPRoutes) serveSSEMessages(w http.ResponseWriter, r *http.Request) {
	adapter, ok := m.sseAdapter(w, r)
	if !ok {
		return
	}
	adapter.HandleMessage(w, r)
}

// serveStreamable handles the streamable HTTP transport for an endpoint.
func (m *MCPRoutes) serveStreamable(w http.ResponseWriter, r *http.Request) {
	rt, ok := m.runtimeForRequest(w, r)
	if !ok {
		return
	}

	adapter, err := rt.Adapter(transport.KindStreamable, func() (bridge.Adapter, error) {
		return transport.NewStreamableAdapter(rt, m.keepAlive)
	})
	if err != nil {
		logger.Errorw("streamable transport unavailable", "endpoint", rt.Key(), "error", err)
		http.Error(w, "Failed to initialize transport", http.StatusInternalServerError)
		return
	}
	adapter.(*transport.StreamableAdapter).ServeHTTP(w, r)
}
