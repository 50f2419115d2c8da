// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package bridge turns registered MCP endpoints into live protocol servers
// whose tools run UiPath jobs.
package bridge

import (
	"sync"

	"github.com/mark3labs/mcp-go/server"

	apperrors "github.com/javaos74/uipath-mcp-server-sub000/pkg/errors"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/orchestrator"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

// Adapter is a transport bound to one endpoint runtime.
type Adapter interface {
	Close() error
}

// Runtime is one live MCP endpoint: the protocol server plus the
// orchestrator client bound to the owning user's credentials.
type Runtime struct {
	// Endpoint is the server record this runtime was built from.
	Endpoint *storage.Server

	// Owner is the user whose UiPath credentials back this endpoint.
	Owner *storage.User

	// MCP is the protocol server with the endpoint's tools registered.
	MCP *server.MCPServer

	// Client calls the owner's Orchestrator deployment.
	Client *orchestrator.Client

	// Creds refresh the owner's access token on expiry.
	Creds orchestrator.Credentials

	mu       sync.Mutex
	adapters map[string]Adapter
}

// NewRuntime binds an endpoint record, its owner, a protocol server, and
// the owner's Orchestrator client into a live runtime.
func NewRuntime(endpoint *storage.Server, owner *storage.User, mcp *server.MCPServer, client *orchestrator.Client, creds orchestrator.Credentials) *Runtime {
	return &Runtime{
		Endpoint: endpoint,
		Owner:    owner,
		MCP:      mcp,
		Client:   client,
		Creds:    creds,
		adapters: make(map[string]Adapter),
	}
}

// Key returns the registry key for the runtime's endpoint.
func (r *Runtime) Key() string {
	return r.Endpoint.TenantName + "/" + r.Endpoint.ServerName
}

// Adapter returns the transport adapter for kind, constructing it with
// create on first use. A failed construction is not cached; the next
// request retries.
func (r *Runtime) Adapter(kind string, create func() (Adapter, error)) (Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.adapters[kind]; ok {
		return a, nil
	}
	a, err := create()
	if err != nil {
		return nil, apperrors.NewTransportInitError("failed to initialize "+kind+" transport", err)
	}
	r.adapters[kind] = a
	return a, nil
}

// RemoveAdapter drops the adapter for kind, if any. Called by adapters
// themselves when their bound session terminates.
func (r *Runtime) RemoveAdapter(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, kind)
}

// Close tears down all transport adapters.
func (r *Runtime) Close() {
	r.mu.Lock()
	adapters := r.adapters
	r.adapters = make(map[string]Adapter)
	r.mu.Unlock()

	for kind, a := range adapters {
		if err := a.Close(); err != nil {
			logger.Debugw("closing transport adapter", "endpoint", r.Key(), "kind", kind, "error", err)
		}
	}
}
