// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/singleflight"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/builtin"
	apperrors "github.com/javaos74/uipath-mcp-server-sub000/pkg/errors"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/orchestrator"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

// serverVersion is advertised to MCP clients during initialization.
const serverVersion = "1.0.0"

// Registry caches one Runtime per endpoint. Construction is de-duplicated
// so concurrent first requests share a single build; runtimes live until
// invalidated by a configuration change.
type Registry struct {
	servers  storage.ServerStore
	users    storage.UserStore
	tools    storage.ToolStore
	builtins *builtin.Registry
	creds    *orchestrator.CredentialService

	pollInterval time.Duration
	maxDuration  time.Duration

	mu       sync.RWMutex
	runtimes map[string]*Runtime
	group    singleflight.Group
}

// NewRegistry creates a Registry over the given stores. pollInterval and
// maxDuration configure job monitoring for every tool dispatched through
// the registry's runtimes.
func NewRegistry(
	servers storage.ServerStore,
	users storage.UserStore,
	tools storage.ToolStore,
	builtins *builtin.Registry,
	creds *orchestrator.CredentialService,
	pollInterval, maxDuration time.Duration,
) *Registry {
	return &Registry{
		servers:      servers,
		users:        users,
		tools:        tools,
		builtins:     builtins,
		creds:        creds,
		pollInterval: pollInterval,
		maxDuration:  maxDuration,
		runtimes:     make(map[string]*Runtime),
	}
}

// GetOrCreate returns the Runtime for the endpoint, building it on first
// use. Concurrent calls for the same endpoint share one construction; a
// failed construction leaves no cache entry.
func (reg *Registry) GetOrCreate(ctx context.Context, tenantName, serverName string) (*Runtime, error) {
	key := tenantName + "/" + serverName

	reg.mu.RLock()
	rt, ok := reg.runtimes[key]
	reg.mu.RUnlock()
	if ok {
		return rt, nil
	}

	result, err, _ := reg.group.Do(key, func() (any, error) {
		// Re-check under the flight: a previous flight may have populated
		// the cache between our read and the Do call.
		reg.mu.RLock()
		rt, ok := reg.runtimes[key]
		reg.mu.RUnlock()
		if ok {
			return rt, nil
		}

		rt, err := reg.build(ctx, tenantName, serverName)
		if err != nil {
			return nil, err
		}

		reg.mu.Lock()
		reg.runtimes[key] = rt
		reg.mu.Unlock()
		return rt, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Runtime), nil
}

// Invalidate drops the cached runtime for the endpoint. Live sessions on
// the old runtime drain naturally; the next request builds a fresh one.
func (reg *Registry) Invalidate(tenantName, serverName string) {
	key := tenantName + "/" + serverName

	reg.mu.Lock()
	rt, ok := reg.runtimes[key]
	delete(reg.runtimes, key)
	reg.mu.Unlock()

	if ok {
		rt.Close()
		logger.Infow("invalidated endpoint runtime", "endpoint", key)
	}
}

// InvalidateServer drops the cached runtime for a server record.
func (reg *Registry) InvalidateServer(srv *storage.Server) {
	reg.Invalidate(srv.TenantName, srv.ServerName)
}

// Lookup returns the endpoint's server record without building a runtime.
// Used by the access check before any construction work happens.
func (reg *Registry) Lookup(ctx context.Context, tenantName, serverName string) (*storage.Server, error) {
	srv, err := reg.servers.GetByEndpoint(ctx, tenantName, serverName)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NewEndpointNotFoundError(
			fmt.Sprintf("no endpoint %s/%s", tenantName, serverName), nil)
	}
	return srv, err
}

// build constructs the runtime: loads the endpoint and its owner, binds
// credentials, and registers every stored tool on a fresh MCP server.
func (reg *Registry) build(ctx context.Context, tenantName, serverName string) (*Runtime, error) {
	endpoint, err := reg.Lookup(ctx, tenantName, serverName)
	if err != nil {
		return nil, err
	}

	owner, err := reg.users.GetByID(ctx, endpoint.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading endpoint owner: %w", err)
	}

	creds := reg.creds.ForUser(owner)
	client := orchestrator.NewClient(owner.UiPathURL, creds)

	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(func(_ context.Context, _ any, message *mcp.CallToolRequest) {
		logger.Debugw("tool call", "endpoint", tenantName+"/"+serverName, "tool", message.Params.Name)
	})

	mcpServer := server.NewMCPServer(
		fmt.Sprintf("%s-%s", tenantName, serverName),
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithLogging(),
		server.WithHooks(hooks),
	)

	rt := NewRuntime(endpoint, owner, mcpServer, client, creds)

	dispatcher := NewDispatcher(reg.tools, reg.builtins, reg.pollInterval, reg.maxDuration)
	tools, err := reg.tools.List(ctx, endpoint.ID)
	if err != nil {
		return nil, fmt.Errorf("loading endpoint tools: %w", err)
	}
	for _, tool := range tools {
		mcpServer.AddTool(toolDefinition(tool), dispatcher.Handler(rt, tool.Name))
	}

	logger.Infow("built endpoint runtime",
		"endpoint", tenantName+"/"+serverName, "tools", len(tools), "owner", owner.Username)
	return rt, nil
}

// toolDefinition converts a stored tool into its MCP advertisement.
func toolDefinition(tool *storage.Tool) mcp.Tool {
	def := mcp.Tool{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: mcp.ToolInputSchema{Type: "object"},
	}
	if props, ok := tool.InputSchema["properties"].(map[string]any); ok {
		def.InputSchema.Properties = props
	}
	if required, ok := tool.InputSchema["required"].([]any); ok {
		for _, name := range required {
			if s, ok := name.(string); ok {
				def.InputSchema.Required = append(def.InputSchema.Required, s)
			}
		}
	}
	return def
}
