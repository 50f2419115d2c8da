// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package builtin hosts tools implemented in-process rather than by a
// UiPath workflow. Built-ins run synchronously against the calling user's
// Orchestrator deployment.
package builtin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/orchestrator"
)

// Invocation carries the per-call dependencies handed to a built-in.
type Invocation struct {
	// Client is bound to the calling user's Orchestrator deployment.
	Client *orchestrator.Client

	// Args are the validated tool arguments.
	Args map[string]any
}

// HandlerFunc executes one built-in tool call.
type HandlerFunc func(ctx context.Context, inv Invocation) (any, error)

// Tool describes a built-in tool.
type Tool struct {
	Name        string
	Description string

	// InputSchema is the JSON Schema advertised for the tool's arguments.
	InputSchema map[string]any

	Handler HandlerFunc
}

// Registry maps tool names to built-in implementations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Registering a duplicate name is a programming
// error and returns an error rather than silently replacing.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" || tool.Handler == nil {
		return fmt.Errorf("builtin tool requires a name and a handler")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("builtin tool %q already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}
