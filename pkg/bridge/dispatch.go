// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/bridge/jobs"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/builtin"
	apperrors "github.com/javaos74/uipath-mcp-server-sub000/pkg/errors"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/orchestrator"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

// Dispatcher routes tool calls to built-ins or UiPath jobs. Every failure
// becomes a structured result payload; protocol errors are reserved for
// broken transports, so one bad call never poisons the session.
type Dispatcher struct {
	tools    storage.ToolStore
	builtins *builtin.Registry

	pollInterval time.Duration
	maxDuration  time.Duration
}

// NewDispatcher creates a Dispatcher monitoring jobs every pollInterval for
// at most maxDuration.
func NewDispatcher(tools storage.ToolStore, builtins *builtin.Registry, pollInterval, maxDuration time.Duration) *Dispatcher {
	return &Dispatcher{
		tools:        tools,
		builtins:     builtins,
		pollInterval: pollInterval,
		maxDuration:  maxDuration,
	}
}

// Handler returns the MCP tool handler for toolName on rt. The tool is
// re-resolved from the store on every call, so edits and deletions take
// effect without rebuilding the runtime.
func (d *Dispatcher) Handler(rt *Runtime, toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.GetArguments()

		tool, err := d.tools.GetByName(ctx, rt.Endpoint.ID, toolName)
		if errors.Is(err, storage.ErrNotFound) {
			return textResult(map[string]any{
				"success": false,
				"error":   fmt.Sprintf("Tool '%s' not found", toolName),
			})
		}
		if err != nil {
			return textResult(map[string]any{
				"success": false,
				"error":   fmt.Sprintf("Failed to resolve tool '%s': %v", toolName, err),
			})
		}

		if missing, invalid := validateArgs(tool.InputSchema, args); len(missing) > 0 || len(invalid) > 0 {
			payload := map[string]any{
				"success": false,
				"error":   "Invalid arguments for tool '" + toolName + "'",
			}
			if len(missing) > 0 {
				payload["missing"] = missing
			}
			if len(invalid) > 0 {
				payload["invalid"] = invalid
			}
			return textResult(payload)
		}

		if tool.IsBuiltin() {
			return d.callBuiltin(ctx, rt, tool, args)
		}
		return d.callProcess(ctx, rt, req, tool, args)
	}
}

// callBuiltin runs an in-process tool synchronously.
func (d *Dispatcher) callBuiltin(ctx context.Context, rt *Runtime, tool *storage.Tool, args map[string]any) (*mcp.CallToolResult, error) {
	impl, ok := d.builtins.Get(tool.Name)
	if !ok {
		return textResult(map[string]any{
			"success": false,
			"error":   fmt.Sprintf("Tool '%s' not found", tool.Name),
		})
	}

	result, err := impl.Handler(ctx, builtin.Invocation{Client: rt.Client, Args: args})
	if err != nil {
		logger.Warnw("builtin tool failed", "tool", tool.Name, "error", err)
		return textResult(map[string]any{
			"success": false,
			"error":   err.Error(),
		})
	}
	return textResult(map[string]any{
		"success": true,
		"result":  result,
	})
}

// callProcess submits the bound UiPath process and monitors the job to its
// terminal state, streaming progress to the calling session.
func (d *Dispatcher) callProcess(ctx context.Context, rt *Runtime, req mcp.CallToolRequest, tool *storage.Tool, args map[string]any) (*mcp.CallToolResult, error) {
	notifier := notifierForSession(ctx, rt, req)

	job, err := d.startJobWithAuthRetry(ctx, rt, tool, args)
	if err != nil {
		logger.Warnw("job submission failed",
			"endpoint", rt.Key(), "tool", tool.Name, "process", tool.ProcessName, "error", err)
		return textResult(map[string]any{
			"success": false,
			"status":  jobs.StatusError,
			"error":   err.Error(),
		})
	}

	monitor := jobs.NewMonitor(rt.Client, rt.Creds, d.pollInterval, d.maxDuration)

	// The job outlives a dropped client: monitoring continues on a detached
	// context and notification sends degrade to no-ops.
	result, err := monitor.Run(context.WithoutCancel(ctx), job.ID, tool.FolderID, notifier)
	if err != nil {
		return textResult(map[string]any{
			"success": false,
			"job_id":  job.ID,
			"status":  jobs.StatusError,
			"error":   err.Error(),
		})
	}
	return textResult(result.Payload())
}

// startJobWithAuthRetry submits the job, transparently refreshing
// credentials and retrying once when the Orchestrator rejects the token.
func (d *Dispatcher) startJobWithAuthRetry(ctx context.Context, rt *Runtime, tool *storage.Tool, args map[string]any) (*orchestrator.Job, error) {
	job, err := rt.Client.StartJob(ctx, tool.ProcessName, tool.FolderID, args)
	if err == nil || !apperrors.IsJobAuthExpired(err) {
		return job, err
	}

	logger.Infow("refreshing expired uipath credentials before submit",
		"endpoint", rt.Key(), "tool", tool.Name)
	if _, refreshErr := rt.Creds.Refresh(ctx); refreshErr != nil {
		return nil, fmt.Errorf("credential refresh failed: %w", refreshErr)
	}
	return rt.Client.StartJob(ctx, tool.ProcessName, tool.FolderID, args)
}

// sessionNotifier bridges monitor notifications onto the calling client's
// session. Sends fail quietly once the session is gone.
type sessionNotifier struct {
	mcp           *server.MCPServer
	sessionID     string
	progressToken any
}

// notifierForSession builds a Notifier for the session attached to ctx,
// or nil when the call arrived without one.
func notifierForSession(ctx context.Context, rt *Runtime, req mcp.CallToolRequest) jobs.Notifier {
	session := server.ClientSessionFromContext(ctx)
	if session == nil {
		return nil
	}
	n := &sessionNotifier{mcp: rt.MCP, sessionID: session.SessionID()}
	if req.Params.Meta != nil {
		n.progressToken = req.Params.Meta.ProgressToken
	}
	return n
}

// Progress implements jobs.Notifier. Progress frames are only sent when the
// caller supplied a progress token; without one the client has nothing to
// correlate them against. Log notifications are not gated.
func (n *sessionNotifier) Progress(_ context.Context, progress, total float64, message string) error {
	if n.progressToken == nil {
		return nil
	}
	return n.mcp.SendNotificationToSpecificClient(n.sessionID, "notifications/progress", map[string]any{
		"progress":      progress,
		"total":         total,
		"message":       message,
		"progressToken": n.progressToken,
	})
}

// Log implements jobs.Notifier.
func (n *sessionNotifier) Log(_ context.Context, level, message string) error {
	return n.mcp.SendNotificationToSpecificClient(n.sessionID, "notifications/message", map[string]any{
		"level":  level,
		"logger": jobs.LoggerName,
		"data":   message,
	})
}

// validateArgs checks args against the tool's JSON schema: required keys
// must be present and typed properties must match their declared type.
// Returns the offending key names.
func validateArgs(schema, args map[string]any) (missing, invalid []string) {
	if schema == nil {
		return nil, nil
	}

	if required, ok := schema["required"].([]any); ok {
		for _, name := range required {
			key, ok := name.(string)
			if !ok {
				continue
			}
			if _, present := args[key]; !present {
				missing = append(missing, key)
			}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for key, value := range args {
		prop, ok := properties[key].(map[string]any)
		if !ok {
			continue
		}
		declared, _ := prop["type"].(string)
		if declared != "" && !matchesType(declared, value) {
			invalid = append(invalid, key)
		}
	}

	sort.Strings(missing)
	sort.Strings(invalid)
	return missing, invalid
}

// matchesType checks a decoded JSON value against a JSON schema type name.
func matchesType(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "number", "integer":
		switch value.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

// textResult serializes a payload as the tool call's text content.
func textResult(payload map[string]any) (*mcp.CallToolResult, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding tool result: %w", err)
	}
	return mcp.NewToolResultText(string(encoded)), nil
}
