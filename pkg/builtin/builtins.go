// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package builtin

import (
	"context"
	"fmt"
)

// DefaultRegistry returns a Registry populated with the stock built-ins.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, tool := range []Tool{listFoldersTool(), jobStatusTool(), listProcessesTool()} {
		// Registration of the stock set cannot collide.
		_ = r.Register(tool)
	}
	return r
}

func listFoldersTool() Tool {
	return Tool{
		Name:        "uipath_list_folders",
		Description: "List UiPath Orchestrator folders visible to the configured account",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"search": map[string]any{
					"type":        "string",
					"description": "Optional substring filter on folder names",
				},
			},
		},
		Handler: func(ctx context.Context, inv Invocation) (any, error) {
			search, _ := inv.Args["search"].(string)
			folders, err := inv.Client.ListFolders(ctx, search)
			if err != nil {
				return nil, err
			}
			return map[string]any{"folders": folders, "count": len(folders)}, nil
		},
	}
}

func listProcessesTool() Tool {
	return Tool{
		Name:        "uipath_list_processes",
		Description: "List published UiPath processes in a folder",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"folder_id": map[string]any{
					"type":        "string",
					"description": "Orchestrator folder id",
				},
			},
			"required": []any{"folder_id"},
		},
		Handler: func(ctx context.Context, inv Invocation) (any, error) {
			folderID, _ := inv.Args["folder_id"].(string)
			if folderID == "" {
				return nil, fmt.Errorf("folder_id is required")
			}
			processes, err := inv.Client.ListProcesses(ctx, folderID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"processes": processes, "count": len(processes)}, nil
		},
	}
}

func jobStatusTool() Tool {
	return Tool{
		Name:        "uipath_job_status",
		Description: "Fetch the current status of a UiPath Orchestrator job",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"job_id": map[string]any{
					"type":        "number",
					"description": "Numeric Orchestrator job id",
				},
				"folder_id": map[string]any{
					"type":        "string",
					"description": "Folder the job was started in",
				},
			},
			"required": []any{"job_id"},
		},
		Handler: func(ctx context.Context, inv Invocation) (any, error) {
			jobID, ok := toInt64(inv.Args["job_id"])
			if !ok {
				return nil, fmt.Errorf("job_id must be a number")
			}
			folderID, _ := inv.Args["folder_id"].(string)

			job, err := inv.Client.GetJob(ctx, jobID, folderID)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"job_id": job.ID,
				"state":  job.State,
				"info":   job.Info,
				"output": job.OutputArguments,
			}, nil
		},
	}
}

// toInt64 accepts the numeric representations JSON decoding can produce.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
