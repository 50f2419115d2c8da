// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import "strings"

// Job states reported by Orchestrator.
const (
	StatePending    = "Pending"
	StateRunning    = "Running"
	StateSuccessful = "Successful"
	StateFaulted    = "Faulted"
	StateStopped    = "Stopped"
)

// Job is the status of an Orchestrator job.
type Job struct {
	// ID is the numeric job id.
	ID int64

	// Key is the job GUID assigned at creation.
	Key string

	// State is one of the State* constants (or a value this client does
	// not know about; treat unknown states as still running).
	State string

	// Info is the free-text status detail, populated on faults.
	Info string

	// OutputArguments holds the decoded workflow output, nil until the job
	// completes.
	OutputArguments map[string]any
}

// Done reports whether the job reached a terminal state.
func (j *Job) Done() bool {
	switch j.State {
	case StateSuccessful, StateFaulted, StateStopped:
		return true
	}
	return false
}

// Folder is an Orchestrator folder (organization unit).
type Folder struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

// ProcessParam describes one input argument of a published process.
type ProcessParam struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Process is a published Orchestrator release.
type Process struct {
	Key         string         `json:"key"`
	ProcessKey  string         `json:"process_key"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputParams []ProcessParam `json:"input_params"`
}

// paramTypeFromDotNet maps a .NET argument type name to a JSON schema type.
func paramTypeFromDotNet(dotnetType string) string {
	switch {
	case strings.Contains(dotnetType, "System.String"):
		return "string"
	case strings.Contains(dotnetType, "System.Int"),
		strings.Contains(dotnetType, "System.Double"),
		strings.Contains(dotnetType, "System.Decimal"):
		return "number"
	case strings.Contains(dotnetType, "System.Boolean"):
		return "boolean"
	case strings.Contains(dotnetType, "[]"):
		return "array"
	case strings.Contains(dotnetType, "System.Object"),
		strings.Contains(dotnetType, "System.Collections"):
		return "object"
	default:
		return "string"
	}
}
