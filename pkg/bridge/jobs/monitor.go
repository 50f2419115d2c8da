// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package jobs monitors running Orchestrator jobs and streams progress to
// the MCP client that started them.
package jobs

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/javaos74/uipath-mcp-server-sub000/pkg/errors"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/orchestrator"
)

// LoggerName identifies this server in MCP log notifications.
const LoggerName = "uipath-mcp-bridge"

// Terminal statuses reported in the tool result payload.
const (
	StatusSuccessful = "successful"
	StatusFaulted    = "faulted"
	StatusStopped    = "stopped"
	StatusTimeout    = "timeout"
	StatusError      = "error"
)

// Notifier delivers progress and log notifications for one tool call.
// Implementations must tolerate the session being gone; send failures are
// reported, never fatal.
type Notifier interface {
	// Progress reports job progress as progress out of total.
	Progress(ctx context.Context, progress, total float64, message string) error

	// Log emits an MCP log message notification at level.
	Log(ctx context.Context, level, message string) error
}

// JobClient is the subset of the orchestrator client the monitor needs.
type JobClient interface {
	GetJob(ctx context.Context, jobID int64, folderID string) (*orchestrator.Job, error)
}

// Result is the terminal outcome of a monitored job.
type Result struct {
	Success bool
	JobID   int64
	Status  string
	Message string
	Error   string
	Info    string
	Output  map[string]any
}

// Payload renders the result as the structured tool response payload.
func (r *Result) Payload() map[string]any {
	payload := map[string]any{
		"success": r.Success,
		"job_id":  r.JobID,
		"status":  r.Status,
	}
	if r.Message != "" {
		payload["message"] = r.Message
	}
	if r.Error != "" {
		payload["error"] = r.Error
	}
	if r.Info != "" {
		payload["info"] = r.Info
	}
	if r.Output != nil {
		payload["output"] = r.Output
	}
	return payload
}

// Monitor polls one job to completion, emitting progress along the way.
type Monitor struct {
	client   JobClient
	creds    orchestrator.Credentials
	interval time.Duration
	budget   int
}

// NewMonitor creates a Monitor polling every interval, giving up after
// maxDuration.
func NewMonitor(client JobClient, creds orchestrator.Credentials, interval, maxDuration time.Duration) *Monitor {
	budget := int(maxDuration / interval)
	if budget < 1 {
		budget = 1
	}
	return &Monitor{client: client, creds: creds, interval: interval, budget: budget}
}

// Run monitors the job until it reaches a terminal state or the polling
// budget runs out. It always returns a Result; the error return is reserved
// for context cancellation.
//
// Progress is monotonic: 0 at start, then min(10 + polls*80/budget, 90)
// while the job runs, and 100 only on success. Notification failures are
// logged and the loop continues, so a disconnected client never strands a
// running job.
func (m *Monitor) Run(ctx context.Context, jobID int64, folderID string, notify Notifier) (*Result, error) {
	m.sendProgress(ctx, notify, 0, fmt.Sprintf("Starting job %d...", jobID))
	m.sendLog(ctx, notify, "info", fmt.Sprintf("Started job %d", jobID))

	for polls := 1; polls <= m.budget; polls++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.interval):
		}

		job, err := m.getJobWithAuthRetry(ctx, jobID, folderID)
		if err != nil {
			m.sendLog(ctx, notify, "error", fmt.Sprintf("Job %d monitoring failed: %v", jobID, err))
			return &Result{
				Success: false,
				JobID:   jobID,
				Status:  StatusError,
				Error:   err.Error(),
			}, nil
		}

		switch job.State {
		case orchestrator.StateSuccessful:
			m.sendProgress(ctx, notify, 100, fmt.Sprintf("Job %d completed", jobID))
			m.sendLog(ctx, notify, "info", fmt.Sprintf("Job %d completed successfully", jobID))
			return &Result{
				Success: true,
				JobID:   jobID,
				Status:  StatusSuccessful,
				Message: fmt.Sprintf("Job %d completed successfully", jobID),
				Output:  job.OutputArguments,
			}, nil

		case orchestrator.StateFaulted:
			reason := job.Info
			if reason == "" {
				reason = fmt.Sprintf("Job %d faulted", jobID)
			}
			m.sendLog(ctx, notify, "error", fmt.Sprintf("Job %d faulted: %s", jobID, reason))
			return &Result{
				Success: false,
				JobID:   jobID,
				Status:  StatusFaulted,
				Error:   reason,
				Info:    job.Info,
			}, nil

		case orchestrator.StateStopped:
			m.sendLog(ctx, notify, "warning", fmt.Sprintf("Job %d was stopped", jobID))
			return &Result{
				Success: false,
				JobID:   jobID,
				Status:  StatusStopped,
				Message: fmt.Sprintf("Job %d was stopped", jobID),
				Info:    job.Info,
			}, nil

		default:
			// Pending, Running, or a state this client does not know about.
			progress := runningProgress(polls, m.budget)
			m.sendProgress(ctx, notify, progress,
				fmt.Sprintf("Job %d running (%s)", jobID, job.State))
		}
	}

	budgetDuration := time.Duration(m.budget) * m.interval
	m.sendLog(ctx, notify, "warning",
		fmt.Sprintf("Job %d did not complete within %s", jobID, budgetDuration))
	return &Result{
		Success: false,
		JobID:   jobID,
		Status:  StatusTimeout,
		Error:   fmt.Sprintf("Job did not complete within %s", budgetDuration),
		Message: "Job may still be running in UiPath Orchestrator",
	}, nil
}

// getJobWithAuthRetry polls once, transparently refreshing credentials and
// retrying a single time when the Orchestrator rejects the current token.
func (m *Monitor) getJobWithAuthRetry(ctx context.Context, jobID int64, folderID string) (*orchestrator.Job, error) {
	job, err := m.client.GetJob(ctx, jobID, folderID)
	if err == nil || !apperrors.IsJobAuthExpired(err) {
		return job, err
	}

	logger.Infow("refreshing expired uipath credentials", "job_id", jobID)
	if _, refreshErr := m.creds.Refresh(ctx); refreshErr != nil {
		return nil, fmt.Errorf("credential refresh failed: %w", refreshErr)
	}
	return m.client.GetJob(ctx, jobID, folderID)
}

// runningProgress maps the poll count onto the 10..90 band. The cap keeps
// the reported value below 100 until the job actually succeeds.
func runningProgress(polls, budget int) float64 {
	progress := 10 + polls*80/budget
	if progress > 90 {
		progress = 90
	}
	return float64(progress)
}

func (*Monitor) sendProgress(ctx context.Context, notify Notifier, progress float64, message string) {
	if notify == nil {
		return
	}
	if err := notify.Progress(ctx, progress, 100, message); err != nil {
		logger.Debugw("progress notification dropped", "error", err)
	}
}

func (*Monitor) sendLog(ctx context.Context, notify Notifier, level, message string) {
	if notify == nil {
		return
	}
	if err := notify.Log(ctx, level, message); err != nil {
		logger.Debugw("log notification dropped", "error", err)
	}
}
