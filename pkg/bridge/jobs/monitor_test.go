// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/javaos74/uipath-mcp-server-sub000/pkg/errors"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/orchestrator"
)

// scriptedJobClient returns canned poll responses in order, repeating the
// last one once the script runs out.
type scriptedJobClient struct {
	mu      sync.Mutex
	script  []pollResponse
	i       int
	polls   int
	lastErr error
}

type pollResponse struct {
	job *orchestrator.Job
	err error
}

func (c *scriptedJobClient) GetJob(_ context.Context, jobID int64, _ string) (*orchestrator.Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polls++
	resp := c.script[c.i]
	if c.i < len(c.script)-1 {
		c.i++
	}
	if resp.job != nil && resp.job.ID == 0 {
		resp.job.ID = jobID
	}
	c.lastErr = resp.err
	return resp.job, resp.err
}

// recordingNotifier captures notifications; failSends makes every send fail.
type recordingNotifier struct {
	mu        sync.Mutex
	progress  []float64
	messages  []string
	logs      []string
	failSends bool
}

func (n *recordingNotifier) Progress(_ context.Context, progress, total float64, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.progress = append(n.progress, progress)
	n.messages = append(n.messages, message)
	if n.failSends {
		return assert.AnError
	}
	_ = total
	return nil
}

func (n *recordingNotifier) Log(_ context.Context, level, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.logs = append(n.logs, level+": "+message)
	if n.failSends {
		return assert.AnError
	}
	return nil
}

// countingCreds counts refreshes and returns refreshErr when set.
type countingCreds struct {
	mu         sync.Mutex
	refreshes  int
	refreshErr error
}

func (c *countingCreds) Token(context.Context) (string, error) { return "tok", nil }
func (c *countingCreds) Refresh(context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refreshes++
	if c.refreshErr != nil {
		return "", c.refreshErr
	}
	return "fresh", nil
}

func running() pollResponse {
	return pollResponse{job: &orchestrator.Job{State: orchestrator.StateRunning}}
}

func newTestMonitor(client JobClient, creds orchestrator.Credentials, budgetPolls int) *Monitor {
	interval := time.Millisecond
	return NewMonitor(client, creds, interval, time.Duration(budgetPolls)*interval)
}

func TestMonitorSuccess(t *testing.T) {
	t.Parallel()

	client := &scriptedJobClient{script: []pollResponse{
		running(),
		running(),
		{job: &orchestrator.Job{State: orchestrator.StateSuccessful,
			OutputArguments: map[string]any{"total": float64(5)}}},
	}}
	notifier := &recordingNotifier{}

	result, err := newTestMonitor(client, &countingCreds{}, 100).Run(
		context.Background(), 42, "7", notifier)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, StatusSuccessful, result.Status)
	assert.Equal(t, int64(42), result.JobID)
	assert.Equal(t, map[string]any{"total": float64(5)}, result.Output)

	payload := result.Payload()
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, StatusSuccessful, payload["status"])
	assert.NotContains(t, payload, "error")

	// Starts at 0, ends at exactly 100, and never decreases in between.
	require.GreaterOrEqual(t, len(notifier.progress), 3)
	assert.Equal(t, float64(0), notifier.progress[0])
	assert.Equal(t, float64(100), notifier.progress[len(notifier.progress)-1])
	for i := 1; i < len(notifier.progress); i++ {
		assert.GreaterOrEqual(t, notifier.progress[i], notifier.progress[i-1])
	}
}

func TestMonitorProgressCappedAt90(t *testing.T) {
	t.Parallel()

	client := &scriptedJobClient{script: []pollResponse{running()}}
	notifier := &recordingNotifier{}

	// Small budget forces the 10 + polls*80/budget formula past the cap.
	result, err := newTestMonitor(client, &countingCreds{}, 5).Run(
		context.Background(), 1, "", notifier)
	require.NoError(t, err)
	assert.Equal(t, StatusTimeout, result.Status)

	for _, p := range notifier.progress[1:] {
		assert.LessOrEqual(t, p, float64(90), "running progress must stay below 100")
	}
}

func TestMonitorFaulted(t *testing.T) {
	t.Parallel()

	client := &scriptedJobClient{script: []pollResponse{
		running(),
		{job: &orchestrator.Job{State: orchestrator.StateFaulted, Info: "robot crashed"}},
	}}
	notifier := &recordingNotifier{}

	result, err := newTestMonitor(client, &countingCreds{}, 100).Run(
		context.Background(), 42, "", notifier)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, StatusFaulted, result.Status)
	assert.Equal(t, "robot crashed", result.Error)

	payload := result.Payload()
	assert.Equal(t, "robot crashed", payload["error"])
	assert.NotContains(t, payload, "output")
	assert.Contains(t, notifier.logs[len(notifier.logs)-1], "error: ")
}

func TestMonitorStopped(t *testing.T) {
	t.Parallel()

	client := &scriptedJobClient{script: []pollResponse{
		{job: &orchestrator.Job{State: orchestrator.StateStopped}},
	}}
	notifier := &recordingNotifier{}

	result, err := newTestMonitor(client, &countingCreds{}, 100).Run(
		context.Background(), 42, "", notifier)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, StatusStopped, result.Status)
	assert.Contains(t, result.Message, "stopped")
	assert.Contains(t, notifier.logs[len(notifier.logs)-1], "warning: ")
}

func TestMonitorTimeout(t *testing.T) {
	t.Parallel()

	client := &scriptedJobClient{script: []pollResponse{running()}}
	notifier := &recordingNotifier{}

	result, err := newTestMonitor(client, &countingCreds{}, 3).Run(
		context.Background(), 42, "", notifier)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, StatusTimeout, result.Status)
	assert.Contains(t, result.Message, "may still be running")
	assert.Equal(t, 3, client.polls)
}

func TestMonitorAuthRetry(t *testing.T) {
	t.Parallel()

	t.Run("refresh then success", func(t *testing.T) {
		t.Parallel()
		client := &scriptedJobClient{script: []pollResponse{
			{err: apperrors.NewJobAuthExpiredError("401", nil)},
			{job: &orchestrator.Job{State: orchestrator.StateSuccessful}},
		}}
		creds := &countingCreds{}

		result, err := newTestMonitor(client, creds, 100).Run(
			context.Background(), 42, "", &recordingNotifier{})
		require.NoError(t, err)

		assert.True(t, result.Success)
		assert.Equal(t, 1, creds.refreshes)
	})

	t.Run("refresh fails terminates with error", func(t *testing.T) {
		t.Parallel()
		client := &scriptedJobClient{script: []pollResponse{
			{err: apperrors.NewJobAuthExpiredError("401", nil)},
		}}
		creds := &countingCreds{refreshErr: assert.AnError}

		result, err := newTestMonitor(client, creds, 100).Run(
			context.Background(), 42, "", &recordingNotifier{})
		require.NoError(t, err)

		assert.False(t, result.Success)
		assert.Equal(t, StatusError, result.Status)
		assert.Contains(t, result.Error, "credential refresh failed")
	})
}

func TestMonitorPollErrorTerminates(t *testing.T) {
	t.Parallel()

	client := &scriptedJobClient{script: []pollResponse{
		{err: assert.AnError},
	}}
	creds := &countingCreds{}

	result, err := newTestMonitor(client, creds, 100).Run(
		context.Background(), 42, "", &recordingNotifier{})
	require.NoError(t, err)

	assert.Equal(t, StatusError, result.Status)
	// Non-auth failures never trigger a refresh.
	assert.Equal(t, 0, creds.refreshes)
}

func TestMonitorSurvivesNotifierFailures(t *testing.T) {
	t.Parallel()

	client := &scriptedJobClient{script: []pollResponse{
		running(),
		{job: &orchestrator.Job{State: orchestrator.StateSuccessful}},
	}}
	notifier := &recordingNotifier{failSends: true}

	result, err := newTestMonitor(client, &countingCreds{}, 100).Run(
		context.Background(), 42, "", notifier)
	require.NoError(t, err)
	assert.True(t, result.Success, "send failures must not abort monitoring")
}

func TestMonitorNilNotifier(t *testing.T) {
	t.Parallel()

	client := &scriptedJobClient{script: []pollResponse{
		{job: &orchestrator.Job{State: orchestrator.StateSuccessful}},
	}}

	result, err := newTestMonitor(client, &countingCreds{}, 100).Run(
		context.Background(), 42, "", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestMonitorContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &scriptedJobClient{script: []pollResponse{running()}}
	_, err := newTestMonitor(client, &countingCreds{}, 100).Run(ctx, 42, "", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
