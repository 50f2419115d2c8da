// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package orchestrator is a client for the UiPath Orchestrator OData API.
// It starts jobs, polls their status, and browses folders and published
// processes on behalf of a configured user.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/javaos74/uipath-mcp-server-sub000/pkg/errors"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
)

const (
	requestTimeout = 30 * time.Second

	// odataPrefix is the Orchestrator API root under the configured base URL.
	odataPrefix = "/orchestrator_/odata"
)

// Client calls the Orchestrator API for a single user's deployment.
// The zero value is not usable; construct with NewClient.
type Client struct {
	baseURL    string
	tenantName string
	creds      Credentials
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTenantName sets the X-UIPATH-TenantName header on every request.
// Required by some on-prem deployments.
func WithTenantName(name string) Option {
	return func(cl *Client) { cl.tenantName = name }
}

// NewClient creates a Client for the Orchestrator at baseURL, authenticating
// each request through creds.
func NewClient(baseURL string, creds Credentials, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		creds:      creds,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// startJobsResponse is the OData envelope returned by StartJobs.
type startJobsResponse struct {
	Value []jobRecord `json:"value"`
}

type jobRecord struct {
	ID              int64  `json:"Id"`
	Key             string `json:"Key"`
	State           string `json:"State"`
	Info            string `json:"Info"`
	OutputArguments string `json:"OutputArguments"`
}

func (r *jobRecord) toJob() *Job {
	job := &Job{ID: r.ID, Key: r.Key, State: r.State, Info: r.Info}
	if r.OutputArguments != "" {
		// OutputArguments is a JSON string; a decode failure leaves the
		// raw text available under "raw".
		if err := json.Unmarshal([]byte(r.OutputArguments), &job.OutputArguments); err != nil {
			job.OutputArguments = map[string]any{"raw": r.OutputArguments}
		}
	}
	return job
}

// StartJob submits one unattended job for the process named processName in
// folderID and returns its initial status.
func (c *Client) StartJob(ctx context.Context, processName, folderID string, inputArgs map[string]any) (*Job, error) {
	releaseKey, err := c.releaseKeyForProcess(ctx, processName, folderID)
	if err != nil {
		return nil, err
	}

	startInfo := map[string]any{
		"ReleaseKey":  releaseKey,
		"Strategy":    "RobotCount",
		"NoOfRobots":  1,
		"RuntimeType": "Unattended",
		"Source":      "Manual",
	}
	if len(inputArgs) > 0 {
		encoded, err := json.Marshal(inputArgs)
		if err != nil {
			return nil, fmt.Errorf("encoding input arguments: %w", err)
		}
		startInfo["InputArguments"] = string(encoded)
	}

	var resp startJobsResponse
	err = c.do(ctx, http.MethodPost, "/Jobs/UiPath.Server.Configuration.OData.StartJobs",
		folderID, map[string]any{"startInfo": startInfo}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Value) == 0 {
		return nil, apperrors.NewJobSubmissionFailedError("no job created in response", nil)
	}

	job := resp.Value[0].toJob()
	logger.Infow("started uipath job", "process", processName, "job_id", job.ID, "job_key", job.Key)
	return job, nil
}

// GetJob fetches the current status of a job.
func (c *Client) GetJob(ctx context.Context, jobID int64, folderID string) (*Job, error) {
	var rec jobRecord
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/Jobs(%d)", jobID), folderID, nil, &rec)
	if err != nil {
		return nil, err
	}
	if rec.ID == 0 {
		rec.ID = jobID
	}
	return rec.toJob(), nil
}

// releaseKeyForProcess resolves the release key for a process name.
func (c *Client) releaseKeyForProcess(ctx context.Context, processName, folderID string) (string, error) {
	var resp struct {
		Value []struct {
			Key string `json:"Key"`
		} `json:"value"`
	}
	path := "/Releases?" + url.Values{
		"$filter": {fmt.Sprintf("ProcessKey eq '%s'", escapeOData(processName))},
	}.Encode()
	if err := c.do(ctx, http.MethodGet, path, folderID, nil, &resp); err != nil {
		return "", err
	}
	if len(resp.Value) == 0 {
		return "", apperrors.NewJobSubmissionFailedError(
			fmt.Sprintf("release not found for process: %s", processName), nil)
	}
	return resp.Value[0].Key, nil
}

// ListFolders returns the folders visible to the user, optionally filtered
// by a server-side substring search on the display or qualified name.
func (c *Client) ListFolders(ctx context.Context, search string) ([]Folder, error) {
	path := "/Folders"
	if search != "" {
		escaped := escapeOData(search)
		filter := fmt.Sprintf(
			"contains(DisplayName,'%s') or contains(FullyQualifiedName,'%s')", escaped, escaped)
		path += "?" + url.Values{"$filter": {filter}}.Encode()
	}

	var resp struct {
		Value []struct {
			ID                 int64  `json:"Id"`
			DisplayName        string `json:"DisplayName"`
			FullyQualifiedName string `json:"FullyQualifiedName"`
			Description        string `json:"Description"`
			Type               string `json:"Type"`
		} `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return nil, err
	}

	folders := make([]Folder, 0, len(resp.Value))
	for _, f := range resp.Value {
		folders = append(folders, Folder{
			ID:          strconv.FormatInt(f.ID, 10),
			Name:        f.DisplayName,
			FullName:    f.FullyQualifiedName,
			Description: f.Description,
			Type:        f.Type,
		})
	}
	return folders, nil
}

// ListProcesses returns the published processes in a folder, with input
// parameter definitions decoded from the release argument metadata.
func (c *Client) ListProcesses(ctx context.Context, folderID string) ([]Process, error) {
	var resp struct {
		Value []struct {
			Key         string `json:"Key"`
			ProcessKey  string `json:"ProcessKey"`
			Name        string `json:"Name"`
			Description string `json:"Description"`
			Arguments   struct {
				Input string `json:"Input"`
			} `json:"Arguments"`
		} `json:"value"`
	}
	if err := c.do(ctx, http.MethodGet, "/Releases", folderID, nil, &resp); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	processes := make([]Process, 0, len(resp.Value))
	for _, rel := range resp.Value {
		if rel.ProcessKey == "" || seen[rel.ProcessKey] {
			continue
		}
		seen[rel.ProcessKey] = true

		processes = append(processes, Process{
			Key:         rel.Key,
			ProcessKey:  rel.ProcessKey,
			Name:        rel.Name,
			Description: rel.Description,
			InputParams: decodeInputParams(rel.Arguments.Input),
		})
	}
	return processes, nil
}

// decodeInputParams decodes the release's Input argument metadata, a JSON
// string holding an array of .NET argument definitions.
func decodeInputParams(input string) []ProcessParam {
	if input == "" {
		return nil
	}
	var defs []struct {
		Name       string `json:"name"`
		Type       string `json:"type"`
		Required   bool   `json:"required"`
		HasDefault bool   `json:"hasDefault"`
	}
	if err := json.Unmarshal([]byte(input), &defs); err != nil {
		logger.Debugw("undecodable release argument metadata", "error", err)
		return nil
	}

	params := make([]ProcessParam, 0, len(defs))
	for _, def := range defs {
		params = append(params, ProcessParam{
			Name:        def.Name,
			Type:        paramTypeFromDotNet(def.Type),
			Description: "Parameter " + def.Name,
			Required:    def.Required && !def.HasDefault,
		})
	}
	return params
}

// do performs one authenticated API call and decodes the JSON response into
// out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path, folderID string, body, out any) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+odataPrefix+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	if c.tenantName != "" {
		req.Header.Set("X-UIPATH-TenantName", c.tenantName)
	}
	if folderID != "" {
		req.Header.Set("X-UIPATH-OrganizationUnitId", folderID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling orchestrator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return apperrors.NewJobAuthExpiredError(
			fmt.Sprintf("orchestrator rejected credentials (HTTP %d)", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("orchestrator returned HTTP %d: %s", resp.StatusCode, detail)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// escapeOData escapes single quotes in OData string literals by doubling them.
func escapeOData(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
		} else {
			out = append(out, s[i])
		}
	}
	return string(out)
}
