// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/javaos74/uipath-mcp-server-sub000/pkg/errors"
)

// staticCreds is a Credentials with a fixed token and no refresh support.
type staticCreds struct{ token string }

func (s staticCreds) Token(context.Context) (string, error)   { return s.token, nil }
func (s staticCreds) Refresh(context.Context) (string, error) { return "", assert.AnError }

func TestStartJob(t *testing.T) {
	t.Parallel()

	var startBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "42", r.Header.Get("X-UIPATH-OrganizationUnitId"))

		switch r.URL.Path {
		case "/orchestrator_/odata/Releases":
			assert.Equal(t, "ProcessKey eq 'Reports.Monthly'", r.URL.Query().Get("$filter"))
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{{"Key": "rel-key-1"}},
			})
		case "/orchestrator_/odata/Jobs/UiPath.Server.Configuration.OData.StartJobs":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&startBody))
			json.NewEncoder(w).Encode(map[string]any{
				"value": []map[string]any{{"Id": 123, "Key": "job-guid", "State": "Pending"}},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticCreds{token: "tok"})
	job, err := client.StartJob(context.Background(), "Reports.Monthly", "42",
		map[string]any{"month": "January"})
	require.NoError(t, err)

	assert.Equal(t, int64(123), job.ID)
	assert.Equal(t, "job-guid", job.Key)
	assert.Equal(t, StatePending, job.State)
	assert.False(t, job.Done())

	startInfo := startBody["startInfo"].(map[string]any)
	assert.Equal(t, "rel-key-1", startInfo["ReleaseKey"])
	assert.Equal(t, "RobotCount", startInfo["Strategy"])
	assert.Equal(t, "Unattended", startInfo["RuntimeType"])
	// Orchestrator expects InputArguments as a JSON string, not an object.
	assert.JSONEq(t, `{"month":"January"}`, startInfo["InputArguments"].(string))
}

func TestStartJobReleaseMissing(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticCreds{token: "tok"})
	_, err := client.StartJob(context.Background(), "Missing.Process", "", nil)
	assert.True(t, apperrors.IsJobSubmissionFailed(err))
	assert.Contains(t, err.Error(), "Missing.Process")
}

func TestAuthFailureClassified(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(status)
		}))

		client := NewClient(srv.URL, staticCreds{token: "stale"})
		_, err := client.GetJob(context.Background(), 1, "")
		assert.True(t, apperrors.IsJobAuthExpired(err), "status %d should classify as auth expired", status)
		srv.Close()
	}
}

func TestGetJobOutputArguments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		output string
		want   map[string]any
	}{
		{"decoded json", `{\"total\": 5}`, map[string]any{"total": float64(5)}},
		{"empty output", ``, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/orchestrator_/odata/Jobs(77)", r.URL.Path)
				w.Write([]byte(`{"Id": 77, "State": "Successful", "Info": "", "OutputArguments": "` + tt.output + `"}`))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, staticCreds{token: "tok"})
			job, err := client.GetJob(context.Background(), 77, "")
			require.NoError(t, err)
			assert.Equal(t, StateSuccessful, job.State)
			assert.True(t, job.Done())
			assert.Equal(t, tt.want, job.OutputArguments)
		})
	}
}

func TestListFolders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Quotes in the search term must be doubled per OData rules.
		assert.Equal(t,
			"contains(DisplayName,'fin''ance') or contains(FullyQualifiedName,'fin''ance')",
			r.URL.Query().Get("$filter"))
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{"Id": 7, "DisplayName": "Finance", "FullyQualifiedName": "Shared/Finance", "Type": "Standard"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticCreds{token: "tok"})
	folders, err := client.ListFolders(context.Background(), "fin'ance")
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, "7", folders[0].ID)
	assert.Equal(t, "Finance", folders[0].Name)
	assert.Equal(t, "Shared/Finance", folders[0].FullName)
}

func TestListProcesses(t *testing.T) {
	t.Parallel()

	inputMeta := `[{"name":"month","type":"System.String, mscorlib","required":true,"hasDefault":false},` +
		`{"name":"limit","type":"System.Int32, mscorlib","required":true,"hasDefault":true},` +
		`{"name":"dryRun","type":"System.Boolean, mscorlib","required":false,"hasDefault":false}]`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "9", r.Header.Get("X-UIPATH-OrganizationUnitId"))
		json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]any{
				{
					"Key": "k1", "ProcessKey": "Reports.Monthly", "Name": "Monthly Report",
					"Arguments": map[string]any{"Input": inputMeta},
				},
				// Duplicate ProcessKey entries collapse to the first.
				{"Key": "k2", "ProcessKey": "Reports.Monthly", "Name": "Monthly Report v2"},
				{"Key": "k3", "ProcessKey": "Invoices.Sync", "Name": "Invoice Sync"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticCreds{token: "tok"})
	processes, err := client.ListProcesses(context.Background(), "9")
	require.NoError(t, err)
	require.Len(t, processes, 2)

	monthly := processes[0]
	assert.Equal(t, "Reports.Monthly", monthly.ProcessKey)
	require.Len(t, monthly.InputParams, 3)
	assert.Equal(t, ProcessParam{Name: "month", Type: "string", Description: "Parameter month", Required: true}, monthly.InputParams[0])
	// A default value makes the parameter optional even when marked required.
	assert.False(t, monthly.InputParams[1].Required)
	assert.Equal(t, "number", monthly.InputParams[1].Type)
	assert.Equal(t, "boolean", monthly.InputParams[2].Type)

	assert.Empty(t, processes[1].InputParams)
}

func TestTenantNameHeader(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "acme", r.Header.Get("X-UIPATH-TenantName"))
		json.NewEncoder(w).Encode(map[string]any{"value": []any{}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, staticCreds{token: "tok"}, WithTenantName("acme"))
	_, err := client.ListFolders(context.Background(), "")
	require.NoError(t, err)
}
