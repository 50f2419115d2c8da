// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStreamableTestServer(t *testing.T) (*StreamableAdapter, *httptest.Server) {
	t.Helper()
	adapter, err := NewStreamableAdapter(newTestRuntime(t), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { adapter.Close() })

	srv := httptest.NewServer(adapter)
	t.Cleanup(srv.Close)
	return adapter, srv
}

func TestStreamablePostRequest(t *testing.T) {
	t.Parallel()

	adapter, srv := newStreamableTestServer(t)

	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(initializeRequest))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, adapter.session.SessionID(), resp.Header.Get(sessionHeader))

	var response struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int    `json:"id"`
		Result  struct {
			ServerInfo struct {
				Name string `json:"name"`
			} `json:"serverInfo"`
		} `json:"result"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	assert.Equal(t, "2.0", response.JSONRPC)
	assert.Equal(t, 1, response.ID)
	assert.Equal(t, "test-endpoint", response.Result.ServerInfo.Name)
}

func TestStreamablePostNotification(t *testing.T) {
	t.Parallel()

	adapter, srv := newStreamableTestServer(t)

	// Initialize first so the notification is accepted by the protocol server.
	resp, err := http.Post(srv.URL, "application/json", strings.NewReader(initializeRequest))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(srv.URL, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, adapter.session.SessionID(), resp.Header.Get(sessionHeader))
}

func TestStreamablePostRejections(t *testing.T) {
	t.Parallel()

	_, srv := newStreamableTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "empty body", body: "", want: http.StatusBadRequest},
		{name: "batch request", body: `[` + initializeRequest + `]`, want: http.StatusBadRequest},
		{name: "not json", body: `{{{`, want: http.StatusBadRequest},
		{name: "wrong jsonrpc version", body: `{"jsonrpc":"1.0","id":1,"method":"ping"}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp, err := http.Post(srv.URL, "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestStreamableSessionHeaderMismatch(t *testing.T) {
	t.Parallel()

	_, srv := newStreamableTestServer(t)

	req, err := http.NewRequest(http.MethodPost, srv.URL, strings.NewReader(initializeRequest))
	require.NoError(t, err)
	req.Header.Set(sessionHeader, "some-other-session")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamableGetStreamsNotifications(t *testing.T) {
	t.Parallel()

	adapter, srv := newStreamableTestServer(t)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	adapter.session.enqueue([]byte(`{"jsonrpc":"2.0","method":"notifications/progress","params":{"progress":50}}`))

	event, data := readEvent(t, bufio.NewReader(resp.Body))
	assert.Equal(t, "message", event)
	assert.Contains(t, data, "notifications/progress")
}

func TestStreamableDeleteTerminates(t *testing.T) {
	t.Parallel()

	adapter, srv := newStreamableTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "terminated", body["status"])

	select {
	case <-adapter.session.done:
	default:
		t.Fatal("session not closed by DELETE")
	}

	// Messages addressed to the dead session are refused.
	resp, err = http.Post(srv.URL, "application/json", strings.NewReader(initializeRequest))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestStreamableMethodNotAllowed(t *testing.T) {
	t.Parallel()

	_, srv := newStreamableTestServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL, strings.NewReader("{}"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
