// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/bridge"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
)

// KindStreamable is the adapter slot name for the streamable HTTP transport.
const KindStreamable = "streamable"

// sessionHeader carries the streamable transport's session id.
const sessionHeader = "Mcp-Session-Id"

// StreamableAdapter serves one endpoint over streamable HTTP: POST for
// request/response exchanges, GET for a standalone notification stream,
// DELETE to terminate the session.
type StreamableAdapter struct {
	rt        *bridge.Runtime
	session   *bridgeSession
	keepAlive time.Duration
}

// NewStreamableAdapter creates the adapter and establishes its session on
// the endpoint's MCP server before any message is processed. A registration
// failure surfaces to the caller; nothing is cached.
func NewStreamableAdapter(rt *bridge.Runtime, keepAlive time.Duration) (*StreamableAdapter, error) {
	session := newBridgeSession(uuid.NewString())
	if err := rt.MCP.RegisterSession(context.Background(), session); err != nil {
		return nil, fmt.Errorf("registering streamable session: %w", err)
	}
	session.markReady()
	go session.pump()

	logger.Infow("streamable session opened", "endpoint", rt.Key(), "session_id", session.SessionID())
	return &StreamableAdapter{rt: rt, session: session, keepAlive: keepAlive}, nil
}

// Close terminates the session.
func (a *StreamableAdapter) Close() error {
	a.session.close()
	a.rt.MCP.UnregisterSession(context.Background(), a.session.SessionID())
	return nil
}

// ServeHTTP dispatches on method.
func (a *StreamableAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !a.checkSessionHeader(w, r) {
		return
	}

	switch r.Method {
	case http.MethodPost:
		a.handlePost(w, r)
	case http.MethodGet:
		a.handleGet(w, r)
	case http.MethodDelete:
		a.handleDelete(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// checkSessionHeader rejects requests addressed to a different session.
// A missing header is accepted; the transport has one session per endpoint.
func (a *StreamableAdapter) checkSessionHeader(w http.ResponseWriter, r *http.Request) bool {
	if id := r.Header.Get(sessionHeader); id != "" && id != a.session.SessionID() {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return false
	}
	return true
}

// handlePost processes one JSON-RPC message and answers in the response
// body. Notifications are acknowledged with 202 and no body.
func (a *StreamableAdapter) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		http.Error(w, "Empty request body", http.StatusBadRequest)
		return
	}
	// Batch requests are not part of the streamable transport.
	if trimmed[0] == '[' {
		http.Error(w, "Batch requests are not supported", http.StatusBadRequest)
		return
	}
	if !validJSONRPC(trimmed) {
		http.Error(w, "Invalid JSON-RPC message", http.StatusBadRequest)
		return
	}

	select {
	case <-a.session.done:
		http.Error(w, "Session is closed", http.StatusGone)
		return
	default:
	}

	ctx := a.rt.MCP.WithContext(r.Context(), a.session)
	response := a.rt.MCP.HandleMessage(ctx, trimmed)
	if response == nil {
		w.Header().Set(sessionHeader, a.session.SessionID())
		w.WriteHeader(http.StatusAccepted)
		return
	}

	frame, err := marshalFrame(response)
	if err != nil {
		logger.Errorw("failed to marshal response", "session_id", a.session.SessionID(), "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(sessionHeader, a.session.SessionID())
	w.Write(frame)
}

// handleGet serves the standalone notification stream.
func (a *StreamableAdapter) handleGet(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set(sessionHeader, a.session.SessionID())
	flusher.Flush()

	keepAlive := time.NewTicker(a.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-a.session.done:
			return
		case frame := <-a.session.events:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// handleDelete terminates the session and releases the adapter slot so the
// next request establishes a fresh session.
func (a *StreamableAdapter) handleDelete(w http.ResponseWriter, _ *http.Request) {
	a.Close()
	a.rt.RemoveAdapter(KindStreamable)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "terminated"})
}

// validJSONRPC checks the jsonrpc version marker without decoding the
// whole message.
func validJSONRPC(body []byte) bool {
	var probe struct {
		JSONRPC string `json:"jsonrpc"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.JSONRPC == "2.0"
}
