// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/bridge"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
)

// KindSSE is the adapter slot name for the SSE transport.
const KindSSE = "sse"

// maxMessageSize bounds inbound JSON-RPC message bodies.
const maxMessageSize = 4 * 1024 * 1024

// SSEAdapter serves one endpoint over the SSE transport: a GET stream per
// client plus a POST message endpoint addressed by session id.
type SSEAdapter struct {
	rt           *bridge.Runtime
	messagesPath string
	keepAlive    time.Duration
	readiness    time.Duration

	mu       sync.Mutex
	sessions map[string]*bridgeSession
	closed   bool
}

// NewSSEAdapter creates the SSE adapter for rt. messagesPath is the
// absolute path clients POST messages to; it is advertised in the endpoint
// event with the session id appended.
func NewSSEAdapter(rt *bridge.Runtime, messagesPath string, keepAlive, readiness time.Duration) *SSEAdapter {
	return &SSEAdapter{
		rt:           rt,
		messagesPath: messagesPath,
		keepAlive:    keepAlive,
		readiness:    readiness,
		sessions:     make(map[string]*bridgeSession),
	}
}

// Close tears down every live session.
func (a *SSEAdapter) Close() error {
	a.mu.Lock()
	a.closed = true
	sessions := make([]*bridgeSession, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	return nil
}

// ServeStream handles the GET side: it registers a fresh session, emits the
// endpoint event, then pumps outbound frames and keep-alives until either
// side disconnects.
func (a *SSEAdapter) ServeStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	session := newBridgeSession(uuid.NewString())
	if err := a.rt.MCP.RegisterSession(r.Context(), session); err != nil {
		logger.Errorw("failed to register sse session", "endpoint", a.rt.Key(), "error", err)
		http.Error(w, "Failed to establish session", http.StatusInternalServerError)
		return
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.rt.MCP.UnregisterSession(r.Context(), session.SessionID())
		http.Error(w, "Endpoint is shutting down", http.StatusServiceUnavailable)
		return
	}
	a.sessions[session.SessionID()] = session
	a.mu.Unlock()

	defer a.teardown(r, session)
	go session.pump()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// The endpoint event tells the client where to POST its messages.
	fmt.Fprintf(w, "event: endpoint\ndata: %s?session_id=%s\n\n", a.messagesPath, session.SessionID())
	flusher.Flush()
	session.markReady()

	logger.Infow("sse session opened", "endpoint", a.rt.Key(), "session_id", session.SessionID())

	keepAlive := time.NewTicker(a.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-session.done:
			return
		case frame := <-session.events:
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame)
			flusher.Flush()
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// HandleMessage handles the POST side: it routes one inbound JSON-RPC
// message to the session named in the query string. Responses travel back
// over the session's SSE stream; the POST itself just acknowledges.
func (a *SSEAdapter) HandleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "Missing session_id parameter", http.StatusBadRequest)
		return
	}

	a.mu.Lock()
	session, ok := a.sessions[sessionID]
	a.mu.Unlock()
	if !ok {
		http.Error(w, "Could not find session", http.StatusNotFound)
		return
	}

	// Bounded wait for the stream handshake instead of racing it. The session
	// id is only advertised to the client in the endpoint event, which is
	// written after markReady, so this timeout can only fire for a caller
	// using a session id it was never given.
	select {
	case <-session.ready:
	case <-session.done:
		http.Error(w, "Session is closed", http.StatusGone)
		return
	case <-time.After(a.readiness):
		http.Error(w, "Session not ready", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	// Process asynchronously: tool calls can run for minutes and their
	// responses are delivered over the stream, not this POST. The POST's
	// own context dies with the 202, so the handler runs detached.
	ctx := a.rt.MCP.WithContext(context.WithoutCancel(r.Context()), session)
	go func() {
		if response := a.rt.MCP.HandleMessage(ctx, body); response != nil {
			frame, err := marshalFrame(response)
			if err != nil {
				logger.Errorw("failed to marshal response", "session_id", sessionID, "error", err)
				return
			}
			session.enqueue(frame)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}

// teardown unregisters the session and removes it from the adapter map;
// safe to call from either side of the stream.
func (a *SSEAdapter) teardown(r *http.Request, session *bridgeSession) {
	session.close()

	a.mu.Lock()
	delete(a.sessions, session.SessionID())
	a.mu.Unlock()

	a.rt.MCP.UnregisterSession(r.Context(), session.SessionID())
	logger.Infow("sse session closed", "endpoint", a.rt.Key(), "session_id", session.SessionID())
}
