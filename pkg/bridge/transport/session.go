// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package transport exposes endpoint runtimes over the MCP wire transports:
// SSE with a separate message endpoint, and streamable HTTP.
package transport

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
)

// eventBufferSize bounds the per-session outbound queue. A slow or stalled
// reader drops messages rather than blocking the protocol server.
const eventBufferSize = 100

// bridgeSession is one client connection registered on the endpoint's MCP
// server. It implements mcpserver.ClientSession.
type bridgeSession struct {
	id string

	// notifications receives server-initiated notifications from mcp-go.
	notifications chan mcp.JSONRPCNotification

	// events carries serialized frames (responses and notifications) to
	// the wire writer.
	events chan []byte

	// ready closes once the session can accept inbound messages. Inbound
	// handlers wait on it briefly instead of racing the handshake.
	ready chan struct{}

	// done closes on teardown.
	done chan struct{}

	initialized atomic.Bool
	closeOnce   sync.Once
}

func newBridgeSession(id string) *bridgeSession {
	return &bridgeSession{
		id:            id,
		notifications: make(chan mcp.JSONRPCNotification, eventBufferSize),
		events:        make(chan []byte, eventBufferSize),
		ready:         make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// SessionID implements mcpserver.ClientSession.
func (s *bridgeSession) SessionID() string {
	return s.id
}

// NotificationChannel implements mcpserver.ClientSession.
func (s *bridgeSession) NotificationChannel() chan<- mcp.JSONRPCNotification {
	return s.notifications
}

// Initialize implements mcpserver.ClientSession.
func (s *bridgeSession) Initialize() {
	s.initialized.Store(true)
}

// Initialized implements mcpserver.ClientSession.
func (s *bridgeSession) Initialized() bool {
	return s.initialized.Load()
}

// markReady signals that inbound messages may now be processed.
func (s *bridgeSession) markReady() {
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
}

// close tears the session down exactly once.
func (s *bridgeSession) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// enqueue queues a frame for the wire writer, dropping it when the session
// is gone or the buffer is full.
func (s *bridgeSession) enqueue(frame []byte) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.events <- frame:
	default:
		logger.Warnw("dropping outbound message, session buffer full", "session_id", s.id)
	}
}

// marshalFrame serializes an outbound JSON-RPC message.
func marshalFrame(message any) ([]byte, error) {
	return json.Marshal(message)
}

// pump forwards mcp-go notifications onto the event queue until teardown.
// Runs as the session's runner goroutine.
func (s *bridgeSession) pump() {
	for {
		select {
		case <-s.done:
			return
		case notification := <-s.notifications:
			frame, err := json.Marshal(notification)
			if err != nil {
				logger.Errorw("failed to marshal notification", "session_id", s.id, "error", err)
				continue
			}
			s.enqueue(frame)
		}
	}
}
