// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package main is the entry point for the UiPath MCP bridge server (orchmcp).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/javaos74/uipath-mcp-server-sub000/cmd/orchmcp/app"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
)

func main() {
	// Create a context that will be canceled on signal
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	if err := app.NewRootCmd().ExecuteContext(ctx); err != nil {
		logger.Errorf("Error executing command: %v", err)
		os.Exit(1)
	}
}
