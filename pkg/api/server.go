// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package api contains the REST API and MCP endpoints for the bridge server.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/javaos74/uipath-mcp-server-sub000/pkg/api/v1"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/auth"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/bridge"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/builtin"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/config"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/orchestrator"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

const (
	// middlewareTimeout bounds REST requests. MCP routes are exempt:
	// SSE streams stay open for the life of the client.
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Stores bundles the persistence interfaces the server needs.
type Stores struct {
	Users   storage.UserStore
	Servers storage.ServerStore
	Tools   storage.ToolStore
}

// NewRouter assembles the full HTTP surface: health, the v1 management API,
// and the MCP wire endpoints.
func NewRouter(cfg *config.Config, stores Stores) http.Handler {
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenExpiry))
	mw := auth.NewMiddleware(tokens, stores.Users)
	authorizer := auth.NewEndpointAuthorizer(mw)
	exchanger := orchestrator.NewTokenExchanger()
	creds := orchestrator.NewCredentialService(stores.Users, exchanger)
	registry := bridge.NewRegistry(
		stores.Servers, stores.Users, stores.Tools,
		builtin.DefaultRegistry(), creds,
		time.Duration(cfg.Jobs.PollInterval), time.Duration(cfg.Jobs.MaxDuration),
	)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(middlewareTimeout))

		r.Mount("/health", v1.HealthcheckRouter())
		r.Mount("/auth", v1.AuthRouter(
			stores.Users, stores.Servers, tokens, exchanger, registry, mw.RequireUser))

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireUser)
			r.Mount("/api/servers", v1.ServerRouter(stores.Servers, stores.Tools, registry))
			r.Mount("/api/uipath", v1.UiPathRouter(stores.Users, creds))
		})
	})

	r.Mount("/mcp", MCPRouter(
		registry, authorizer,
		time.Duration(cfg.Transport.KeepAliveInterval),
		time.Duration(cfg.Transport.ReadinessTimeout),
	))
	return r
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully. It is assumed that the caller sets up signal handling.
func Serve(ctx context.Context, cfg *config.Config, stores Stores) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              cfg.ListenAddr(),
		Handler:           NewRouter(cfg, stores),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("starting http server", "address", cfg.ListenAddr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Infow("http server stopped")
	return nil
}
