// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/subtle"
	"errors"

	apperrors "github.com/javaos74/uipath-mcp-server-sub000/pkg/errors"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

var (
	errNoCredentials = errors.New("no credentials provided")
	errInactiveUser  = errors.New("user is inactive")
)

// EndpointAuthorizer decides whether a caller may attach to an MCP endpoint.
type EndpointAuthorizer struct {
	mw *Middleware
}

// NewEndpointAuthorizer creates an EndpointAuthorizer over the shared
// authentication middleware.
func NewEndpointAuthorizer(mw *Middleware) *EndpointAuthorizer {
	return &EndpointAuthorizer{mw: mw}
}

// Authorize grants access when the presented token matches the server's API
// token, or when it is a valid user token for the server's owner or an
// admin. The returned error is the same for every failure mode so callers
// cannot probe which endpoints exist.
func (a *EndpointAuthorizer) Authorize(ctx context.Context, server *storage.Server, token string) error {
	if token != "" && server.APIToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(server.APIToken)) == 1 {
		return nil
	}

	identity, err := a.mw.authenticate(ctx, token)
	if err != nil {
		return apperrors.NewAccessDeniedError("access denied", nil)
	}
	if identity.IsAdmin() || identity.UserID == server.UserID {
		return nil
	}
	return apperrors.NewAccessDeniedError("access denied", nil)
}
