// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

// BearerToken extracts a bearer credential from the request. The
// Authorization header takes precedence over the token query parameter.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Middleware authenticates API requests against user access tokens.
type Middleware struct {
	tokens *TokenManager
	users  storage.UserStore
}

// NewMiddleware creates the API authentication middleware.
func NewMiddleware(tokens *TokenManager, users storage.UserStore) *Middleware {
	return &Middleware{tokens: tokens, users: users}
}

// RequireUser rejects requests without a valid user token and stores the
// resolved Identity in the request context.
func (m *Middleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := m.authenticate(r.Context(), BearerToken(r))
		if err != nil {
			logger.Debugw("rejected api request", "path", r.URL.Path, "error", err)
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "Could not validate credentials", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// RequireAdmin rejects authenticated requests whose identity lacks the
// admin role. Must be mounted after RequireUser.
func (*Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok || !identity.IsAdmin() {
			http.Error(w, "Not enough permissions", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Authenticate resolves a bearer token to an Identity. Exposed for handlers
// that authenticate outside the middleware chain.
func (m *Middleware) Authenticate(ctx context.Context, token string) (*Identity, error) {
	return m.authenticate(ctx, token)
}

func (m *Middleware) authenticate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, errNoCredentials
	}
	username, err := m.tokens.ValidateUserToken(token)
	if err != nil {
		return nil, err
	}
	user, err := m.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, errInactiveUser
	}
	return &Identity{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}
