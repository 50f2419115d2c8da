// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

// Credentials supplies the bearer token for Orchestrator calls.
type Credentials interface {
	// Token returns the current access token.
	Token(ctx context.Context) (string, error)

	// Refresh obtains a fresh access token and returns it. Callers invoke
	// this after the Orchestrator rejects the current token. Returns an
	// error when the credential cannot be refreshed (e.g. a static PAT).
	Refresh(ctx context.Context) (string, error)
}

// CredentialService builds per-user Credentials backed by the user store.
// Concurrent refreshes for the same user collapse into one token exchange.
type CredentialService struct {
	users     storage.UserStore
	exchanger *TokenExchanger
	group     singleflight.Group
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(users storage.UserStore, exchanger *TokenExchanger) *CredentialService {
	return &CredentialService{users: users, exchanger: exchanger}
}

// ForUser returns Credentials bound to the user's stored UiPath settings.
// The user snapshot seeds the initial token; refreshes persist back to the
// store.
func (s *CredentialService) ForUser(user *storage.User) Credentials {
	return &userCredentials{svc: s, user: user, token: user.UiPathAccessToken}
}

// userCredentials implements Credentials for one user.
type userCredentials struct {
	svc  *CredentialService
	user *storage.User

	mu    sync.Mutex
	token string
}

// Token returns the current access token.
func (c *userCredentials) Token(_ context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" {
		return "", fmt.Errorf("user %s has no uipath access token configured", c.user.Username)
	}
	return c.token, nil
}

// Refresh exchanges the user's client credentials for a new access token.
// Parallel refreshes for the same user share a single exchange; every
// caller observes the same resulting token.
func (c *userCredentials) Refresh(ctx context.Context) (string, error) {
	if c.user.UiPathAuthType != storage.AuthTypeOAuth ||
		c.user.UiPathClientID == "" || c.user.UiPathClientSecret == "" {
		return "", fmt.Errorf("credentials for user %s are not refreshable", c.user.Username)
	}

	key := fmt.Sprintf("refresh:%d", c.user.ID)
	result, err, shared := c.svc.group.Do(key, func() (any, error) {
		token, err := c.svc.exchanger.ExchangeClientCredentials(
			ctx, c.user.UiPathURL, c.user.UiPathClientID, c.user.UiPathClientSecret)
		if err != nil {
			return nil, err
		}
		if err := c.svc.users.UpdateAccessToken(ctx, c.user.ID, token); err != nil {
			// The token is valid even if persisting it failed; log and
			// keep going so the in-flight job can proceed.
			logger.Errorw("failed to persist refreshed access token",
				"user_id", c.user.ID, "error", err)
		}
		return token, nil
	})
	if err != nil {
		return "", fmt.Errorf("refreshing uipath token: %w", err)
	}
	if shared {
		logger.Debugw("token refresh coalesced with concurrent request", "user_id", c.user.ID)
	}

	token := result.(string)
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return token, nil
}
