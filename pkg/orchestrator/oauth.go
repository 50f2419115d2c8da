// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
)

const (
	// defaultOAuthScope covers job start, folder browsing, and execution APIs.
	defaultOAuthScope = "OR.Jobs OR.Folders OR.Execution"

	// defaultOAuthAudience is accepted by UiPath Cloud identity servers.
	defaultOAuthAudience = "https://orchestrator.uipath.com"

	tokenRequestTimeout = 20 * time.Second
	tokenMaxTries       = 3
)

// TokenExchanger obtains OAuth access tokens from UiPath identity servers
// via the client-credentials grant.
type TokenExchanger struct {
	httpClient *http.Client

	// scope and audience override the defaults when non-empty.
	scope    string
	audience string
}

// NewTokenExchanger creates a TokenExchanger with default scope and audience.
func NewTokenExchanger() *TokenExchanger {
	return &TokenExchanger{
		httpClient: &http.Client{Timeout: tokenRequestTimeout},
	}
}

// tokenEndpoints returns the identity endpoints to try, in order. On-prem
// MSI deployments serve /identity/connect/token; Cloud and Automation Suite
// serve /identity_/connect/token.
func tokenEndpoints(uipathURL string) ([]string, error) {
	parsed, err := url.Parse(uipathURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid uipath url %q", uipathURL)
	}
	base := parsed.Scheme + "://" + parsed.Host
	return []string{
		base + "/identity/connect/token",
		base + "/identity_/connect/token",
	}, nil
}

// ExchangeClientCredentials obtains an access token for the deployment at
// uipathURL. Each candidate endpoint is retried on transient failures
// before falling through to the next.
func (e *TokenExchanger) ExchangeClientCredentials(
	ctx context.Context, uipathURL, clientID, clientSecret string,
) (string, error) {
	endpoints, err := tokenEndpoints(uipathURL)
	if err != nil {
		return "", err
	}

	scope := e.scope
	if scope == "" {
		scope = defaultOAuthScope
	}
	audience := e.audience
	if audience == "" {
		audience = defaultOAuthAudience
	}

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"scope":         {scope},
	}
	if audience != "" {
		form.Set("audience", audience)
	}

	var lastErr error
	for _, endpoint := range endpoints {
		token, err := e.requestToken(ctx, endpoint, form)
		if err == nil {
			logger.Infow("obtained oauth access token", "endpoint", endpoint)
			return token, nil
		}
		lastErr = err
		logger.Warnw("token request failed, trying fallback endpoint",
			"endpoint", endpoint, "error", err)
	}
	return "", fmt.Errorf("failed to obtain oauth token from identity endpoints: %w", lastErr)
}

// requestToken posts the client-credentials form to one endpoint, retrying
// transient failures with exponential backoff.
func (e *TokenExchanger) requestToken(ctx context.Context, endpoint string, form url.Values) (string, error) {
	operation := func() (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
			strings.NewReader(form.Encode()))
		if err != nil {
			return "", backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return "", err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			err := fmt.Errorf("HTTP %d: %s", resp.StatusCode, tokenErrorDetail(detail))
			if resp.StatusCode >= 500 {
				// Server-side failures are worth retrying.
				return "", err
			}
			return "", backoff.Permanent(err)
		}

		var payload struct {
			AccessToken string `json:"access_token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return "", backoff.Permanent(fmt.Errorf("decoding token response: %w", err))
		}
		if payload.AccessToken == "" {
			return "", backoff.Permanent(
				fmt.Errorf("token endpoint returned 200 but no access_token present"))
		}
		return payload.AccessToken, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(tokenMaxTries))
}

// tokenErrorDetail extracts error_description (or error) from an identity
// server error body, falling back to the raw text.
func tokenErrorDetail(body []byte) string {
	var payload struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.ErrorDescription != "" {
			return payload.ErrorDescription
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return string(body)
}
