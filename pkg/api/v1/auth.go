// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/auth"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/logger"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/orchestrator"
	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

// AuthRoutes defines the routes for accounts and UiPath credentials.
type AuthRoutes struct {
	users     storage.UserStore
	servers   storage.ServerStore
	tokens    *auth.TokenManager
	exchanger *orchestrator.TokenExchanger
	cache     RuntimeInvalidator
}

// AuthRouter creates a new router for the auth API. requireUser guards the
// routes that act on the calling identity; register and login stay public.
func AuthRouter(
	users storage.UserStore,
	servers storage.ServerStore,
	tokens *auth.TokenManager,
	exchanger *orchestrator.TokenExchanger,
	cache RuntimeInvalidator,
	requireUser func(http.Handler) http.Handler,
) http.Handler {
	routes := AuthRoutes{
		users:     users,
		servers:   servers,
		tokens:    tokens,
		exchanger: exchanger,
		cache:     cache,
	}

	r := chi.NewRouter()
	r.Post("/register", routes.register)
	r.Post("/login", routes.login)
	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/me", routes.me)
		r.Put("/uipath-config", routes.updateUiPathConfig)
	})
	return r
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`

	UiPathURL      string `json:"uipath_url,omitempty"`
	UiPathAuthType string `json:"uipath_auth_type,omitempty"`
	// UiPathConfigured reports whether the account can run jobs; the
	// stored credentials themselves are never returned.
	UiPathConfigured bool `json:"uipath_configured"`
}

func toUserResponse(user *storage.User) userResponse {
	return userResponse{
		ID:               user.ID,
		Username:         user.Username,
		Email:            user.Email,
		Role:             user.Role,
		UiPathURL:        user.UiPathURL,
		UiPathAuthType:   user.UiPathAuthType,
		UiPathConfigured: user.UiPathURL != "" && user.UiPathAccessToken != "",
	}
}

// register
//
//	@Summary		Register a new account
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Success		201	{object}	userResponse
//	@Failure		400	{string}	string	"Invalid request"
//	@Failure		409	{string}	string	"Username already registered"
//	@Router			/auth/register [post]
func (a *AuthRoutes) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = storage.RoleUser
	}
	if req.Role != storage.RoleUser && req.Role != storage.RoleAdmin {
		http.Error(w, "Invalid role", http.StatusBadRequest)
		return
	}

	user, err := a.users.Create(r.Context(), &storage.User{
		Username:       req.Username,
		Email:          req.Email,
		HashedPassword: auth.HashPassword(req.Password),
		Role:           req.Role,
		IsActive:       true,
	})
	if errors.Is(err, storage.ErrAlreadyExists) {
		http.Error(w, "Username already registered", http.StatusConflict)
		return
	}
	if err != nil {
		logger.Errorw("failed to create user", "username", req.Username, "error", err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// login
//
//	@Summary		Exchange credentials for an access token
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	tokenResponse
//	@Failure		401	{string}	string	"Incorrect username or password"
//	@Router			/auth/login [post]
func (a *AuthRoutes) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := a.users.GetByUsername(r.Context(), req.Username)
	if err != nil || !user.IsActive || !auth.VerifyPassword(req.Password, user.HashedPassword) {
		http.Error(w, "Incorrect username or password", http.StatusUnauthorized)
		return
	}

	token, err := a.tokens.MintUserToken(user.Username)
	if err != nil {
		logger.Errorw("failed to mint access token", "username", user.Username, "error", err)
		http.Error(w, "Failed to create access token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

// me
//
//	@Summary		Current account details
//	@Tags			auth
//	@Produce		json
//	@Success		200	{object}	userResponse
//	@Router			/auth/me [get]
func (a *AuthRoutes) me(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	user, err := a.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

type uipathConfigRequest struct {
	UiPathURL    string `json:"uipath_url"`
	AuthType     string `json:"auth_type"`
	AccessToken  string `json:"access_token"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// updateUiPathConfig
//
//	@Summary		Store UiPath Orchestrator connection settings
//	@Description	With auth_type oauth the client credentials are exchanged
//	@Description	for an access token before anything is stored.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	userResponse
//	@Failure		400	{string}	string	"Invalid request"
//	@Router			/auth/uipath-config [put]
func (a *AuthRoutes) updateUiPathConfig(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req uipathConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.UiPathURL == "" {
		http.Error(w, "uipath_url is required", http.StatusBadRequest)
		return
	}

	cfg := storage.UiPathConfig{
		URL:      req.UiPathURL,
		AuthType: req.AuthType,
	}
	switch req.AuthType {
	case storage.AuthTypePAT:
		if req.AccessToken == "" {
			http.Error(w, "access_token is required for pat auth", http.StatusBadRequest)
			return
		}
		cfg.AccessToken = req.AccessToken
	case storage.AuthTypeOAuth:
		if req.ClientID == "" || req.ClientSecret == "" {
			http.Error(w, "client_id and client_secret are required for oauth auth", http.StatusBadRequest)
			return
		}
		// Exchange eagerly so a bad credential fails the request instead
		// of the first job.
		token, err := a.exchanger.ExchangeClientCredentials(r.Context(), req.UiPathURL, req.ClientID, req.ClientSecret)
		if err != nil {
			logger.Warnw("uipath token exchange failed", "username", identity.Username, "error", err)
			http.Error(w, "Failed to obtain UiPath access token with the provided credentials", http.StatusBadRequest)
			return
		}
		cfg.AccessToken = token
		cfg.ClientID = req.ClientID
		cfg.ClientSecret = req.ClientSecret
	default:
		http.Error(w, "auth_type must be pat or oauth", http.StatusBadRequest)
		return
	}

	if err := a.users.UpdateUiPathConfig(r.Context(), identity.UserID, cfg); err != nil {
		logger.Errorw("failed to store uipath config", "username", identity.Username, "error", err)
		http.Error(w, "Failed to store UiPath configuration", http.StatusInternalServerError)
		return
	}

	// Cached runtimes hold the previous connection settings.
	a.invalidateUserRuntimes(r, identity.UserID)

	user, err := a.users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (a *AuthRoutes) invalidateUserRuntimes(r *http.Request, userID int64) {
	servers, err := a.servers.List(r.Context(), userID)
	if err != nil {
		logger.Warnw("failed to list servers for runtime invalidation", "user_id", userID, "error", err)
		return
	}
	for _, srv := range servers {
		a.cache.InvalidateServer(srv)
	}
}
