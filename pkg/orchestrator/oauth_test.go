// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javaos74/uipath-mcp-server-sub000/pkg/storage"
)

func TestTokenEndpoints(t *testing.T) {
	t.Parallel()

	endpoints, err := tokenEndpoints("https://cloud.uipath.com/acme/prod")
	require.NoError(t, err)
	// The org/tenant path segments are dropped; identity lives at the origin.
	assert.Equal(t, []string{
		"https://cloud.uipath.com/identity/connect/token",
		"https://cloud.uipath.com/identity_/connect/token",
	}, endpoints)

	_, err = tokenEndpoints("not a url")
	assert.Error(t, err)
}

func TestExchangeClientCredentials(t *testing.T) {
	t.Parallel()

	t.Run("first endpoint succeeds", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
			assert.Equal(t, "cid", r.PostForm.Get("client_id"))
			assert.Equal(t, "OR.Jobs OR.Folders OR.Execution", r.PostForm.Get("scope"))
			assert.Equal(t, "https://orchestrator.uipath.com", r.PostForm.Get("audience"))
			w.Write([]byte(`{"access_token": "fresh-token"}`))
		}))
		defer srv.Close()

		token, err := NewTokenExchanger().ExchangeClientCredentials(
			context.Background(), srv.URL+"/acme/prod", "cid", "secret")
		require.NoError(t, err)
		assert.Equal(t, "fresh-token", token)
	})

	t.Run("falls back to second endpoint", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/identity/connect/token" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			assert.Equal(t, "/identity_/connect/token", r.URL.Path)
			w.Write([]byte(`{"access_token": "cloud-token"}`))
		}))
		defer srv.Close()

		token, err := NewTokenExchanger().ExchangeClientCredentials(
			context.Background(), srv.URL, "cid", "secret")
		require.NoError(t, err)
		assert.Equal(t, "cloud-token", token)
	})

	t.Run("all endpoints fail", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error": "invalid_client", "error_description": "bad client"}`))
		}))
		defer srv.Close()

		_, err := NewTokenExchanger().ExchangeClientCredentials(
			context.Background(), srv.URL, "cid", "wrong")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad client")
	})

	t.Run("missing access_token rejected", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"token_type": "Bearer"}`))
		}))
		defer srv.Close()

		_, err := NewTokenExchanger().ExchangeClientCredentials(
			context.Background(), srv.URL, "cid", "secret")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no access_token")
	})
}

// recordingUserStore counts UpdateAccessToken calls.
type recordingUserStore struct {
	mu          sync.Mutex
	savedTokens []string
}

func (r *recordingUserStore) Create(context.Context, *storage.User) (*storage.User, error) {
	return nil, storage.ErrAlreadyExists
}
func (r *recordingUserStore) GetByID(context.Context, int64) (*storage.User, error) {
	return nil, storage.ErrNotFound
}
func (r *recordingUserStore) GetByUsername(context.Context, string) (*storage.User, error) {
	return nil, storage.ErrNotFound
}
func (r *recordingUserStore) UpdateUiPathConfig(context.Context, int64, storage.UiPathConfig) error {
	return nil
}
func (r *recordingUserStore) UpdateAccessToken(_ context.Context, _ int64, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.savedTokens = append(r.savedTokens, token)
	return nil
}

func TestCredentialRefreshDeduplicated(t *testing.T) {
	t.Parallel()

	var exchanges atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		exchanges.Add(1)
		<-release
		w.Write([]byte(`{"access_token": "shared-token"}`))
	}))
	defer srv.Close()

	store := &recordingUserStore{}
	svc := NewCredentialService(store, NewTokenExchanger())
	user := &storage.User{
		ID:                 1,
		Username:           "alice",
		UiPathURL:          srv.URL,
		UiPathAuthType:     storage.AuthTypeOAuth,
		UiPathAccessToken:  "stale",
		UiPathClientID:     "cid",
		UiPathClientSecret: "secret",
	}
	creds := svc.ForUser(user)

	const parallel = 8
	var wg sync.WaitGroup
	results := make([]string, parallel)
	errs := make([]error, parallel)
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = creds.Refresh(context.Background())
		}(i)
	}

	// Let the in-flight exchange finish once all refreshers are queued.
	// The handler blocks until release closes, so every goroutine that has
	// called Refresh by then joins the same flight.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < parallel; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared-token", results[i])
	}
	assert.Equal(t, int32(1), exchanges.Load(), "parallel refreshes must share one exchange")

	token, err := creds.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shared-token", token)
}

func TestCredentialRefreshNotRefreshable(t *testing.T) {
	t.Parallel()

	svc := NewCredentialService(&recordingUserStore{}, NewTokenExchanger())

	tests := []struct {
		name string
		user *storage.User
	}{
		{"pat credentials", &storage.User{ID: 1, Username: "pat-user",
			UiPathAuthType: storage.AuthTypePAT, UiPathAccessToken: "pat"}},
		{"oauth without client secret", &storage.User{ID: 2, Username: "partial",
			UiPathAuthType: storage.AuthTypeOAuth, UiPathClientID: "cid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.ForUser(tt.user).Refresh(context.Background())
			assert.Error(t, err)
		})
	}
}
