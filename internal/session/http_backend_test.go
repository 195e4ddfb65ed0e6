package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"resty.dev/v3"
)

func newAuthServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["password"] != "secret" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"incorrect email or password"}`))
			return
		}
		writeAuthResponse(w, "access-0", "refresh-0")
	})
	mux.HandleFunc("POST /v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		switch body["refresh_token"] {
		case "refresh-0":
			writeAuthResponse(w, "access-1", "refresh-1")
		case "boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"refresh token has been revoked"}`))
		}
	})
	mux.HandleFunc("POST /v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeAuthResponse(w http.ResponseWriter, access, refresh string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(authResponse{
		User: userResponse{
			ID:       "t-1",
			FullName: "Ms. Teacher",
			Email:    "teacher@school.edu",
			Role:     notification.RoleTeacher,
		},
		AccessToken:           access,
		AccessTokenExpiresAt:  time.Now().Add(15 * time.Minute),
		RefreshToken:          refresh,
		RefreshTokenExpiresAt: time.Now().Add(24 * time.Hour),
	})
}

func newTestBackend(t *testing.T) *HTTPBackend {
	t.Helper()
	server := newAuthServer(t)
	client := resty.New().SetBaseURL(server.URL + "/v1")
	t.Cleanup(func() { client.Close() })
	return NewHTTPBackend(client)
}

func TestHTTPBackendLogin(t *testing.T) {
	backend := newTestBackend(t)

	s, err := backend.Login(context.Background(), "teacher@school.edu", "secret")
	require.NoError(t, err)
	assert.Equal(t, "t-1", s.UserID)
	assert.Equal(t, notification.RoleTeacher, s.Role)
	assert.Equal(t, "access-0", s.AccessToken)
	assert.Equal(t, "refresh-0", s.RefreshToken)
	assert.False(t, s.AccessExpiresAt.IsZero())

	_, err = backend.Login(context.Background(), "teacher@school.edu", "nope")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.ErrorContains(t, err, "incorrect email or password")
}

func TestHTTPBackendRefresh(t *testing.T) {
	backend := newTestBackend(t)

	s, err := backend.Refresh(context.Background(), "refresh-0")
	require.NoError(t, err)
	assert.Equal(t, "access-1", s.AccessToken)

	_, err = backend.Refresh(context.Background(), "refresh-0-reused")
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.ErrorIs(t, err, ErrAuthFailure)

	_, err = backend.Refresh(context.Background(), "boom")
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrAuthFailure)
}

func TestHTTPBackendUnreachable(t *testing.T) {
	client := resty.New().SetBaseURL("http://127.0.0.1:1/v1").SetTimeout(time.Second)
	defer client.Close()
	backend := NewHTTPBackend(client)

	_, err := backend.Login(context.Background(), "a@b.c", "secret")
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, backend.Logout(context.Background(), "refresh-0"), ErrTransport)
}
