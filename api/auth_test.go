package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	db "github.com/katatrina/schoolhub-BE/internal/db/sqlc"
	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "s-1", notification.RoleStudent)

	resp := env.login(t, user)
	assert.Equal(t, user.ID, resp.User.ID)
	assert.Equal(t, notification.RoleStudent, resp.User.Role)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.True(t, resp.RefreshTokenExpiresAt.After(resp.AccessTokenExpiresAt))
	assert.Equal(t, 1, env.refreshStore.Len())

	recorder := env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{
		"email":    user.Email,
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	recorder = env.do(t, http.MethodPost, "/v1/auth/login", "", gin.H{
		"email":    "nobody@school.edu",
		"password": testPassword,
	})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRefreshRotatesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "t-1", notification.RoleTeacher)
	first := env.login(t, user)

	recorder := env.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": first.RefreshToken})
	require.Equal(t, http.StatusOK, recorder.Code, recorder.Body.String())

	var second authResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &second))
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.NotEqual(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, user.ID, second.User.ID)

	// The consumed refresh token can never mint again.
	recorder = env.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": first.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	// An access token is not a refresh token.
	recorder = env.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": second.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "p-1", notification.RoleParent)
	session := env.login(t, user)

	recorder := env.do(t, http.MethodPost, "/v1/auth/logout", "", gin.H{"refresh_token": session.RefreshToken})
	require.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Zero(t, env.refreshStore.Len())

	recorder = env.do(t, http.MethodPost, "/v1/auth/logout", "", gin.H{"refresh_token": session.RefreshToken})
	assert.Equal(t, http.StatusNoContent, recorder.Code)

	recorder = env.do(t, http.MethodPost, "/v1/auth/refresh", "", gin.H{"refresh_token": session.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestGetAuthenticatedUser(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "a-1", notification.RoleAdmin)
	session := env.login(t, user)

	recorder := env.do(t, http.MethodGet, "/v1/auth/me", session.AccessToken, nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var got db.User
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &got))
	assert.Equal(t, user.Email, got.Email)
	assert.NotContains(t, recorder.Body.String(), "hashed_password")

	testCases := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"garbage token", "not-a-jwt"},
		{"refresh token", session.RefreshToken},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := env.do(t, http.MethodGet, "/v1/auth/me", tc.header, nil)
			assert.Equal(t, http.StatusUnauthorized, recorder.Code)
		})
	}
}

func TestGoogleLoginDisabledWithoutClientID(t *testing.T) {
	env := newTestEnv(t)

	recorder := env.do(t, http.MethodPost, "/v1/auth/google-login", "", gin.H{"id_token": "x"})
	assert.Equal(t, http.StatusNotImplemented, recorder.Code)
}

func TestVerifyAccessToken(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "s-1", notification.RoleStudent)
	session := env.login(t, user)

	recorder := env.do(t, http.MethodPost, "/v1/tokens/verify", "", gin.H{"access_token": session.AccessToken})
	assert.Equal(t, http.StatusOK, recorder.Code)

	recorder = env.do(t, http.MethodPost, "/v1/tokens/verify", "", gin.H{"access_token": session.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestCreateUser(t *testing.T) {
	env := newTestEnv(t)
	admin := env.login(t, env.createUser(t, "a-1", notification.RoleAdmin))
	teacher := env.login(t, env.createUser(t, "t-1", notification.RoleTeacher))

	body := gin.H{
		"full_name": "Tran Thi Mai",
		"email":     "Mai@School.edu",
		"password":  testPassword,
		"role":      "parent",
	}

	recorder := env.do(t, http.MethodPost, "/v1/users", teacher.AccessToken, body)
	assert.Equal(t, http.StatusForbidden, recorder.Code)

	recorder = env.do(t, http.MethodPost, "/v1/users", admin.AccessToken, body)
	require.Equal(t, http.StatusCreated, recorder.Code, recorder.Body.String())

	var created db.User
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &created))
	assert.Equal(t, "mai@school.edu", created.Email)
	assert.Equal(t, notification.RoleParent, created.Role)

	recorder = env.do(t, http.MethodPost, "/v1/users", admin.AccessToken, body)
	assert.Equal(t, http.StatusConflict, recorder.Code)

	recorder = env.do(t, http.MethodPost, "/v1/users", admin.AccessToken, gin.H{
		"full_name": "X",
		"email":     "bad",
		"password":  "weak",
		"role":      "principal",
	})
	require.Equal(t, http.StatusUnprocessableEntity, recorder.Code)

	var failed FailedValidationResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &failed))
	assert.Len(t, failed.FieldViolations, 4)
}
