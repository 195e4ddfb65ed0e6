package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/katatrina/schoolhub-BE/internal/notification"
	"resty.dev/v3"
)

type userResponse struct {
	ID       string            `json:"id"`
	FullName string            `json:"full_name"`
	Email    string            `json:"email"`
	Role     notification.Role `json:"role"`
}

type authResponse struct {
	User                  userResponse `json:"user"`
	AccessToken           string       `json:"access_token"`
	AccessTokenExpiresAt  time.Time    `json:"access_token_expires_at"`
	RefreshToken          string       `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time    `json:"refresh_token_expires_at"`
}

func (r *authResponse) session() Session {
	return Session{
		UserID:           r.User.ID,
		Role:             r.User.Role,
		FullName:         r.User.FullName,
		Email:            r.User.Email,
		AccessToken:      r.AccessToken,
		RefreshToken:     r.RefreshToken,
		AccessExpiresAt:  r.AccessTokenExpiresAt,
		RefreshExpiresAt: r.RefreshTokenExpiresAt,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// HTTPBackend calls the /auth endpoints. The client must have its base URL
// set to the API root (e.g. http://host/v1).
type HTTPBackend struct {
	client *resty.Client
}

func NewHTTPBackend(client *resty.Client) *HTTPBackend {
	return &HTTPBackend{client: client}
}

func (b *HTTPBackend) Login(ctx context.Context, email, password string) (Session, error) {
	body := map[string]string{"email": email, "password": password}
	return b.exchange(ctx, "/auth/login", body, ErrInvalidCredentials)
}

func (b *HTTPBackend) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	return b.exchange(ctx, "/auth/refresh", body, ErrSessionExpired)
}

func (b *HTTPBackend) Logout(ctx context.Context, refreshToken string) error {
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetError(&errorBody{}).
		Post("/auth/logout")
	if err != nil {
		return fmt.Errorf("%w: logout: %v", ErrTransport, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: logout: %s", ErrTransport, resp.Status())
	}
	return nil
}

// exchange posts body and turns a rejection (401, 403, 404) into rejected.
func (b *HTTPBackend) exchange(ctx context.Context, path string, body any, rejected error) (Session, error) {
	result := &authResponse{}
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(&errorBody{}).
		Post(path)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %s: %v", ErrTransport, path, err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusOK:
		return result.session(), nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden || code == http.StatusNotFound:
		return Session{}, fmt.Errorf("%w: %s", rejected, errorMessage(resp))
	default:
		return Session{}, fmt.Errorf("%w: %s: %s", ErrTransport, path, errorMessage(resp))
	}
}

func errorMessage(resp *resty.Response) string {
	if e, ok := resp.Error().(*errorBody); ok && e.Error != "" {
		return e.Error
	}
	return resp.Status()
}
