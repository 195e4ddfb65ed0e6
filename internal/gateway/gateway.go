// Package gateway sends authenticated API requests on behalf of the session
// and recovers from an expired access token by refreshing once and
// replaying the request.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/katatrina/schoolhub-BE/internal/session"
	"github.com/rs/zerolog/log"
	"resty.dev/v3"
)

// Authority is the part of session.Authority the gateway needs.
type Authority interface {
	AccessToken() (string, bool)
	Refresh(ctx context.Context) (string, error)
}

// Request describes one API call. Path is relative to the client base URL.
// When Result is non-nil a 2xx body is decoded into it.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	Result any
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Unwrap makes a 401 match session.ErrAuthFailure.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return session.ErrAuthFailure
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

// phase is where a single request stands in its retry budget. Returning
// from Do is the done phase.
type phase int

const (
	phaseFresh phase = iota
	phaseRetried
)

type Gateway struct {
	client    *resty.Client
	authority Authority
}

func New(client *resty.Client, authority Authority) *Gateway {
	return &Gateway{
		client:    client,
		authority: authority,
	}
}

// Do sends req with the current access token. A 401 on the first attempt
// triggers exactly one refresh and one replay; a 401 on the replay is
// returned as an *APIError.
func (g *Gateway) Do(ctx context.Context, req Request) error {
	accessToken, ok := g.authority.AccessToken()
	if !ok {
		return session.ErrNotAuthenticated
	}

	for p := phaseFresh; ; {
		resp, err := g.send(ctx, req, accessToken)
		if err != nil {
			return fmt.Errorf("%w: %s %s: %v", session.ErrTransport, req.Method, req.Path, err)
		}

		if resp.StatusCode() != http.StatusUnauthorized || p == phaseRetried {
			return responseError(resp)
		}
		p = phaseRetried

		// Another request may have refreshed while this one was in flight.
		current, ok := g.authority.AccessToken()
		if !ok {
			return session.ErrNotAuthenticated
		}
		if current != accessToken {
			accessToken = current
			continue
		}

		log.Debug().Str("method", req.Method).Str("path", req.Path).Msg("access token rejected, refreshing")
		accessToken, err = g.authority.Refresh(ctx)
		if err != nil {
			return err
		}
	}
}

func (g *Gateway) send(ctx context.Context, req Request, accessToken string) (*resty.Response, error) {
	r := g.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetError(&errorBody{})
	if req.Query != nil {
		r.SetQueryParamsFromValues(req.Query)
	}
	if req.Body != nil {
		r.SetBody(req.Body)
	}
	if req.Result != nil {
		r.SetResult(req.Result)
	}
	return r.Execute(req.Method, req.Path)
}

func responseError(resp *resty.Response) error {
	if !resp.IsError() {
		return nil
	}

	message := resp.Status()
	if e, ok := resp.Error().(*errorBody); ok && e.Error != "" {
		message = e.Error
	}
	return &APIError{StatusCode: resp.StatusCode(), Message: message}
}

func (g *Gateway) Get(ctx context.Context, path string, query url.Values, result any) error {
	return g.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query, Result: result})
}

func (g *Gateway) Post(ctx context.Context, path string, body, result any) error {
	return g.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body, Result: result})
}

func (g *Gateway) Put(ctx context.Context, path string, body, result any) error {
	return g.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body, Result: result})
}

func (g *Gateway) Delete(ctx context.Context, path string) error {
	return g.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}
