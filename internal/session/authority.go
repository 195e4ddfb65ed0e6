package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultRefreshTimeout = 15 * time.Second
	logoutTimeout         = 5 * time.Second
)

// Backend talks to the authentication endpoints. Implementations return
// errors wrapping ErrAuthFailure when the credentials are rejected and
// ErrTransport for everything else.
type Backend interface {
	Login(ctx context.Context, email, password string) (Session, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	Logout(ctx context.Context, refreshToken string) error
}

// refreshCall is one in-flight refresh shared by every caller that asked
// for it. Whoever removes it from Authority.inflight sets the result and
// closes done.
type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// Authority owns the session and is the only writer of the access token.
// Concurrent Refresh calls share a single backend call.
type Authority struct {
	backend        Backend
	refreshTimeout time.Duration

	// notifyMu is held from a state change until its listeners have run,
	// so listeners see transitions in the order they were made. It is
	// always taken before mu.
	notifyMu sync.Mutex

	mu        sync.Mutex
	session   *Session
	epoch     uint64 // bumped on every login and logout
	inflight  *refreshCall
	listeners []Listener
}

type Option func(*Authority)

// WithRefreshTimeout bounds the backend refresh call, which runs detached
// from the callers' contexts.
func WithRefreshTimeout(d time.Duration) Option {
	return func(a *Authority) {
		a.refreshTimeout = d
	}
}

func NewAuthority(backend Backend, opts ...Option) *Authority {
	a := &Authority{
		backend:        backend,
		refreshTimeout: defaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Subscribe registers l for all future transitions.
func (a *Authority) Subscribe(l Listener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// AccessToken returns the current access token, if signed in.
func (a *Authority) AccessToken() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return "", false
	}
	return a.session.AccessToken, true
}

// Session returns a copy of the current session.
func (a *Authority) Session() (Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.session == nil {
		return Session{}, false
	}
	return *a.session, true
}

func (a *Authority) Login(ctx context.Context, email, password string) (Session, error) {
	a.mu.Lock()
	if a.session != nil {
		a.mu.Unlock()
		return Session{}, ErrAlreadyAuthenticated
	}
	epoch := a.epoch
	a.mu.Unlock()

	s, err := a.backend.Login(ctx, email, password)
	if err != nil {
		return Session{}, err
	}

	started := false
	a.transition(func() func(Listener) {
		if a.session != nil || a.epoch != epoch {
			return nil
		}
		a.epoch++
		stored := s
		a.session = &stored
		started = true

		log.Info().Str("user_id", s.UserID).Str("role", string(s.Role)).Msg("session started")
		return func(l Listener) { l.SessionStarted(s) }
	})
	if !started {
		a.revoke(s.RefreshToken)
		return Session{}, ErrAlreadyAuthenticated
	}
	return s, nil
}

// Refresh returns a fresh access token. Callers arriving while a refresh is
// in flight wait for that one instead of starting another. A rejected
// refresh ends the session and every waiter gets ErrSessionExpired.
func (a *Authority) Refresh(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.session == nil {
		a.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	if call := a.inflight; call != nil {
		a.mu.Unlock()
		return wait(ctx, call)
	}
	if a.session.RefreshToken == "" {
		epoch := a.epoch
		a.mu.Unlock()
		return "", a.endWithoutRefreshCredential(epoch)
	}

	call := &refreshCall{done: make(chan struct{})}
	a.inflight = call
	epoch := a.epoch
	refreshToken := a.session.RefreshToken
	a.mu.Unlock()

	go a.runRefresh(call, epoch, refreshToken)
	return wait(ctx, call)
}

func (a *Authority) endWithoutRefreshCredential(epoch uint64) error {
	ended := false
	a.transition(func() func(Listener) {
		if a.epoch != epoch || a.session == nil {
			return nil
		}
		a.endLocked()
		ended = true

		log.Warn().Msg("no refresh credential, ending session")
		return func(l Listener) { l.SessionEnded(ErrNoRefreshCredential) }
	})
	if !ended {
		return ErrNotAuthenticated
	}
	return ErrNoRefreshCredential
}

func (a *Authority) runRefresh(call *refreshCall, epoch uint64, refreshToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), a.refreshTimeout)
	defer cancel()

	s, err := a.backend.Refresh(ctx, refreshToken)

	resolved := false
	a.transition(func() func(Listener) {
		if a.inflight != call || a.epoch != epoch {
			// Logout already resolved the waiters.
			return nil
		}
		a.inflight = nil
		resolved = true

		switch {
		case err == nil:
			stored := s
			a.session = &stored
			call.token = s.AccessToken

			log.Debug().Str("user_id", s.UserID).Msg("access token refreshed")
			return func(l Listener) { l.CredentialRefreshed(s) }

		case errors.Is(err, ErrAuthFailure):
			a.endLocked()
			call.err = fmt.Errorf("%w: %v", ErrSessionExpired, err)

			log.Warn().Err(err).Msg("refresh rejected, ending session")
			return func(l Listener) { l.SessionEnded(ErrSessionExpired) }

		default:
			if !errors.Is(err, ErrTransport) {
				err = fmt.Errorf("%w: %v", ErrTransport, err)
			}
			call.err = err

			log.Warn().Err(err).Msg("refresh failed, keeping session")
			return nil
		}
	})
	if resolved {
		close(call.done)
	}
}

// Logout ends the session. In-flight refresh waiters get ErrSessionEnded,
// listeners are told synchronously, then the refresh token is revoked
// upstream on a best-effort basis. Logging out twice is a no-op.
func (a *Authority) Logout(ctx context.Context) error {
	var refreshToken, userID string
	ended := false
	a.transition(func() func(Listener) {
		if a.session == nil {
			return nil
		}
		refreshToken = a.session.RefreshToken
		userID = a.session.UserID
		if call := a.inflight; call != nil {
			call.err = ErrSessionEnded
			close(call.done)
		}
		a.endLocked()
		ended = true

		log.Info().Str("user_id", userID).Msg("session ended by logout")
		return func(l Listener) { l.SessionEnded(ErrLoggedOut) }
	})
	if !ended {
		return nil
	}

	if refreshToken != "" {
		revokeCtx, cancel := context.WithTimeout(ctx, logoutTimeout)
		defer cancel()
		if err := a.backend.Logout(revokeCtx, refreshToken); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("failed to revoke refresh token")
		}
	}
	return nil
}

// transition applies change under mu and then hands the returned
// notification to every listener while notifyMu is still held. A nil
// notification means nothing changed.
func (a *Authority) transition(change func() func(Listener)) {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()

	a.mu.Lock()
	notify := change()
	listeners := make([]Listener, len(a.listeners))
	copy(listeners, a.listeners)
	a.mu.Unlock()

	if notify == nil {
		return
	}
	for _, l := range listeners {
		notify(l)
	}
}

// endLocked clears the session and detaches any in-flight refresh.
func (a *Authority) endLocked() {
	a.session = nil
	a.inflight = nil
	a.epoch++
}

func (a *Authority) revoke(refreshToken string) {
	ctx, cancel := context.WithTimeout(context.Background(), logoutTimeout)
	defer cancel()
	if err := a.backend.Logout(ctx, refreshToken); err != nil {
		log.Warn().Err(err).Msg("failed to revoke duplicate session")
	}
}

func wait(ctx context.Context, call *refreshCall) (string, error) {
	select {
	case <-call.done:
		return call.token, call.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
