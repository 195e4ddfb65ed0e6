// Package realtime keeps the notification stream open for as long as the
// user is signed in.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/katatrina/schoolhub-BE/internal/event"
	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/katatrina/schoolhub-BE/internal/session"
	"github.com/rs/zerolog/log"
)

type State int

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// TokenSource is the part of session.Authority the supervisor needs.
type TokenSource interface {
	AccessToken() (string, bool)
	Refresh(ctx context.Context) (string, error)
}

// Sink receives every notification pushed over the stream. A run pushes
// with the generation the sink reported when the run started, so frames
// from an ended session are refused once the sink has been cleared.
type Sink interface {
	Generation() uint64
	PushFrom(gen uint64, n notification.Notification) error
}

// Supervisor owns the notification stream. It implements session.Listener:
// a started session opens the stream, a refreshed credential is used for
// the next handshake and an ended session closes it.
type Supervisor struct {
	dialer      Dialer
	tokens      TokenSource
	sink        Sink
	backoff     Backoff
	maxAttempts int
	after       func(time.Duration) <-chan time.Time

	onOpen       func()
	onPersistent func(error)

	mu    sync.Mutex
	state State
	// epoch identifies the current run; a stale run goroutine cannot
	// change state once it is bumped.
	epoch  uint64
	cancel context.CancelFunc
	token  string
	rooms  []string
	connID string
}

type Option func(*Supervisor)

func WithBackoff(b Backoff) Option {
	return func(s *Supervisor) {
		s.backoff = b
	}
}

func WithMaxAttempts(n int) Option {
	return func(s *Supervisor) {
		s.maxAttempts = n
	}
}

// WithAfterFunc replaces time.After for backoff waits.
func WithAfterFunc(after func(time.Duration) <-chan time.Time) Option {
	return func(s *Supervisor) {
		s.after = after
	}
}

// OnOpen is called each time the stream reaches Open.
func OnOpen(fn func()) Option {
	return func(s *Supervisor) {
		s.onOpen = fn
	}
}

// OnPersistentDisconnect is called when the supervisor gives up reconnecting.
func OnPersistentDisconnect(fn func(error)) Option {
	return func(s *Supervisor) {
		s.onPersistent = fn
	}
}

func NewSupervisor(dialer Dialer, tokens TokenSource, sink Sink, opts ...Option) *Supervisor {
	s := &Supervisor{
		dialer:      dialer,
		tokens:      tokens,
		sink:        sink,
		backoff:     DefaultBackoff(),
		maxAttempts: DefaultMaxAttempts,
		after:       time.After,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectionID is the server-assigned id of the open connection.
func (s *Supervisor) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// Rooms returns the rooms the server joined the current connection to.
func (s *Supervisor) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.rooms...)
}

func (s *Supervisor) SessionStarted(sess session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		return
	}
	s.startLocked(sess.AccessToken)
}

// CredentialRefreshed swaps the token used by the next handshake. The
// backoff schedule is left alone.
func (s *Supervisor) CredentialRefreshed(sess session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.token = sess.AccessToken
	}
}

func (s *Supervisor) SessionEnded(reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		log.Info().AnErr("reason", reason).Msg("closing notification stream")
	}
	s.stopLocked()
}

// Reconnect restarts a supervisor that gave up, as long as a session is live.
func (s *Supervisor) Reconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		return
	}
	accessToken, ok := s.tokens.AccessToken()
	if !ok {
		return
	}
	s.startLocked(accessToken)
}

// Close stops the stream without touching the session.
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Supervisor) startLocked(accessToken string) {
	s.epoch++
	s.state = StateConnecting
	s.token = accessToken

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx, s.epoch, s.sink.Generation())
}

func (s *Supervisor) stopLocked() {
	s.epoch++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.state = StateClosed
	s.token = ""
	s.rooms = nil
	s.connID = ""
}

func (s *Supervisor) run(ctx context.Context, epoch, gen uint64) {
	failures := 0
	refreshed := false

	for {
		accessToken, ok := s.pendingToken(epoch)
		if !ok {
			return
		}

		var opened bool
		conn, err := s.dialer.Dial(ctx, accessToken)
		if err == nil {
			opened, err = s.serve(ctx, epoch, gen, conn)
		}
		if ctx.Err() != nil {
			return
		}
		if opened {
			failures = 0
			refreshed = false
			if !s.setState(epoch, StateReconnecting) {
				return
			}
		}

		if errors.Is(err, ErrUnauthorized) && !refreshed {
			refreshed = true
			rerr := s.refresh(ctx, epoch)
			if rerr == nil {
				continue
			}
			if ctx.Err() != nil || errors.Is(rerr, session.ErrAuthFailure) {
				// The authority has ended the session and closed us.
				return
			}
		}

		failures++
		if failures > s.maxAttempts {
			s.giveUp(epoch, err)
			return
		}

		delay := s.backoff.Delay(failures - 1)
		if !s.setState(epoch, StateReconnecting) {
			return
		}
		log.Warn().Err(err).Int("attempt", failures).Dur("delay", delay).Msg("notification stream dropped, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-s.after(delay):
		}
	}
}

// serve reads frames until the connection drops. opened reports whether
// the connect frame arrived.
func (s *Supervisor) serve(ctx context.Context, epoch, gen uint64, conn Conn) (bool, error) {
	defer conn.Close()

	opened := false
	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			return opened, err
		}

		switch frame.Event {
		case event.TypeConnect:
			var data event.ConnectData
			if err := json.Unmarshal(frame.Data, &data); err != nil {
				return opened, fmt.Errorf("decode connect frame: %w", err)
			}
			if !s.markOpen(epoch, data) {
				return opened, context.Canceled
			}
			opened = true

		case event.TypeNotification:
			var n notification.Notification
			if err := json.Unmarshal(frame.Data, &n); err != nil {
				log.Warn().Err(err).Msg("dropping malformed notification frame")
				continue
			}
			if err := s.sink.PushFrom(gen, n); err != nil {
				log.Debug().Err(err).Str("notification_id", n.ID).Msg("dropped pushed notification")
			}

		default:
			log.Debug().Str("event", frame.Event).Msg("ignoring unknown stream event")
		}
	}
}

// refresh asks for a new access token once per failure streak. A nil
// error means the redial can go ahead right away.
func (s *Supervisor) refresh(ctx context.Context, epoch uint64) error {
	accessToken, err := s.tokens.Refresh(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to refresh stream credential")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return context.Canceled
	}
	s.token = accessToken
	return nil
}

func (s *Supervisor) pendingToken(epoch uint64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return "", false
	}
	return s.token, true
}

func (s *Supervisor) setState(epoch uint64, state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return false
	}
	s.state = state
	return true
}

func (s *Supervisor) markOpen(epoch uint64, data event.ConnectData) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	s.state = StateOpen
	s.rooms = data.Rooms
	s.connID = data.ConnectionID
	s.mu.Unlock()

	log.Info().Str("connection_id", data.ConnectionID).Strs("rooms", data.Rooms).Msg("notification stream open")
	if s.onOpen != nil {
		s.onOpen()
	}
	return true
}

func (s *Supervisor) giveUp(epoch uint64, lastErr error) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.stopLocked()
	s.mu.Unlock()

	err := fmt.Errorf("%w: %v", ErrPersistentDisconnect, lastErr)
	log.Error().Err(err).Int("attempts", s.maxAttempts).Msg("giving up on notification stream")
	if s.onPersistent != nil {
		s.onPersistent(err)
	}
}
