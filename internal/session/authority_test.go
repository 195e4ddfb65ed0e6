package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/katatrina/schoolhub-BE/internal/notification"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	refreshCalls atomic.Int32
	logoutCalls  atomic.Int32

	// release gates Refresh when non-nil.
	release    chan struct{}
	refreshErr error
	noRefresh  bool
}

func (b *fakeBackend) Login(ctx context.Context, email, password string) (Session, error) {
	if password != "secret" {
		return Session{}, ErrInvalidCredentials
	}
	s := Session{
		UserID:       "s-1",
		Role:         notification.RoleStudent,
		Email:        email,
		AccessToken:  "access-0",
		RefreshToken: "refresh-0",
	}
	if b.noRefresh {
		s.RefreshToken = ""
	}
	return s, nil
}

func (b *fakeBackend) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	n := b.refreshCalls.Add(1)
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return Session{}, ctx.Err()
		}
	}
	if b.refreshErr != nil {
		return Session{}, b.refreshErr
	}
	return Session{
		UserID:       "s-1",
		Role:         notification.RoleStudent,
		AccessToken:  fmt.Sprintf("access-%d", n),
		RefreshToken: fmt.Sprintf("refresh-%d", n),
	}, nil
}

func (b *fakeBackend) Logout(ctx context.Context, refreshToken string) error {
	b.logoutCalls.Add(1)
	return nil
}

type recordingListener struct {
	mu        sync.Mutex
	started   int
	refreshed []string
	ended     []error
}

func (l *recordingListener) SessionStarted(s Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.started++
}

func (l *recordingListener) CredentialRefreshed(s Session) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshed = append(l.refreshed, s.AccessToken)
}

func (l *recordingListener) SessionEnded(reason error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ended = append(l.ended, reason)
}

func (l *recordingListener) snapshot() (int, []string, []error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started, append([]string(nil), l.refreshed...), append([]error(nil), l.ended...)
}

func newSignedIn(t *testing.T, backend *fakeBackend) (*Authority, *recordingListener) {
	t.Helper()
	authority := NewAuthority(backend)
	listener := &recordingListener{}
	authority.Subscribe(listener)

	_, err := authority.Login(context.Background(), "s1@school.edu", "secret")
	require.NoError(t, err)
	return authority, listener
}

// refreshConcurrently starts n Refresh calls and waits until the backend
// has been reached before releasing it.
func refreshConcurrently(t *testing.T, authority *Authority, backend *fakeBackend, n int) ([]string, []error) {
	t.Helper()

	tokens := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = authority.Refresh(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return backend.refreshCalls.Load() >= 1 }, time.Second, time.Millisecond)
	// Give the remaining callers time to join the in-flight call.
	time.Sleep(20 * time.Millisecond)
	close(backend.release)
	wg.Wait()
	return tokens, errs
}

func TestRefreshIsSingleFlight(t *testing.T) {
	backend := &fakeBackend{release: make(chan struct{})}
	authority, listener := newSignedIn(t, backend)

	tokens, errs := refreshConcurrently(t, authority, backend, 50)

	assert.EqualValues(t, 1, backend.refreshCalls.Load())
	for i := range tokens {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-1", tokens[i])
	}

	current, ok := authority.AccessToken()
	require.True(t, ok)
	assert.Equal(t, "access-1", current)

	_, refreshed, ended := listener.snapshot()
	assert.Equal(t, []string{"access-1"}, refreshed)
	assert.Empty(t, ended)

	// A later refresh starts a new call with the rotated refresh token.
	backend.release = nil
	token, err := authority.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-2", token)
}

func TestRejectedRefreshForcesLogout(t *testing.T) {
	backend := &fakeBackend{release: make(chan struct{}), refreshErr: ErrSessionExpired}
	authority, listener := newSignedIn(t, backend)

	_, errs := refreshConcurrently(t, authority, backend, 10)

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSessionExpired)
		assert.ErrorIs(t, err, ErrAuthFailure)
	}
	_, ok := authority.AccessToken()
	assert.False(t, ok)

	_, _, ended := listener.snapshot()
	require.Len(t, ended, 1)
	assert.ErrorIs(t, ended[0], ErrSessionExpired)

	_, err := authority.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestTransportFailureKeepsSession(t *testing.T) {
	backend := &fakeBackend{refreshErr: errors.New("connection reset")}
	authority, listener := newSignedIn(t, backend)

	_, err := authority.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
	assert.NotErrorIs(t, err, ErrAuthFailure)

	token, ok := authority.AccessToken()
	require.True(t, ok)
	assert.Equal(t, "access-0", token)

	_, _, ended := listener.snapshot()
	assert.Empty(t, ended)
}

func TestLogoutCancelsInFlightRefreshEffects(t *testing.T) {
	backend := &fakeBackend{release: make(chan struct{})}
	authority, listener := newSignedIn(t, backend)

	result := make(chan error, 1)
	go func() {
		_, err := authority.Refresh(context.Background())
		result <- err
	}()
	require.Eventually(t, func() bool { return backend.refreshCalls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, authority.Logout(context.Background()))

	select {
	case err := <-result:
		assert.ErrorIs(t, err, ErrSessionEnded)
	case <-time.After(time.Second):
		t.Fatal("refresh waiter was not released by logout")
	}

	// The refresh completing afterwards must not resurrect the session.
	close(backend.release)
	time.Sleep(20 * time.Millisecond)

	_, ok := authority.AccessToken()
	assert.False(t, ok)

	_, refreshed, ended := listener.snapshot()
	assert.Empty(t, refreshed)
	require.Len(t, ended, 1)
	assert.ErrorIs(t, ended[0], ErrLoggedOut)
	assert.EqualValues(t, 1, backend.logoutCalls.Load())

	require.NoError(t, authority.Logout(context.Background()))
	assert.EqualValues(t, 1, backend.logoutCalls.Load())
}

func TestRefreshWithoutRefreshCredential(t *testing.T) {
	backend := &fakeBackend{noRefresh: true}
	authority, listener := newSignedIn(t, backend)

	_, err := authority.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrNoRefreshCredential)
	assert.ErrorIs(t, err, ErrAuthFailure)
	assert.Zero(t, backend.refreshCalls.Load())

	_, _, ended := listener.snapshot()
	require.Len(t, ended, 1)
	assert.ErrorIs(t, ended[0], ErrNoRefreshCredential)
}

// waitingContext reports when a caller starts waiting on it.
type waitingContext struct {
	context.Context
	once    sync.Once
	waiting chan struct{}
}

func newWaitingContext() *waitingContext {
	return &waitingContext{Context: context.Background(), waiting: make(chan struct{})}
}

func (c *waitingContext) Done() <-chan struct{} {
	c.once.Do(func() { close(c.waiting) })
	return c.Context.Done()
}

func TestCallerCancellationDoesNotAbortSharedRefresh(t *testing.T) {
	backend := &fakeBackend{release: make(chan struct{})}
	authority, _ := newSignedIn(t, backend)

	impatient, cancel := context.WithCancel(context.Background())
	impatientErr := make(chan error, 1)
	go func() {
		_, err := authority.Refresh(impatient)
		impatientErr <- err
	}()
	require.Eventually(t, func() bool { return backend.refreshCalls.Load() == 1 }, time.Second, time.Millisecond)

	patientCtx := newWaitingContext()
	patient := make(chan string, 1)
	go func() {
		token, _ := authority.Refresh(patientCtx)
		patient <- token
	}()
	select {
	case <-patientCtx.waiting:
	case <-time.After(time.Second):
		t.Fatal("patient caller never joined the refresh")
	}

	cancel()
	assert.ErrorIs(t, <-impatientErr, context.Canceled)

	close(backend.release)
	select {
	case token := <-patient:
		assert.Equal(t, "access-1", token)
	case <-time.After(time.Second):
		t.Fatal("patient caller never got a token")
	}
	assert.EqualValues(t, 1, backend.refreshCalls.Load())
}

// orderListener records transitions and parks inside the first
// SessionStarted until released.
type orderListener struct {
	mu      sync.Mutex
	events  []string
	entered chan struct{}
	release chan struct{}
}

func (l *orderListener) record(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *orderListener) SessionStarted(s Session) {
	close(l.entered)
	<-l.release
	l.record("started")
}

func (l *orderListener) CredentialRefreshed(s Session) { l.record("refreshed") }
func (l *orderListener) SessionEnded(reason error) { l.record("ended") }

func (l *orderListener) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func TestLogoutIsDeliveredAfterSessionStarted(t *testing.T) {
	authority := NewAuthority(&fakeBackend{})
	listener := &orderListener{entered: make(chan struct{}), release: make(chan struct{})}
	authority.Subscribe(listener)

	loggedIn := make(chan error, 1)
	go func() {
		_, err := authority.Login(context.Background(), "s1@school.edu", "secret")
		loggedIn <- err
	}()
	<-listener.entered

	loggedOut := make(chan error, 1)
	go func() { loggedOut <- authority.Logout(context.Background()) }()

	select {
	case <-loggedOut:
		t.Fatal("logout was announced while login was still being announced")
	case <-time.After(50 * time.Millisecond):
	}

	close(listener.release)
	require.NoError(t, <-loggedIn)
	require.NoError(t, <-loggedOut)
	assert.Equal(t, []string{"started", "ended"}, listener.snapshot())

	_, ok := authority.Session()
	assert.False(t, ok)
}

func TestLogin(t *testing.T) {
	backend := &fakeBackend{}
	authority, listener := newSignedIn(t, backend)

	s, ok := authority.Session()
	require.True(t, ok)
	assert.Equal(t, "s-1", s.UserID)

	_, err := authority.Login(context.Background(), "s1@school.edu", "secret")
	assert.ErrorIs(t, err, ErrAlreadyAuthenticated)

	started, _, _ := listener.snapshot()
	assert.Equal(t, 1, started)

	require.NoError(t, authority.Logout(context.Background()))
	_, err = authority.Login(context.Background(), "s1@school.edu", "wrong")
	assert.ErrorIs(t, err, ErrAuthFailure)
}
