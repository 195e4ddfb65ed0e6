package session

import (
	"time"

	"github.com/katatrina/schoolhub-BE/internal/notification"
)

// Session is the signed-in state of one user. It is owned by Authority and
// handed out by value.
type Session struct {
	UserID           string
	Role             notification.Role
	FullName         string
	Email            string
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Listener observes session transitions. Callbacks run synchronously on the
// goroutine that caused the transition, one transition at a time and in
// order. They must not log in or out themselves.
type Listener interface {
	SessionStarted(s Session)
	CredentialRefreshed(s Session)
	SessionEnded(reason error)
}

// ListenerFuncs adapts plain functions to Listener. Nil fields are skipped.
type ListenerFuncs struct {
	OnStarted   func(s Session)
	OnRefreshed func(s Session)
	OnEnded     func(reason error)
}

func (l ListenerFuncs) SessionStarted(s Session) {
	if l.OnStarted != nil {
		l.OnStarted(s)
	}
}

func (l ListenerFuncs) CredentialRefreshed(s Session) {
	if l.OnRefreshed != nil {
		l.OnRefreshed(s)
	}
}

func (l ListenerFuncs) SessionEnded(reason error) {
	if l.OnEnded != nil {
		l.OnEnded(reason)
	}
}
