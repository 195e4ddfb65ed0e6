package session

import (
	"errors"
	"fmt"
)

// ErrAuthFailure is the root of every error that means the user has to sign
// in again. Check with errors.Is.
var ErrAuthFailure = errors.New("authentication failure")

var (
	ErrSessionExpired      = fmt.Errorf("%w: session expired", ErrAuthFailure)
	ErrNoRefreshCredential = fmt.Errorf("%w: no refresh credential", ErrAuthFailure)
	ErrNotAuthenticated    = fmt.Errorf("%w: not authenticated", ErrAuthFailure)
	ErrSessionEnded        = fmt.Errorf("%w: session ended", ErrAuthFailure)
	ErrInvalidCredentials  = fmt.Errorf("%w: invalid credentials", ErrAuthFailure)
)

var (
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	// ErrTransport means the backend could not be reached or answered with a
	// server error. The session is left untouched.
	ErrTransport = errors.New("transport failure")
	// ErrLoggedOut is the reason passed to SessionEnded after Logout.
	ErrLoggedOut = errors.New("logged out")
)
