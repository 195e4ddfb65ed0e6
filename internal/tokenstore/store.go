package tokenstore

import (
	"context"
	"errors"
	"time"
)

// ErrTokenNotFound means the refresh token was never issued, already used,
// revoked or expired.
var ErrTokenNotFound = errors.New("refresh token not found or already used")

// Store tracks which refresh tokens may still be exchanged. Each token can be
// consumed exactly once; refreshing issues a new one.
type Store interface {
	Save(ctx context.Context, tokenID, userID string, ttl time.Duration) error
	// Consume atomically removes the token and returns its owner.
	Consume(ctx context.Context, tokenID string) (userID string, err error)
	Revoke(ctx context.Context, tokenID string) error
}
