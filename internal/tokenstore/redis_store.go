package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "refresh_token"

// RedisStore keeps refresh token IDs in redis with a TTL equal to the token lifetime.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

type RedisStoreOption func(*RedisStore)

// WithPrefix configures the key prefix, e.g. "refresh_token".
func WithPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

func NewRedisStore(redis *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		redis:  redis,
		prefix: defaultKeyPrefix,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Save(ctx context.Context, tokenID, userID string, ttl time.Duration) error {
	// Example key: refresh_token:7f1c3a8e-...
	if err := s.redis.Set(ctx, s.key(tokenID), userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, tokenID string) (string, error) {
	// GETDEL makes two concurrent refreshes with the same token race for a single winner.
	userID, err := s.redis.GetDel(ctx, s.key(tokenID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrTokenNotFound
		}
		return "", fmt.Errorf("failed to consume refresh token: %w", err)
	}
	return userID, nil
}

func (s *RedisStore) Revoke(ctx context.Context, tokenID string) error {
	if err := s.redis.Del(ctx, s.key(tokenID)).Err(); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *RedisStore) key(tokenID string) string {
	return fmt.Sprintf("%s:%s", s.prefix, tokenID)
}
