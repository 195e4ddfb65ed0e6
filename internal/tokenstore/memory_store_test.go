package tokenstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreConsumeOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Save(ctx, "t1", "user-1", time.Hour))

	userID, err := store.Consume(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	_, err = store.Consume(ctx, "t1")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryStoreConcurrentConsumeHasOneWinner(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Save(ctx, "t1", "user-1", time.Hour))

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, "t1"); err == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
}

func TestMemoryStoreExpiryAndRevoke(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStore()
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "expired", "user-1", time.Minute))
	require.NoError(t, store.Save(ctx, "revoked", "user-1", time.Minute))

	now = now.Add(2 * time.Minute)
	_, err := store.Consume(ctx, "expired")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	require.NoError(t, store.Revoke(ctx, "revoked"))
	assert.Equal(t, 0, store.Len())
}
