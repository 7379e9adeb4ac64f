package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Läuft nur gegen einen echten Redis (TEST_REDIS_ADDR).
func TestRedisLock(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	lock := NewRedisLock(client, time.Minute)
	name := "test-" + t.Name()

	release, err := lock.Acquire(ctx, name)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx, name)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, release(ctx))

	release, err = lock.Acquire(ctx, name)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
}
