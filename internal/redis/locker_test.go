package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFromClient(rdb, zap.NewNop()), mr
}

func TestLockerExclusive(t *testing.T) {
	client, _ := setupTestRedis(t)
	l := NewLocker(client, zap.NewNop())
	ctx := context.Background()

	token, ok, err := l.Acquire(ctx, "assignment:1:h_minus_3", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = l.Acquire(ctx, "assignment:1:h_minus_3", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = l.Acquire(ctx, "schedule:1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "different keys are independent")

	require.NoError(t, l.Release(ctx, "assignment:1:h_minus_3", token))
	_, ok, err = l.Acquire(ctx, "assignment:1:h_minus_3", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockerExpiryAndForeignRelease(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewLocker(client, zap.NewNop())
	ctx := context.Background()

	first, ok, err := l.Acquire(ctx, "schedule:9", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Second)

	second, ok, err := l.Acquire(ctx, "schedule:9", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// The stale holder must not drop the new owner's lock.
	require.NoError(t, l.Release(ctx, "schedule:9", first))
	got, err := mr.Get(lockPrefix + "schedule:9")
	require.NoError(t, err)
	assert.Equal(t, second, got)
}

func TestClientPing(t *testing.T) {
	client, mr := setupTestRedis(t)
	require.NoError(t, client.Ping(context.Background()))

	c, err := New(context.Background(), Config{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Close())
}
