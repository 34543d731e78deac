package distlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisLock_AcquireRelease(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "campaign:send:abc", time.Minute)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second instance for the same key must not get the lock.
	l2 := NewRedisLock(client, "campaign:send:abc", time.Minute)
	ok, err = l2.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Release(ctx))

	ok, err = l2.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ReleaseNotOwned(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "campaign:send:xyz", time.Minute)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// A different instance never acquired, so releasing reports ErrNotHeld
	// and leaves the owner's lock intact.
	stranger := NewRedisLock(client, "campaign:send:xyz", time.Minute)
	err = stranger.Release(ctx)
	assert.ErrorIs(t, err, ErrNotHeld)

	ok, err = stranger.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLock_Extend(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "campaign:send:extend", time.Minute)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Extend(ctx, 5*time.Minute))

	require.NoError(t, l.Release(ctx))
	assert.ErrorIs(t, l.Extend(ctx, time.Minute), ErrNotHeld)
}

func TestDifferentKeysIndependent(t *testing.T) {
	client := newTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "campaign:send:a", time.Minute)
	b := NewRedisLock(client, "campaign:send:b", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
