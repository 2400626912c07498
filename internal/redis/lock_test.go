package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestWithLockRunsAndReleases(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisLocker(client, time.Minute)

	ran := false
	err := locker.WithLock(context.Background(), "reminders:2024-01-11", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:reminders:2024-01-11"))
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:reminders:2024-01-11"))
}

func TestWithLockIsExclusive(t *testing.T) {
	_, client := newTestClient(t)
	locker := NewRedisLocker(client, time.Minute)

	err := locker.WithLock(context.Background(), "job", func(ctx context.Context) error {
		inner := locker.WithLock(ctx, "job", func(context.Context) error {
			t.Fatal("nested holder must not run")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)

	// Free again once the first holder is done.
	require.NoError(t, locker.WithLock(context.Background(), "job", func(context.Context) error { return nil }))
}

func TestWithLockReturnsJobError(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisLocker(client, time.Minute)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "job", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:job"))
}

func TestReleaseKeepsForeignLock(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisLocker(client, time.Minute)

	err := locker.WithLock(context.Background(), "job", func(context.Context) error {
		// Simulate expiry and takeover by another worker.
		require.NoError(t, mr.Set("lock:job", "someone-else"))
		return nil
	})
	require.NoError(t, err)

	got, err := mr.Get("lock:job")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestNewRedisClientPingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), Options{Addr: addr})
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), Options{Addr: mr.Addr()})
	require.NoError(t, err)
	assert.NoError(t, client.Close())
}

func TestAcquireAndRelease(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisLocker(client, time.Minute)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "refresh")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("lock:refresh"))

	_, err = locker.Acquire(ctx, "refresh")
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("lock:refresh"))

	// Releasing twice is harmless.
	require.NoError(t, lease.Release(ctx))
}
