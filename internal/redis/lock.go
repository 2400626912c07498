package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockNotAcquired = errors.New("lock held by another worker")

// Locker guards jobs that must run on one worker instance at a time.
type Locker interface {
	WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// Lease is a held lock. Only the holder's token can release it.
type Lease struct {
	key    string
	token  string
	ttl    time.Duration
	client redis.UniversalClient
}

// RedisLocker implements Locker with SET NX leases keyed "lock:<name>".
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func lockKey(name string) string {
	return "lock:" + name
}

// Acquire takes the lease for name or returns ErrLockNotAcquired.
func (l *RedisLocker) Acquire(ctx context.Context, name string) (*Lease, error) {
	lease := &Lease{
		key:    lockKey(name),
		token:  uuid.NewString(),
		ttl:    l.ttl,
		client: l.client,
	}

	ok, err := l.client.SetNX(ctx, lease.key, lease.token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}
	return lease, nil
}

// WithLock runs fn while holding the lease for name. fn gets a context bounded
// by the lease ttl so work stops before the lock can expire under it.
func (l *RedisLocker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	lease, err := l.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		_ = lease.Release(context.WithoutCancel(ctx))
	}()

	runCtx, cancel := context.WithTimeout(ctx, lease.ttl)
	defer cancel()

	return fn(runCtx)
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release deletes the key only if it still holds this lease's token, so an
// expired lease never frees a lock another worker has since taken.
func (le *Lease) Release(ctx context.Context) error {
	if err := unlockScript.Run(ctx, le.client, []string{le.key}, le.token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
