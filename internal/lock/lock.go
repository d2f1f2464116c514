// Package lock provides a Redis-backed mutual exclusion for collection runs
// so that only one collector daemon works on a given day.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld is returned when another holder owns the lock
var ErrLockHeld = errors.New("lock held by another process")

// releaseScript deletes the key only if it still carries our token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Client is the subset of the Redis client the lock needs
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// Locker hands out named locks with a fixed TTL
type Locker struct {
	client Client
	ttl    time.Duration
}

// NewLocker creates a locker
func NewLocker(client Client, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Lock is one acquired lock
type Lock struct {
	client Client
	key    string
	token  string
}

// Acquire takes the lock for name or returns ErrLockHeld
func (l *Locker) Acquire(ctx context.Context, name string) (*Lock, error) {
	key := "lock:" + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, name)
	}

	return &Lock{client: l.client, key: key, token: token}, nil
}

// Release frees the lock if it is still ours. Releasing an expired or
// stolen lock is a no-op.
func (lk *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lk.key, err)
	}
	return nil
}

// Key returns the Redis key guarding the lock
func (lk *Lock) Key() string {
	return lk.key
}

// Do runs fn while holding the lock for name. The lock is released even when
// fn fails.
func (l *Locker) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	lk, err := l.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer lk.Release(context.WithoutCancel(ctx))

	return fn(ctx)
}
