// Package coordination provides the cross-process job lock used by the scheduler.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultLockTTL bounds how long a crashed holder can block a job.
	DefaultLockTTL = 10 * time.Minute

	// KeyPrefix namespaces job lock keys.
	KeyPrefix = "pricetracker:job-lock:"
)

// ErrLockNotHeld is returned when releasing a lock that expired or was taken over.
var ErrLockNotHeld = errors.New("lock not held")

var (
	unlockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// Locker grants exclusive, expiring ownership of a key.
type Locker interface {
	TryLock(ctx context.Context, key string) (Lock, bool, error)
}

// Lock is a held lock. Holders that outlive TTL keep it with Extend.
type Lock interface {
	Unlock(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) error
	TTL() time.Duration
}

// RedisLocker implements Locker with SET NX PX and a per-holder token.
type RedisLocker struct {
	client redis.Cmdable
	ttl    time.Duration
}

var _ Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a RedisLocker. A non-positive ttl uses DefaultLockTTL.
func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisLocker{client: client, ttl: ttl}
}

// TryLock attempts to acquire key without blocking.
func (l *RedisLocker) TryLock(ctx context.Context, key string) (Lock, bool, error) {
	lock := &RedisLock{
		client: l.client,
		key:    KeyPrefix + key,
		token:  uuid.NewString(),
		ttl:    l.ttl,
	}

	ok, err := l.client.SetNX(ctx, lock.key, lock.token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return lock, true, nil
}

// RedisLock is a lock held through RedisLocker.
type RedisLock struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
}

var _ Lock = (*RedisLock)(nil)

// Unlock releases the lock if it is still held by this holder.
func (l *RedisLock) Unlock(ctx context.Context) error {
	result, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend resets the lock TTL if it is still held.
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// TTL returns the expiry the lock was acquired with.
func (l *RedisLock) TTL() time.Duration {
	return l.ttl
}
