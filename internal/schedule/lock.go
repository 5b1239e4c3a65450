package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/resquego/resque/internal/redisx"
)

// DistributedLock is a Redis-based distributed lock: only one scheduler
// instance executes a given named schedule at a time.
type DistributedLock struct {
	redis *redisx.Adapter
	key   string
	token string
	ttl   time.Duration
}

// AcquireLock attempts to acquire the lock for key, returning nil (no
// error) if another instance already holds it.
func AcquireLock(ctx context.Context, a *redisx.Adapter, key string, ttl time.Duration) (*DistributedLock, error) {
	token := uuid.New().String()
	fullKey := a.Key(key)

	var acquired bool
	err := a.Do(ctx, "lock.acquire", func(c *redis.Client) error {
		var e error
		acquired, e = c.SetNX(ctx, fullKey, token, ttl).Result()
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		return nil, nil
	}

	return &DistributedLock{redis: a, key: fullKey, token: token, ttl: ttl}, nil
}

// Release deletes the lock, but only if this instance still owns it
// (check-and-delete via a Lua script for atomicity).
func (l *DistributedLock) Release(ctx context.Context) error {
	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	return l.redis.Do(ctx, "lock.release", func(c *redis.Client) error {
		_, err := c.Eval(ctx, script, []string{l.key}, l.token).Result()
		return err
	})
}

// Extend renews the lock's TTL, returning an error if this instance no
// longer owns it.
func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`
	var result interface{}
	err := l.redis.Do(ctx, "lock.extend", func(c *redis.Client) error {
		var e error
		result, e = c.Eval(ctx, script, []string{l.key}, l.token, ttl.Milliseconds()).Result()
		return e
	})
	if err != nil {
		return err
	}
	if result == int64(0) {
		return fmt.Errorf("lock no longer owned by this instance")
	}
	l.ttl = ttl
	return nil
}

// Key returns the fully-namespaced Redis key for this lock.
func (l *DistributedLock) Key() string { return l.key }

// Token returns the lock's ownership token.
func (l *DistributedLock) Token() string { return l.token }

// TTL returns the lock's current time-to-live.
func (l *DistributedLock) TTL() time.Duration { return l.ttl }
