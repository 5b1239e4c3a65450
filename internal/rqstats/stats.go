// Package rqstats implements the integer counters Resque keeps at
// stat:<name>, incremented and decremented with INCRBY/DECRBY.
package rqstats

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/resquego/resque/internal/redisx"
)

// Stats reads and writes counters under <prefix>stat:<name>.
type Stats struct {
	redis *redisx.Adapter
}

// New builds a Stats backed by the given adapter.
func New(a *redisx.Adapter) *Stats {
	return &Stats{redis: a}
}

func (s *Stats) key(name string) string {
	return s.redis.Key("stat:" + name)
}

// Increment adds 1 to the named counter.
func (s *Stats) Increment(ctx context.Context, name string) error {
	return s.IncrementBy(ctx, name, 1)
}

// Decrement subtracts 1 from the named counter.
func (s *Stats) Decrement(ctx context.Context, name string) error {
	return s.IncrementBy(ctx, name, -1)
}

// IncrementBy adds delta (may be negative) to the named counter.
func (s *Stats) IncrementBy(ctx context.Context, name string, delta int64) error {
	key := s.key(name)
	return s.redis.Do(ctx, "incrby", func(c *redis.Client) error {
		return c.IncrBy(ctx, key, delta).Err()
	})
}

// Get returns the current value of the named counter, or 0 if unset.
func (s *Stats) Get(ctx context.Context, name string) (int64, error) {
	key := s.key(name)
	var value int64
	err := s.redis.Do(ctx, "get", func(c *redis.Client) error {
		raw, e := c.Get(ctx, key).Result()
		if redisx.IsNil(e) {
			value = 0
			return nil
		}
		if e != nil {
			return e
		}
		value, e = strconv.ParseInt(raw, 10, 64)
		return e
	})
	return value, err
}

// Clear deletes the named counter entirely.
func (s *Stats) Clear(ctx context.Context, name string) error {
	key := s.key(name)
	return s.redis.Do(ctx, "del", func(c *redis.Client) error {
		return c.Del(ctx, key).Err()
	})
}
