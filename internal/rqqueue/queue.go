// Package rqqueue implements the queue primitives of spec.md §4.2: push,
// pop, blocking pop, size, and the predicate-driven safe dequeue, all over
// Redis lists and the "queues" registry set.
package rqqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resquego/resque/internal/redisx"
	"github.com/resquego/resque/internal/rqjob"
)

// Queue operates push/pop/blpop/size/dequeue against Redis lists named
// queue:<name> and the "queues" registry set.
type Queue struct {
	redis *redisx.Adapter
}

// New builds a Queue backed by the given adapter.
func New(a *redisx.Adapter) *Queue {
	return &Queue{redis: a}
}

func (q *Queue) listKey(name string) string {
	return q.redis.Key("queue:" + name)
}

func (q *Queue) queuesKey() string {
	return q.redis.Key("queues")
}

// Push appends env to queue name, registering the queue name if it is new.
func (q *Queue) Push(ctx context.Context, name string, env *rqjob.Envelope) error {
	raw, err := env.Encode()
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	listKey := q.listKey(name)
	queuesKey := q.queuesKey()
	return q.redis.Do(ctx, "push", func(c *redis.Client) error {
		pipe := c.Pipeline()
		pipe.SAdd(ctx, queuesKey, name)
		pipe.RPush(ctx, listKey, raw)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Pop removes and decodes the head of queue name. A nil envelope with a nil
// error means the queue was empty (spec.md's "none"/"empty" result). A
// malformed entry is treated the same as empty, per spec.md §7
// (MalformedEnvelope), so a single poison message never blocks the queue.
func (q *Queue) Pop(ctx context.Context, name string) (*rqjob.Envelope, error) {
	listKey := q.listKey(name)
	var raw string
	err := q.redis.Do(ctx, "pop", func(c *redis.Client) error {
		var e error
		raw, e = c.LPop(ctx, listKey).Result()
		if redisx.IsNil(e) {
			raw = ""
			return nil
		}
		return e
	})
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	env, err := rqjob.Decode([]byte(raw))
	if err != nil {
		return nil, nil // malformed envelope: treated as empty, not surfaced
	}
	return env, nil
}

// BLPop blocks for up to timeout across the given queue names (tried in
// order by Redis itself) and returns the queue name and decoded envelope of
// whichever arrives first. A nil envelope with nil error means the timeout
// elapsed with nothing available.
func (q *Queue) BLPop(ctx context.Context, names []string, timeout time.Duration) (string, *rqjob.Envelope, error) {
	keys := make([]string, len(names))
	for i, n := range names {
		keys[i] = q.listKey(n)
	}

	var result []string
	err := q.redis.Do(ctx, "blpop", func(c *redis.Client) error {
		r, e := c.BLPop(ctx, timeout, keys...).Result()
		if redisx.IsNil(e) {
			result = nil
			return nil
		}
		result = r
		return e
	})
	if err != nil {
		return "", nil, err
	}
	if len(result) != 2 {
		return "", nil, nil
	}

	queueName := stripQueuePrefix(q.redis.RemovePrefix(result[0]))
	env, err := rqjob.Decode([]byte(result[1]))
	if err != nil {
		return queueName, nil, nil
	}
	return queueName, env, nil
}

func stripQueuePrefix(s string) string {
	const p = "queue:"
	if len(s) >= len(p) && s[:len(p)] == p {
		return s[len(p):]
	}
	return s
}

// Size returns the number of envelopes queued under name.
func (q *Queue) Size(ctx context.Context, name string) (int64, error) {
	listKey := q.listKey(name)
	var n int64
	err := q.redis.Do(ctx, "llen", func(c *redis.Client) error {
		var e error
		n, e = c.LLen(ctx, listKey).Result()
		return e
	})
	return n, err
}

// Names returns every registered queue name (members of the "queues" set).
// Order is unspecified; callers that need it randomized should shuffle
// themselves (see rqresolver, which does exactly that).
func (q *Queue) Names(ctx context.Context) ([]string, error) {
	key := q.queuesKey()
	var names []string
	err := q.redis.Do(ctx, "smembers", func(c *redis.Client) error {
		var e error
		names, e = c.SMembers(ctx, key).Result()
		return e
	})
	return names, err
}
