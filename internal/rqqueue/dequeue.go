package rqqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resquego/resque/internal/redisx"
	"github.com/resquego/resque/internal/rqjob"
)

// Predicate matches a dequeued envelope for the safe-dequeue algorithm in
// spec.md §4.2. Exactly one of the three shapes applies:
//
//   - Class only ("bare class name"): matches any envelope of that class.
//   - Class + ID ({class: id}): matches class and envelope id.
//   - Class + Args (({class: {k:v,...}}): matches class, and every key in
//     Args must appear with the same value in the envelope's first
//     positional argument (a superset match, not an equality match).
type Predicate struct {
	Class string
	ID    string
	Args  map[string]interface{}
}

// Matches reports whether p matches env.
func (p Predicate) Matches(env *rqjob.Envelope) bool {
	if env.Class != p.Class {
		return false
	}
	if p.ID != "" {
		return env.ID == p.ID
	}
	if len(p.Args) == 0 {
		return true
	}
	arg, ok := env.Argument()
	if !ok {
		return false
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(arg, &fields); err != nil {
		return false
	}
	for k, want := range p.Args {
		got, present := fields[k]
		if !present {
			return false
		}
		wantJSON, _ := json.Marshal(want)
		gotJSON, _ := json.Marshal(got)
		if string(wantJSON) != string(gotJSON) {
			return false
		}
	}
	return true
}

func anyMatches(predicates []Predicate, env *rqjob.Envelope) bool {
	for _, p := range predicates {
		if p.Matches(env) {
			return true
		}
	}
	return false
}

// Dequeue removes matching envelopes from queue name. With no predicates it
// drops the whole queue (recording and returning its prior size). With
// predicates, it runs the safe-dequeue algorithm: atomically shuffle every
// envelope through a per-attempt temp list, counting and discarding matches
// while requeueing the rest, then drain the requeue list back onto the
// source list in its original relative order. workerID identifies the
// caller performing the dequeue and is folded into the temp key so two
// callers racing on the same queue in the same nanosecond never collide;
// pass "" if the caller has no worker identity (e.g. an operator CLI run).
func (q *Queue) Dequeue(ctx context.Context, name string, predicates []Predicate, workerID string) (int64, error) {
	if len(predicates) == 0 {
		return q.dequeueAll(ctx, name)
	}
	return q.safeDequeue(ctx, name, predicates, workerID)
}

func (q *Queue) dequeueAll(ctx context.Context, name string) (int64, error) {
	size, err := q.Size(ctx, name)
	if err != nil {
		return 0, err
	}
	listKey := q.listKey(name)
	err = q.redis.Do(ctx, "dequeue.all", func(c *redis.Client) error {
		return c.Del(ctx, listKey).Err()
	})
	if err != nil {
		return 0, err
	}
	return size, nil
}

func (q *Queue) safeDequeue(ctx context.Context, name string, predicates []Predicate, workerID string) (int64, error) {
	listKey := q.listKey(name)
	attempt := time.Now().UnixNano()
	if workerID == "" {
		workerID = "-"
	}
	tempKey := fmt.Sprintf("%s:temp:%d-%s", listKey, attempt, workerID)
	requeueKey := fmt.Sprintf("%s:temp:%d-%s:requeue", listKey, attempt, workerID)

	defer func() {
		_ = q.redis.Do(context.Background(), "dequeue.cleanup", func(c *redis.Client) error {
			pipe := c.Pipeline()
			pipe.Del(ctx, tempKey)
			pipe.Del(ctx, requeueKey)
			_, e := pipe.Exec(ctx)
			return e
		})
	}()

	var removed int64
	for {
		var raw string
		err := q.redis.Do(ctx, "dequeue.rpoplpush", func(c *redis.Client) error {
			var e error
			raw, e = c.RPopLPush(ctx, listKey, tempKey).Result()
			if redisx.IsNil(e) {
				raw = ""
				return nil
			}
			return e
		})
		if err != nil {
			return removed, err
		}
		if raw == "" {
			break
		}

		env, decodeErr := rqjob.Decode([]byte(raw))
		matched := decodeErr == nil && anyMatches(predicates, env)

		if matched {
			if err := q.redis.Do(ctx, "dequeue.rpop", func(c *redis.Client) error {
				return c.RPop(ctx, tempKey).Err()
			}); err != nil {
				return removed, err
			}
			removed++
		} else {
			if err := q.redis.Do(ctx, "dequeue.requeue", func(c *redis.Client) error {
				return c.RPopLPush(ctx, tempKey, requeueKey).Err()
			}); err != nil {
				return removed, err
			}
		}
	}

	// Drain the requeue list back onto the source list, preserving the
	// original relative order of unmatched envelopes.
	for {
		var raw string
		err := q.redis.Do(ctx, "dequeue.drain", func(c *redis.Client) error {
			var e error
			raw, e = c.RPopLPush(ctx, requeueKey, listKey).Result()
			if redisx.IsNil(e) {
				raw = ""
				return nil
			}
			return e
		})
		if err != nil {
			return removed, err
		}
		if raw == "" {
			break
		}
	}

	return removed, nil
}
