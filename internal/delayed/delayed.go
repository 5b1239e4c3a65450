// Package delayed implements the sorted-set delayed-job extension from
// spec.md §4.7: envelopes scheduled for a future timestamp are parked under
// per-timestamp lists and promoted into their target queue once mature.
package delayed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resquego/resque/internal/redisx"
	"github.com/resquego/resque/internal/rqjob"
	"github.com/resquego/resque/internal/rqqueue"
)

const scheduleKey = "_schdlr_"

// Scheduler parks envelopes for future delivery and promotes mature ones
// into live queues.
type Scheduler struct {
	redis   *redisx.Adapter
	queue   *rqqueue.Queue
	tracker *rqjob.Tracker
}

// New builds a Scheduler backed by the given adapter and queue store.
func New(a *redisx.Adapter, q *rqqueue.Queue) *Scheduler {
	return &Scheduler{redis: a, queue: q, tracker: rqjob.NewTracker(a)}
}

func (s *Scheduler) setKey() string          { return s.redis.Key(scheduleKey) }
func (s *Scheduler) listKey(ts int64) string { return s.redis.Key(fmt.Sprintf("%s:%d", scheduleKey, ts)) }

// scheduled is the entry stored in _schdlr_:<ts>: the envelope's own fields
// flattened with "queue" and "track" merged into the same top-level JSON
// object, per spec.md §6 ("delayed adds \"queue\" and \"track\"").
type scheduled struct {
	*rqjob.Envelope
	Queue string `json:"queue"`
	Track bool   `json:"track,omitempty"`
}

func encodeScheduled(s scheduled) ([]byte, error) {
	return json.Marshal(s)
}

func decodeScheduled(raw []byte) (*scheduled, error) {
	var s scheduled
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// EnqueueAt schedules env for delivery into queue at timestamp (Unix
// seconds) and returns the envelope's id. When track is true, the promoted
// job gets a WAITING status record the moment it lands on its target queue,
// matching create()'s trackStatus semantics (spec.md §4.3, §4.7).
func (s *Scheduler) EnqueueAt(ctx context.Context, timestamp int64, queue string, env *rqjob.Envelope, track bool) (string, error) {
	if env.ID == "" {
		id, err := rqjob.NewID()
		if err != nil {
			return "", err
		}
		env.ID = id
	}

	raw, err := encodeScheduled(scheduled{Envelope: env, Queue: queue, Track: track})
	if err != nil {
		return "", err
	}

	listKey := s.listKey(timestamp)
	setKey := s.setKey()
	err = s.redis.Do(ctx, "delayed.enqueueat", func(c *redis.Client) error {
		pipe := c.Pipeline()
		pipe.RPush(ctx, listKey, raw)
		pipe.ZAdd(ctx, setKey, redis.Z{Score: float64(timestamp), Member: timestamp})
		_, e := pipe.Exec(ctx)
		return e
	})
	if err != nil {
		return "", err
	}
	return env.ID, nil
}

// EnqueueIn is sugar for EnqueueAt(now+delay, ...).
func (s *Scheduler) EnqueueIn(ctx context.Context, delay time.Duration, queue string, env *rqjob.Envelope, track bool) (string, error) {
	return s.EnqueueAt(ctx, time.Now().Add(delay).Unix(), queue, env, track)
}

// NextTimestamp returns the earliest scheduled timestamp at or before now,
// or zero if none is due yet.
func (s *Scheduler) NextTimestamp(ctx context.Context, now time.Time) (int64, error) {
	setKey := s.setKey()
	var members []string
	err := s.redis.Do(ctx, "delayed.next", func(c *redis.Client) error {
		var e error
		members, e = c.ZRangeByScore(ctx, setKey, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   fmt.Sprintf("%d", now.Unix()),
			Count: 1,
		}).Result()
		return e
	})
	if err != nil || len(members) == 0 {
		return 0, err
	}
	var ts int64
	if _, scanErr := fmt.Sscanf(members[0], "%d", &ts); scanErr != nil {
		return 0, scanErr
	}
	return ts, nil
}

// PromoteOne pops a single due envelope at timestamp ts and pushes it into
// its target queue, removing ts from the schedule set once its list
// is empty. It returns false when the list at ts was already empty.
func (s *Scheduler) PromoteOne(ctx context.Context, ts int64) (bool, error) {
	listKey := s.listKey(ts)
	var raw string
	err := s.redis.Do(ctx, "delayed.promote.pop", func(c *redis.Client) error {
		var e error
		raw, e = c.LPop(ctx, listKey).Result()
		if redisx.IsNil(e) {
			raw = ""
			return nil
		}
		return e
	})
	if err != nil {
		return false, err
	}
	if raw == "" {
		if err := s.clearTimestamp(ctx, ts); err != nil {
			return false, err
		}
		return false, nil
	}

	sch, err := decodeScheduled([]byte(raw))
	if err != nil {
		return true, err
	}
	if err := s.queue.Push(ctx, sch.Queue, sch.Envelope); err != nil {
		return true, err
	}
	if sch.Track {
		if err := s.tracker.Set(ctx, sch.Envelope.ID, rqjob.StatusWaiting); err != nil {
			return true, err
		}
	}

	var remaining int64
	err = s.redis.Do(ctx, "delayed.promote.llen", func(c *redis.Client) error {
		var e error
		remaining, e = c.LLen(ctx, listKey).Result()
		return e
	})
	if err != nil {
		return true, err
	}
	if remaining == 0 {
		if err := s.clearTimestamp(ctx, ts); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (s *Scheduler) clearTimestamp(ctx context.Context, ts int64) error {
	setKey := s.setKey()
	return s.redis.Do(ctx, "delayed.clear", func(c *redis.Client) error {
		return c.ZRem(ctx, setKey, ts).Err()
	})
}

// RemoveByIdentity scans every _schdlr_:* list and removes every
// envelope matching class and id, returning how many were removed.
func (s *Scheduler) RemoveByIdentity(ctx context.Context, class, id string) (int64, error) {
	pattern := s.redis.Key(scheduleKey + ":*")
	var keys []string
	err := s.redis.Do(ctx, "delayed.scan", func(c *redis.Client) error {
		var e error
		keys, e = c.Keys(ctx, pattern).Result()
		return e
	})
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, key := range keys {
		var entries []string
		err := s.redis.Do(ctx, "delayed.lrange", func(c *redis.Client) error {
			var e error
			entries, e = c.LRange(ctx, key, 0, -1).Result()
			return e
		})
		if err != nil {
			return removed, err
		}
		for _, raw := range entries {
			sch, err := decodeScheduled([]byte(raw))
			if err != nil {
				continue
			}
			if sch.Envelope.Class != class || sch.Envelope.ID != id {
				continue
			}
			if err := s.redis.Do(ctx, "delayed.lrem", func(c *redis.Client) error {
				return c.LRem(ctx, key, 1, raw).Err()
			}); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}
