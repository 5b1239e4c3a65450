package rqjob

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resquego/resque/internal/redisx"
)

// Status is the job status state machine from spec.md §3: a linear DAG
// WAITING -> RUNNING -> {COMPLETE, FAILED}, with an optional
// SCHEDULED -> WAITING edge from the delayed-job extension.
type Status int

const (
	StatusWaiting   Status = 1
	StatusRunning   Status = 2
	StatusFailed    Status = 3
	StatusComplete  Status = 4
	StatusScheduled Status = 63
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusRunning:
		return "running"
	case StatusFailed:
		return "failed"
	case StatusComplete:
		return "complete"
	case StatusScheduled:
		return "scheduled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is a final state (FAILED or COMPLETE), after
// which the status record is given a TTL rather than kept indefinitely.
func (s Status) IsTerminal() bool {
	return s == StatusFailed || s == StatusComplete
}

// terminalTTL is the lifetime of a status record once it reaches a terminal
// state, per spec.md §3.
const terminalTTL = 86400 * time.Second

// StatusRecord is the JSON value stored at job:<id>:status.
type StatusRecord struct {
	Status  Status `json:"status"`
	Updated int64  `json:"updated"`
	Started int64  `json:"started,omitempty"`
}

// Tracker reads and writes job status records. The absence of a key means
// "not tracked" or "tracking was stopped" — callers must not treat a missing
// record as an error.
type Tracker struct {
	redis *redisx.Adapter
}

// NewTracker builds a Tracker backed by the given adapter.
func NewTracker(a *redisx.Adapter) *Tracker {
	return &Tracker{redis: a}
}

func (t *Tracker) key(id string) string {
	return t.redis.Key("job:" + id + ":status")
}

// Create writes an initial status record (typically WAITING) and stamps
// Started. Subsequent transitions leave Started untouched.
func (t *Tracker) Create(ctx context.Context, id string, status Status) error {
	now := time.Now().Unix()
	rec := StatusRecord{Status: status, Updated: now, Started: now}
	return t.write(ctx, id, rec)
}

// Set transitions an existing record to status, preserving Started. If no
// record exists yet, it behaves like Create.
func (t *Tracker) Set(ctx context.Context, id string, status Status) error {
	existing, err := t.Get(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	started := now
	if existing != nil {
		started = existing.Started
	}
	return t.write(ctx, id, StatusRecord{Status: status, Updated: now, Started: started})
}

func (t *Tracker) write(ctx context.Context, id string, rec StatusRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := t.key(id)
	return t.redis.Do(ctx, "status.write", func(c *redis.Client) error {
		if err := c.Set(ctx, key, data, 0).Err(); err != nil {
			return err
		}
		if rec.Status.IsTerminal() {
			return c.Expire(ctx, key, terminalTTL).Err()
		}
		return nil
	})
}

// Get returns the status record for id, or nil if the job isn't tracked.
func (t *Tracker) Get(ctx context.Context, id string) (*StatusRecord, error) {
	key := t.key(id)
	var rec *StatusRecord
	err := t.redis.Do(ctx, "status.get", func(c *redis.Client) error {
		raw, e := c.Get(ctx, key).Result()
		if redisx.IsNil(e) {
			return nil
		}
		if e != nil {
			return e
		}
		var r StatusRecord
		if e := json.Unmarshal([]byte(raw), &r); e != nil {
			return e
		}
		rec = &r
		return nil
	})
	return rec, err
}

// Stop removes a job's status record, ending tracking. Once untracked, a job
// never becomes tracked again (§9): callers should not retry Create after
// Stop for the same id.
func (t *Tracker) Stop(ctx context.Context, id string) error {
	key := t.key(id)
	return t.redis.Do(ctx, "status.stop", func(c *redis.Client) error {
		return c.Del(ctx, key).Err()
	})
}
