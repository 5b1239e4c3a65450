// Package rqfailure records failed jobs to failed:<job-id> as described in
// spec.md §3 and §6: the failed job's payload, exception chain, owning
// worker, and source queue, with a 24-hour TTL.
package rqfailure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resquego/resque/internal/redisx"
)

const ttl = 86400 * time.Second

// Record is the JSON value stored at failed:<id>.
type Record struct {
	FailedAt  time.Time       `json:"failed_at"`
	Payload   json.RawMessage `json:"payload"`
	Exception string          `json:"exception"`
	Error     string          `json:"error"`
	Backtrace []string        `json:"backtrace"`
	Worker    string          `json:"worker"`
	Queue     string          `json:"queue"`
}

// wireRecord mirrors Record but renders FailedAt in the reference protocol's
// "YYYY-MM-DD HH:MM:SS" layout instead of RFC 3339.
type wireRecord struct {
	FailedAt  string          `json:"failed_at"`
	Payload   json.RawMessage `json:"payload"`
	Exception string          `json:"exception"`
	Error     string          `json:"error"`
	Backtrace []string        `json:"backtrace"`
	Worker    string          `json:"worker"`
	Queue     string          `json:"queue"`
}

// Recorder stores and fetches job failure records keyed by job id. Record
// derives the id from the "id" field of the record's payload; RecordFor
// takes the id explicitly.
type Recorder struct {
	redis *redisx.Adapter
}

// New builds a Recorder backed by the given adapter.
func New(a *redisx.Adapter) *Recorder {
	return &Recorder{redis: a}
}

func (r *Recorder) key(id string) string {
	return r.redis.Key("failed:" + id)
}

// Record writes rec to failed:<id> with the standard TTL, where id is the
// "id" field of rec.Payload (empty if the payload has none or does not
// parse).
func (r *Recorder) Record(ctx context.Context, rec Record) error {
	var id string
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Payload, &payload); err == nil {
		id = payload.ID
	}
	return r.RecordFor(ctx, id, rec)
}

// RecordFor writes rec to failed:<id> with the standard TTL.
func (r *Recorder) RecordFor(ctx context.Context, id string, rec Record) error {
	wire := wireRecord{
		FailedAt:  rec.FailedAt.Format("2006-01-02 15:04:05"),
		Payload:   rec.Payload,
		Exception: rec.Exception,
		Error:     rec.Error,
		Backtrace: rec.Backtrace,
		Worker:    rec.Worker,
		Queue:     rec.Queue,
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}

	key := r.key(id)
	return r.redis.Do(ctx, "failure.record", func(c *redis.Client) error {
		if err := c.Set(ctx, key, data, 0).Err(); err != nil {
			return err
		}
		return c.Expire(ctx, key, ttl).Err()
	})
}

// Get retrieves the failure record for id, or nil if none exists.
func (r *Recorder) Get(ctx context.Context, id string) (*Record, error) {
	key := r.key(id)
	var rec *Record
	err := r.redis.Do(ctx, "failure.get", func(c *redis.Client) error {
		raw, e := c.Get(ctx, key).Result()
		if redisx.IsNil(e) {
			return nil
		}
		if e != nil {
			return e
		}
		var w wireRecord
		if e := json.Unmarshal([]byte(raw), &w); e != nil {
			return e
		}
		failedAt, _ := time.Parse("2006-01-02 15:04:05", w.FailedAt)
		rec = &Record{
			FailedAt:  failedAt,
			Payload:   w.Payload,
			Exception: w.Exception,
			Error:     w.Error,
			Backtrace: w.Backtrace,
			Worker:    w.Worker,
			Queue:     w.Queue,
		}
		return nil
	})
	return rec, err
}
