// Package rqresult is an opt-in companion to job status tracking: where
// internal/rqjob's Tracker records only a terminal state, a Backend stores
// the actual return value of a job's Perform call for callers that want it.
// Nothing in the core worker loop writes here automatically — a job
// implementation calls StoreResult itself, typically from TearDown.
package rqresult

import (
	"context"
	"encoding/json"
	"time"

	"github.com/resquego/resque/internal/rqjob"
)

// Result is the value a Backend stores and retrieves, keyed by job id. Value
// holds the already-encoded job return value; a plain RedisBackend treats it
// as opaque bytes, using EncodeValue/DecodeValue to move between a Go value
// and this field under the backend's configured encoding.
type Result struct {
	JobID       string          `json:"job_id"`
	Status      rqjob.Status    `json:"status"`
	Value       json.RawMessage `json:"value,omitempty"`
	Error       string          `json:"error,omitempty"`
	CompletedAt time.Time       `json:"completed_at"`
	Duration    time.Duration   `json:"duration"`
}

// IsSuccess reports whether the job completed without error.
func (r *Result) IsSuccess() bool { return r.Status == rqjob.StatusComplete }

// IsFailed reports whether the job's status is FAILED.
func (r *Result) IsFailed() bool { return r.Status == rqjob.StatusFailed }

// Backend stores and retrieves job results, independent of status tracking.
type Backend interface {
	// StoreResult saves result, keyed by result.JobID, and notifies any
	// waiters blocked in WaitForResult for that id.
	StoreResult(ctx context.Context, result *Result) error

	// GetResult returns the stored result for jobID, or nil if none exists
	// (not yet complete, or its TTL has expired).
	GetResult(ctx context.Context, jobID string) (*Result, error)

	// WaitForResult blocks until a result is stored for jobID or timeout
	// elapses, returning nil (no error) on timeout.
	WaitForResult(ctx context.Context, jobID string, timeout time.Duration) (*Result, error)

	// DeleteResult removes a stored result. Not an error if absent.
	DeleteResult(ctx context.Context, jobID string) error

	// Close releases any connections the backend owns.
	Close() error
}
