// Package client is the producer-side API: enqueue jobs against any queue a
// worker polls, schedule them for later via the delayed-job extension, and
// read back their status or result. It never pops a queue or runs a job
// itself, it only writes the same keyspace internal/rqworker reads from.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/resquego/resque/internal/delayed"
	"github.com/resquego/resque/internal/redisx"
	"github.com/resquego/resque/internal/rqjob"
	"github.com/resquego/resque/internal/rqqueue"
	"github.com/resquego/resque/internal/rqresult"
)

// Client submits jobs to Redis and reads back their tracked status or
// stored result. A single Client is safe for concurrent use.
type Client struct {
	redis     *redisx.Adapter
	queue     *rqqueue.Queue
	scheduler *delayed.Scheduler
	tracker   *rqjob.Tracker
	result    *rqresult.RedisBackend
}

// Options configures a new Client. Zero values pick the same defaults
// internal/rqworker uses, so a client and the workers consuming its jobs
// agree on keyspace and TTLs without extra configuration.
type Options struct {
	RedisURL       string
	RedisDB        int
	RedisNamespace string

	// ResultSuccessTTL and ResultFailureTTL govern how long a stored result
	// survives. Zero picks 1h success / 24h failure.
	ResultSuccessTTL time.Duration
	ResultFailureTTL time.Duration
}

// New connects a Client to the given Redis URL with default options.
func New(redisURL string) (*Client, error) {
	return NewWithOptions(Options{RedisURL: redisURL})
}

// NewWithOptions connects a Client using the given Options.
func NewWithOptions(opts Options) (*Client, error) {
	a, err := redisx.New(redisx.Options{
		URL:    opts.RedisURL,
		DB:     opts.RedisDB,
		Prefix: opts.RedisNamespace,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	successTTL := opts.ResultSuccessTTL
	if successTTL == 0 {
		successTTL = 1 * time.Hour
	}
	failureTTL := opts.ResultFailureTTL
	if failureTTL == 0 {
		failureTTL = 24 * time.Hour
	}

	q := rqqueue.New(a)
	return &Client{
		redis:     a,
		queue:     q,
		scheduler: delayed.New(a, q),
		tracker:   rqjob.NewTracker(a),
		result:    rqresult.NewRedisBackend(a, successTTL, failureTTL),
	}, nil
}

// Enqueue pushes a job onto queue immediately, generating a new job id. arg
// is marshaled as the job's single positional argument; pass nil to enqueue
// a job with no arguments. track requests a status record per create()'s
// trackStatus flag (spec.md §4.3); pass false for fire-and-forget jobs.
func (c *Client) Enqueue(ctx context.Context, queue, class string, arg interface{}, track bool) (string, error) {
	id, err := rqjob.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	return id, c.enqueue(ctx, queue, class, id, arg, track)
}

// EnqueueWithID pushes a job onto queue immediately using a caller-supplied
// id, letting a producer deduplicate retries or correlate a job with an
// external request id.
func (c *Client) EnqueueWithID(ctx context.Context, queue, class, id string, arg interface{}, track bool) error {
	return c.enqueue(ctx, queue, class, id, arg, track)
}

func (c *Client) enqueue(ctx context.Context, queue, class, id string, arg interface{}, track bool) error {
	env, err := rqjob.NewEnvelope(class, id, arg)
	if err != nil {
		return fmt.Errorf("build job envelope: %w", err)
	}
	if err := c.queue.Push(ctx, queue, env); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	if !track {
		return nil
	}
	if err := c.tracker.Create(ctx, id, rqjob.StatusWaiting); err != nil {
		return fmt.Errorf("create status record: %w", err)
	}
	return nil
}

// EnqueueAt schedules a job for promotion onto queue at the given time via
// the delayed-job extension, generating a new job id. track is carried
// through to the promoted job, per spec.md §4.7's enqueueAt(..., track).
func (c *Client) EnqueueAt(ctx context.Context, at time.Time, queue, class string, arg interface{}, track bool) (string, error) {
	id, err := rqjob.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	if err := c.enqueueAt(ctx, at.Unix(), queue, class, id, arg, track); err != nil {
		return "", err
	}
	return id, nil
}

// EnqueueIn schedules a job for promotion onto queue after delay has
// elapsed, generating a new job id.
func (c *Client) EnqueueIn(ctx context.Context, delay time.Duration, queue, class string, arg interface{}, track bool) (string, error) {
	return c.EnqueueAt(ctx, time.Now().Add(delay), queue, class, arg, track)
}

func (c *Client) enqueueAt(ctx context.Context, timestamp int64, queue, class, id string, arg interface{}, track bool) error {
	env, err := rqjob.NewEnvelope(class, id, arg)
	if err != nil {
		return fmt.Errorf("build job envelope: %w", err)
	}
	if _, err := c.scheduler.EnqueueAt(ctx, timestamp, queue, env, track); err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}
	if !track {
		return nil
	}
	if err := c.tracker.Create(ctx, id, rqjob.StatusScheduled); err != nil {
		return fmt.Errorf("create status record: %w", err)
	}
	return nil
}

// CancelScheduled removes a not-yet-promoted job matching class and id from
// the delayed-job extension. It has no effect once the job has been
// promoted onto its target queue.
func (c *Client) CancelScheduled(ctx context.Context, class, id string) (bool, error) {
	removed, err := c.scheduler.RemoveByIdentity(ctx, class, id)
	if err != nil {
		return false, fmt.Errorf("cancel scheduled job: %w", err)
	}
	return removed > 0, nil
}

// GetStatus returns the tracked status record for jobID, or nil if the job
// isn't tracked (never submitted through this client, or status tracking
// was stopped).
func (c *Client) GetStatus(ctx context.Context, jobID string) (*rqjob.StatusRecord, error) {
	rec, err := c.tracker.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	return rec, nil
}

// GetResult returns the stored result for jobID, or nil if the job hasn't
// completed yet, never stored a result, or the result has expired.
func (c *Client) GetResult(ctx context.Context, jobID string) (*rqresult.Result, error) {
	res, err := c.result.GetResult(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return res, nil
}

// WaitForResult blocks until jobID's result is stored or timeout elapses.
func (c *Client) WaitForResult(ctx context.Context, jobID string, timeout time.Duration) (*rqresult.Result, error) {
	res, err := c.result.WaitForResult(ctx, jobID, timeout)
	if err != nil {
		return nil, fmt.Errorf("wait for result: %w", err)
	}
	return res, nil
}

// Dequeue removes matching jobs from queue without running them, per
// spec.md §4.2's predicate-based safe-dequeue operation. With no predicates
// it drops the whole queue; otherwise it removes only envelopes matching
// at least one predicate and preserves the relative order of the rest.
// workerID identifies this caller for the underlying temp-key staging and
// may be "" for an operator-driven, non-worker caller (e.g. the CLI).
func (c *Client) Dequeue(ctx context.Context, queue string, predicates []rqqueue.Predicate, workerID string) (int64, error) {
	n, err := c.queue.Dequeue(ctx, queue, predicates, workerID)
	if err != nil {
		return 0, fmt.Errorf("dequeue: %w", err)
	}
	return n, nil
}

// QueueDepth returns the number of jobs currently waiting on queue.
func (c *Client) QueueDepth(ctx context.Context, queue string) (int64, error) {
	depth, err := c.queue.Size(ctx, queue)
	if err != nil {
		return 0, fmt.Errorf("get queue depth: %w", err)
	}
	return depth, nil
}

// Queues lists every queue name a producer or worker has ever pushed to.
func (c *Client) Queues(ctx context.Context) ([]string, error) {
	names, err := c.queue.Names(ctx)
	if err != nil {
		return nil, fmt.Errorf("list queues: %w", err)
	}
	return names, nil
}

// Close releases the underlying Redis connection.
func (c *Client) Close() error {
	return c.redis.Close()
}
