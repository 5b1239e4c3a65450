package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resquego/resque/internal/delayed"
	"github.com/resquego/resque/internal/redisx"
	"github.com/resquego/resque/internal/rqjob"
)

// Logger is the narrow logging surface CronScheduler needs.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// CronScheduler fires due schedules by handing them, timestamped with the
// current time, to the delayed-job extension rather than pushing onto a
// queue directly,
// so every enqueue still passes through EnqueueAt's bookkeeping.
type CronScheduler struct {
	registry  *Registry
	scheduler *delayed.Scheduler
	redis     *redisx.Adapter
	interval  time.Duration
	lockTTL   time.Duration
	log       Logger
}

// NewCronScheduler builds a CronScheduler. log may be nil, in which case
// a no-op logger is used.
func NewCronScheduler(registry *Registry, scheduler *delayed.Scheduler, a *redisx.Adapter, interval time.Duration, log Logger) *CronScheduler {
	if log == nil {
		log = noopLogger{}
	}
	return &CronScheduler{
		registry:  registry,
		scheduler: scheduler,
		redis:     a,
		interval:  interval,
		lockTTL:   60 * time.Second,
		log:       log,
	}
}

// SetLockTTL overrides the distributed lock TTL (for testing or tuning).
func (cs *CronScheduler) SetLockTTL(ttl time.Duration) { cs.lockTTL = ttl }

// Start begins the cron scheduler loop, blocking until ctx is cancelled.
func (cs *CronScheduler) Start(ctx context.Context) {
	cs.log.Info("cron scheduler started", "interval", cs.interval, "schedules", cs.registry.Count())

	ticker := time.NewTicker(cs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cs.log.Info("cron scheduler stopping")
			return
		case <-ticker.C:
			cs.tick(ctx)
		}
	}
}

func (cs *CronScheduler) tick(ctx context.Context) {
	now := time.Now()
	for _, s := range cs.registry.List() {
		if !s.Enabled {
			continue
		}
		if cs.isDue(ctx, s, now) {
			cs.executeSchedule(ctx, s, now)
		}
	}
}

func (cs *CronScheduler) isDue(ctx context.Context, s *Schedule, now time.Time) bool {
	state, err := cs.getState(ctx, s.ID)
	if err != nil {
		cs.log.Error("failed to get schedule state", "schedule_id", s.ID, "error", err)
		return false
	}

	nextRun, err := cs.registry.NextRun(s, state.LastRun)
	if err != nil {
		cs.log.Error("failed to calculate next run", "schedule_id", s.ID, "error", err)
		return false
	}

	// 1-second buffer to account for tick timing.
	return now.After(nextRun.Add(-1*time.Second)) || now.Equal(nextRun)
}

func (cs *CronScheduler) executeSchedule(ctx context.Context, s *Schedule, now time.Time) {
	lockKey := fmt.Sprintf("schedule_lock:%s", s.ID)

	lock, err := AcquireLock(ctx, cs.redis, lockKey, cs.lockTTL)
	if err != nil {
		cs.log.Error("failed to acquire schedule lock", "schedule_id", s.ID, "error", err)
		return
	}
	if lock == nil {
		cs.log.Debug("schedule already locked by another instance", "schedule_id", s.ID)
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			cs.log.Error("failed to release schedule lock", "schedule_id", s.ID, "error", err)
		}
	}()

	env, err := rqjob.NewEnvelope(s.Class, "", rawArgs(s.Args))
	if err != nil {
		cs.log.Error("failed to build scheduled envelope", "schedule_id", s.ID, "error", err)
		return
	}

	nextRun, nextErr := cs.registry.NextRun(s, now)

	jobID, err := cs.scheduler.EnqueueAt(ctx, now.Unix(), s.Queue, env, s.Track)
	if err != nil {
		cs.log.Error("failed to enqueue scheduled job", "schedule_id", s.ID, "job_class", s.Class, "error", err)
		if updateErr := cs.updateState(ctx, s.ID, &State{ID: s.ID, LastRun: now, LastError: err.Error()}); updateErr != nil {
			cs.log.Warn("failed to update schedule state", "schedule_id", s.ID, "error", updateErr)
		}
		return
	}

	cs.log.Info("scheduled job enqueued", "schedule_id", s.ID, "job_class", s.Class, "job_id", jobID, "queue", s.Queue)

	if nextErr != nil {
		cs.log.Error("failed to calculate next run time", "schedule_id", s.ID, "error", nextErr)
		nextRun = time.Time{}
	}

	runCount := cs.incrementRunCount(ctx, s.ID)
	if updateErr := cs.updateState(ctx, s.ID, &State{
		ID:          s.ID,
		LastRun:     now,
		NextRun:     nextRun,
		LastSuccess: now,
		RunCount:    runCount,
	}); updateErr != nil {
		cs.log.Warn("failed to update schedule state", "schedule_id", s.ID, "error", updateErr)
	}
}

func rawArgs(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return rawJSON(b)
}

// rawJSON implements json.Marshaler by re-emitting the bytes verbatim, so
// NewEnvelope's own marshal step doesn't double-encode an already-encoded
// argument list.
type rawJSON []byte

func (r rawJSON) MarshalJSON() ([]byte, error) { return r, nil }

func (cs *CronScheduler) stateKey(scheduleID string) string {
	return cs.redis.Key("schedules:" + scheduleID)
}

func (cs *CronScheduler) getState(ctx context.Context, scheduleID string) (*State, error) {
	key := cs.stateKey(scheduleID)
	var result map[string]string
	err := cs.redis.Do(ctx, "schedule.getstate", func(c *redis.Client) error {
		var e error
		result, e = c.HGetAll(ctx, key).Result()
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule state: %w", err)
	}

	if len(result) == 0 {
		return &State{ID: scheduleID}, nil
	}

	state := &State{ID: scheduleID}
	if lastRun, ok := result["last_run"]; ok && lastRun != "" {
		if parsed, err := time.Parse(time.RFC3339, lastRun); err == nil {
			state.LastRun = parsed
		}
	}
	if nextRun, ok := result["next_run"]; ok && nextRun != "" {
		if parsed, err := time.Parse(time.RFC3339, nextRun); err == nil {
			state.NextRun = parsed
		}
	}
	if lastSuccess, ok := result["last_success"]; ok && lastSuccess != "" {
		if parsed, err := time.Parse(time.RFC3339, lastSuccess); err == nil {
			state.LastSuccess = parsed
		}
	}
	if lastError, ok := result["last_error"]; ok {
		state.LastError = lastError
	}
	if runCount, ok := result["run_count"]; ok && runCount != "" {
		var count int64
		if _, err := fmt.Sscanf(runCount, "%d", &count); err == nil {
			state.RunCount = count
		}
	}

	return state, nil
}

func (cs *CronScheduler) updateState(ctx context.Context, scheduleID string, state *State) error {
	key := cs.stateKey(scheduleID)

	fields := map[string]interface{}{
		"last_run": state.LastRun.Format(time.RFC3339),
	}
	if !state.NextRun.IsZero() {
		fields["next_run"] = state.NextRun.Format(time.RFC3339)
	}
	if !state.LastSuccess.IsZero() {
		fields["last_success"] = state.LastSuccess.Format(time.RFC3339)
	}
	if state.LastError != "" {
		fields["last_error"] = state.LastError
	}

	return cs.redis.Do(ctx, "schedule.updatestate", func(c *redis.Client) error {
		if state.LastError == "" {
			c.HDel(ctx, key, "last_error")
		}
		return c.HSet(ctx, key, fields).Err()
	})
}

func (cs *CronScheduler) incrementRunCount(ctx context.Context, scheduleID string) int64 {
	key := cs.stateKey(scheduleID)
	var count int64
	err := cs.redis.Do(ctx, "schedule.incrruncount", func(c *redis.Client) error {
		var e error
		count, e = c.HIncrBy(ctx, key, "run_count", 1).Result()
		return e
	})
	if err != nil {
		cs.log.Error("failed to increment run count", "schedule_id", scheduleID, "error", err)
		return 0
	}
	return count
}

// GetState retrieves the current state of a schedule (for monitoring).
func (cs *CronScheduler) GetState(ctx context.Context, scheduleID string) (*State, error) {
	return cs.getState(ctx, scheduleID)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
