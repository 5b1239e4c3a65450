package delayed

import (
	"context"
	"time"
)

// Promoter runs the delayed-job promotion loop described in spec.md §4.7:
// a specialised worker process with the same serial scheduling model as a
// regular Worker, but no fork per iteration since promotion only moves
// data between Redis keys.
type Promoter struct {
	scheduler *Scheduler
	interval  time.Duration
}

// NewPromoter builds a Promoter that polls every interval for due jobs.
func NewPromoter(s *Scheduler, interval time.Duration) *Promoter {
	return &Promoter{scheduler: s, interval: interval}
}

// Run polls for and promotes due jobs until ctx is cancelled.
func (p *Promoter) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.drainDue(ctx); err != nil {
				return err
			}
		}
	}
}

// drainDue promotes every currently-due timestamp's jobs, one envelope at a
// time, before returning to the ticker.
func (p *Promoter) drainDue(ctx context.Context) error {
	for {
		ts, err := p.scheduler.NextTimestamp(ctx, time.Now())
		if err != nil {
			return err
		}
		if ts == 0 {
			return nil
		}
		for {
			more, err := p.scheduler.PromoteOne(ctx, ts)
			if err != nil {
				return err
			}
			if !more {
				break
			}
		}
	}
}
