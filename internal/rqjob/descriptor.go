package rqjob

import (
	"context"
	"fmt"
	"time"

	"github.com/resquego/resque/internal/rqerrors"
	"github.com/resquego/resque/internal/rqevents"
	"github.com/resquego/resque/internal/rqfailure"
	"github.com/resquego/resque/internal/rqstats"
)

// Instance is the "create instance, perform" contract a Factory hands back
// for a given envelope. SetUp and TearDown are optional: implement
// SetUpper/TearDowner to participate.
type Instance interface {
	Perform(ctx context.Context) error
}

// BeforePerformer lets an instance veto its own execution before Perform
// runs, by returning a *rqerrors.DontPerform.
type BeforePerformer interface {
	BeforePerform(ctx context.Context) error
}

// SetUpper runs once after BeforePerform and before Perform. Returning a
// *rqerrors.DontPerform here also cancels the job cooperatively.
type SetUpper interface {
	SetUp(ctx context.Context) error
}

// TearDowner runs after a successful Perform.
type TearDowner interface {
	TearDown(ctx context.Context) error
}

// Factory maps a job class name to an executable Instance, per spec.md
// §4.3's "creator" capability.
type Factory interface {
	Create(ctx context.Context, env *Envelope) (Instance, error)
}

// Outcome is the three-way result of running a job, matching the
// Ran | Skipped | Failed(Error) model from spec.md §9's design notes —
// cooperative skips are never reported as failures.
type Outcome int

const (
	OutcomeRan Outcome = iota
	OutcomeSkipped
	OutcomeFailed
)

// Descriptor wraps an Envelope with the queue it was reserved from and the
// collaborators needed to run and report on it: status tracking, stats,
// failure recording, and the before/after event hooks.
type Descriptor struct {
	Queue    string
	Envelope *Envelope
	WorkerID string
	Track    bool

	Tracker  *Tracker
	Stats    *rqstats.Stats
	Failures *rqfailure.Recorder
	Events   *rqevents.Bus
}

// UpdateStatus transitions the job's status record, a no-op if the envelope
// carries no id or tracking was never requested.
func (d *Descriptor) UpdateStatus(ctx context.Context, status Status) error {
	if d.Envelope.ID == "" || !d.Track || d.Tracker == nil {
		return nil
	}
	return d.Tracker.Set(ctx, d.Envelope.ID, status)
}

// Perform runs the before/setup/perform/teardown/after sequence described in
// spec.md §4.3. A DontPerform from BeforePerform or SetUp yields
// OutcomeSkipped without touching stats or status. Any other error from
// Perform or TearDown yields OutcomeFailed and has already been routed to
// Fail.
func (d *Descriptor) Perform(ctx context.Context, factory Factory) (Outcome, error) {
	instance, err := factory.Create(ctx, d.Envelope)
	if err != nil {
		jnc := &rqerrors.JobNotCreatable{Class: d.Envelope.Class, Err: err}
		_ = d.Fail(ctx, jnc)
		return OutcomeFailed, jnc
	}

	if bp, ok := instance.(BeforePerformer); ok {
		if err := bp.BeforePerform(ctx); err != nil {
			if isDontPerform(err) {
				return OutcomeSkipped, nil
			}
			_ = d.Fail(ctx, err)
			return OutcomeFailed, err
		}
	}

	if su, ok := instance.(SetUpper); ok {
		if err := su.SetUp(ctx); err != nil {
			if isDontPerform(err) {
				return OutcomeSkipped, nil
			}
			_ = d.Fail(ctx, err)
			return OutcomeFailed, err
		}
	}

	if err := instance.Perform(ctx); err != nil {
		threw := &rqerrors.JobThrew{Class: d.Envelope.Class, Err: err}
		_ = d.Fail(ctx, threw)
		return OutcomeFailed, threw
	}

	if td, ok := instance.(TearDowner); ok {
		if err := td.TearDown(ctx); err != nil {
			threw := &rqerrors.JobThrew{Class: d.Envelope.Class, Err: err}
			_ = d.Fail(ctx, threw)
			return OutcomeFailed, threw
		}
	}

	if d.Events != nil {
		d.Events.Fire(ctx, "afterPerform", d)
	}
	if d.Stats != nil {
		if err := d.Stats.Increment(ctx, "processed"); err != nil {
			return OutcomeRan, err
		}
		if d.WorkerID != "" {
			if err := d.Stats.Increment(ctx, "processed:"+d.WorkerID); err != nil {
				return OutcomeRan, err
			}
		}
	}
	if err := d.UpdateStatus(ctx, StatusComplete); err != nil {
		return OutcomeRan, err
	}
	return OutcomeRan, nil
}

// Fail records a job failure: fires onFailure, marks status FAILED, writes a
// failure record, and increments the failed and failed:<worker> counters.
func (d *Descriptor) Fail(ctx context.Context, cause error) error {
	if d.Events != nil {
		d.Events.Fire(ctx, "onFailure", cause, d)
	}

	if err := d.UpdateStatus(ctx, StatusFailed); err != nil {
		return err
	}

	if d.Failures != nil {
		raw, _ := d.Envelope.Encode()
		exceptionClass, msg, backtrace := classify(cause)
		if err := d.Failures.Record(ctx, rqfailure.Record{
			FailedAt:  time.Now(),
			Payload:   raw,
			Exception: exceptionClass,
			Error:     msg,
			Backtrace: backtrace,
			Worker:    d.WorkerID,
			Queue:     d.Queue,
		}); err != nil {
			return err
		}
	}

	if d.Stats != nil {
		if err := d.Stats.Increment(ctx, "failed"); err != nil {
			return err
		}
		if d.WorkerID != "" {
			if err := d.Stats.Increment(ctx, "failed:"+d.WorkerID); err != nil {
				return err
			}
		}
	}
	return nil
}

func isDontPerform(err error) bool {
	_, ok := err.(*rqerrors.DontPerform)
	return ok
}

// classify extracts an exception class name, message, and a one-line
// backtrace from cause for the failure record. There is no real exception
// hierarchy in Go, so the dynamic %T of the error a JobThrew wraps (or of
// cause itself, for an error of no listed type) stands in for the Ruby
// "exception class name" field.
func classify(cause error) (class, message string, backtrace []string) {
	switch e := cause.(type) {
	case *rqerrors.JobThrew:
		return fmt.Sprintf("%T", e.Err), e.Err.Error(), []string{e.Error()}
	case *rqerrors.JobNotCreatable:
		return "JobNotCreatable", e.Error(), []string{e.Error()}
	case *rqerrors.DirtyExit:
		return "DirtyExit", e.Error(), []string{e.Error()}
	case *rqerrors.PanicError:
		return "PanicError", fmt.Sprintf("%v", e.Value), []string{e.Stacktrace}
	default:
		return fmt.Sprintf("%T", cause), cause.Error(), []string{cause.Error()}
	}
}
