package rqworker

import (
	"context"
	"runtime/debug"

	"github.com/resquego/resque/internal/rqerrors"
	"github.com/resquego/resque/internal/rqevents"
	"github.com/resquego/resque/internal/rqfailure"
	"github.com/resquego/resque/internal/rqjob"
	"github.com/resquego/resque/internal/rqstats"
)

// Perform runs d's before/setup/perform/teardown sequence, catching any
// panic from the job the same way the reference implementation's perform
// wrapper catches "any throwable" (spec.md §4.4.1). It never re-panics: a
// recovered panic is routed through Descriptor.Fail exactly like a returned
// error.
func Perform(ctx context.Context, d *rqjob.Descriptor, factory rqjob.Factory) (outcome rqjob.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			r := &rqerrors.PanicError{Value: p, Stacktrace: string(debug.Stack())}
			_ = d.Fail(ctx, r)
			outcome, err = rqjob.OutcomeFailed, r
		}
	}()

	return d.Perform(ctx, factory)
}

// RunChild decodes the job payload a SelfExecForker placed in the
// environment and performs exactly one job, returning the process exit code
// the parent should interpret via DirtyExit. It is the body of the hidden
// subcommand a cmd/resque binary wires up alongside its worker command.
func RunChild(ctx context.Context, deps ChildDeps) int {
	args, err := ExecArgsFromEnv()
	if err != nil {
		return 1
	}

	d := &rqjob.Descriptor{
		Queue:    args.Queue,
		Envelope: args.Envelope,
		WorkerID: args.WorkerID,
		Track:    args.Track,
		Tracker:  deps.Tracker,
		Stats:    deps.Stats,
		Failures: deps.Failures,
		Events:   deps.Events,
	}

	outcome, err := Perform(ctx, d, deps.Factory)
	if err != nil || outcome == rqjob.OutcomeFailed {
		return 1
	}
	return 0
}

// ChildDeps are the collaborators RunChild needs to build a Descriptor and
// perform a job. They mirror the fields on Worker itself.
type ChildDeps struct {
	Tracker  *rqjob.Tracker
	Stats    *rqstats.Stats
	Failures *rqfailure.Recorder
	Events   *rqevents.Bus
	Factory  rqjob.Factory
}
