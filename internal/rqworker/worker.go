package rqworker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/resquego/resque/internal/redisx"
	"github.com/resquego/resque/internal/rqerrors"
	"github.com/resquego/resque/internal/rqevents"
	"github.com/resquego/resque/internal/rqfailure"
	"github.com/resquego/resque/internal/rqjob"
	"github.com/resquego/resque/internal/rqqueue"
	"github.com/resquego/resque/internal/rqregistry"
	"github.com/resquego/resque/internal/rqresolver"
	"github.com/resquego/resque/internal/rqstats"
)

// Logger is the narrow logging surface the worker needs; internal/logger's
// MultiLogger satisfies it.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// Worker runs the fork/wait/signal main loop described in spec.md §4.4. One
// Worker corresponds to one OS process; job execution happens in a child
// forked for each reservation and run to completion before the next
// iteration.
type Worker struct {
	ID       string
	Hostname string
	PID      int
	Patterns []string

	redis    *redisx.Adapter
	queue    *rqqueue.Queue
	resolver *rqresolver.Resolver
	registry *rqregistry.Registry
	tracker  *rqjob.Tracker
	stats    *rqstats.Stats
	failures *rqfailure.Recorder
	events   *rqevents.Bus
	factory  rqjob.Factory
	forker   Forker
	logger   Logger

	config         Config
	gracefulSignal os.Signal

	state *signalState

	childMu sync.Mutex
	child   ChildProcess

	currentMu sync.Mutex
	current   *rqjob.Descriptor
}

// Deps bundles the collaborators a Worker needs, built once per process and
// shared with the hidden subcommand's ChildDeps.
type Deps struct {
	Redis    *redisx.Adapter
	Queue    *rqqueue.Queue
	Resolver *rqresolver.Resolver
	Registry *rqregistry.Registry
	Tracker  *rqjob.Tracker
	Stats    *rqstats.Stats
	Failures *rqfailure.Recorder
	Events   *rqevents.Bus
	Factory  rqjob.Factory
	Forker   Forker
	Logger   Logger
}

// New builds a Worker for the given queue pattern (spec.md §4.4:
// "single string or list"). hostname/pid default to the OS hostname and
// this process's pid when empty/zero.
func New(patterns []string, hostname string, pid int, config Config, deps Deps) *Worker {
	if hostname == "" {
		hostname = rqregistry.Hostname()
	}
	if pid == 0 {
		pid = os.Getpid()
	}

	var gracefulSignal os.Signal
	if config.GracefulSignal != "" {
		gracefulSignal = parseSignal(config.GracefulSignal)
	}

	return &Worker{
		ID:             rqregistry.ID(hostname, pid, patterns),
		Hostname:       hostname,
		PID:            pid,
		Patterns:       patterns,
		redis:          deps.Redis,
		queue:          deps.Queue,
		resolver:       deps.Resolver,
		registry:       deps.Registry,
		tracker:        deps.Tracker,
		stats:          deps.Stats,
		failures:       deps.Failures,
		events:         deps.Events,
		factory:        deps.Factory,
		forker:         deps.Forker,
		logger:         deps.Logger,
		config:         config,
		gracefulSignal: gracefulSignal,
		state:          newSignalState(),
	}
}

func parseSignal(name string) os.Signal {
	switch strings.ToUpper(strings.TrimPrefix(name, "SIG")) {
	case "USR1":
		return syscall.SIGUSR1
	case "USR2":
		return syscall.SIGUSR2
	case "TERM":
		return syscall.SIGTERM
	case "QUIT":
		return syscall.SIGQUIT
	case "KILL":
		return syscall.SIGKILL
	default:
		return syscall.SIGKILL
	}
}

func (w *Worker) logf(level, msg string, kv ...interface{}) {
	if w.logger == nil {
		return
	}
	switch level {
	case "debug":
		w.logger.Debug(msg, kv...)
	case "warn":
		w.logger.Warn(msg, kv...)
	case "error":
		w.logger.Error(msg, kv...)
	default:
		w.logger.Info(msg, kv...)
	}
}

// pidAlive reports whether pid is present in the host process table.
func (w *Worker) pidAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// Run installs signal handlers, registers the worker, and runs the main
// loop until a shutdown flag is set or ctx is cancelled. It always
// unregisters on the way out.
func (w *Worker) Run(ctx context.Context) error {
	w.logf("info", "starting worker", "worker_id", w.ID)
	if w.events != nil {
		w.events.Fire(ctx, "beforeFirstFork", w)
	}
	if err := w.registry.Register(ctx, w.ID); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}

	stopSignals := w.watchSignals()
	defer close(stopSignals)

	var pruneStop chan struct{}
	if w.config.PruneInterval > 0 {
		pruneStop = w.runPruner(ctx)
		defer close(pruneStop)
	}

	loopErr := w.loop(ctx)

	if err := w.unregister(ctx); err != nil {
		w.logf("error", "failed to unregister worker", "error", err)
	}
	return loopErr
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if w.state.isShuttingDown() {
			return nil
		}
		if w.state.isPaused() {
			time.Sleep(100 * time.Millisecond)
			continue
		}

		queue, env, err := w.reserve(ctx)
		if err != nil {
			w.logf("error", "reserve failed", "error", err)
			if _, ok := err.(*rqerrors.RedisUnavailable); ok && w.config.ShutdownOnReserveError {
				return err
			}
			if w.config.Interval == 0 {
				return nil
			}
			time.Sleep(w.config.Interval)
			continue
		}

		if env == nil {
			if w.config.Interval == 0 {
				return nil
			}
			if !w.config.Blocking {
				time.Sleep(w.config.Interval)
			}
			continue
		}

		w.processJob(ctx, queue, env)
	}
}

func (w *Worker) resolvedQueues(ctx context.Context) ([]string, error) {
	return w.resolver.Resolve(ctx, w.Patterns)
}

// reserve obtains the next envelope, blocking on BLPOP across the resolved
// queue list when Config.Blocking is set, otherwise polling each resolved
// queue in order and taking the first non-empty one (spec.md §4.4 step 2).
func (w *Worker) reserve(ctx context.Context) (string, *rqjob.Envelope, error) {
	queues, err := w.resolvedQueues(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(queues) == 0 {
		return "", nil, nil
	}

	if w.config.Blocking {
		name, env, err := w.queue.BLPop(ctx, queues, w.config.Interval)
		return name, env, err
	}

	for _, name := range queues {
		env, err := w.queue.Pop(ctx, name)
		if err != nil {
			return "", nil, err
		}
		if env != nil {
			return name, env, nil
		}
	}
	return "", nil, nil
}

func (w *Worker) processJob(ctx context.Context, queue string, env *rqjob.Envelope) {
	d := &rqjob.Descriptor{
		Queue:    queue,
		Envelope: env,
		WorkerID: w.ID,
		Track:    true,
		Tracker:  w.tracker,
		Stats:    w.stats,
		Failures: w.failures,
		Events:   w.events,
	}

	if w.events != nil {
		w.events.Fire(ctx, "beforeFork", d)
	}

	w.setCurrent(d)
	defer w.setCurrent(nil)

	payload, _ := env.Encode()
	if err := w.registry.WorkingOn(ctx, w.ID, queue, payload); err != nil {
		w.logf("error", "failed to record working-on state", "error", err)
	}
	if err := d.UpdateStatus(ctx, rqjob.StatusRunning); err != nil {
		w.logf("error", "failed to update status to running", "error", err)
	}

	child, err := w.forker.Fork(ctx, ExecArgs{
		Queue:    queue,
		Envelope: env,
		WorkerID: w.ID,
		Track:    d.Track,
	})
	if err != nil {
		w.logf("error", "fork failed", "error", err)
		if err := w.registry.DoneWorking(ctx, w.ID); err != nil {
			w.logf("error", "failed to clear working-on state", "error", err)
		}
		return
	}

	w.setChild(child)
	defer w.setChild(nil)

	code, sig, waitErr := child.Wait()
	if waitErr != nil {
		w.logf("error", "waiting for child failed", "error", waitErr)
	} else if sig != "" {
		_ = d.Fail(ctx, &rqerrors.DirtyExit{Signal: sig})
	} else if code != 0 {
		_ = d.Fail(ctx, &rqerrors.DirtyExit{Code: code})
	}

	if err := w.registry.DoneWorking(ctx, w.ID); err != nil {
		w.logf("error", "failed to clear working-on state", "error", err)
	}
}

func (w *Worker) setChild(c ChildProcess) {
	w.childMu.Lock()
	w.child = c
	w.childMu.Unlock()
}

func (w *Worker) setCurrent(d *rqjob.Descriptor) {
	w.currentMu.Lock()
	w.current = d
	w.currentMu.Unlock()
}

// unregister fails any in-flight job with DirtyExit, then removes the
// worker's registry entries, per spec.md §4.4's shutdown path.
func (w *Worker) unregister(ctx context.Context) error {
	w.currentMu.Lock()
	current := w.current
	w.currentMu.Unlock()
	if current != nil {
		_ = current.Fail(ctx, &rqerrors.DirtyExit{Signal: "shutdown"})
	}
	return w.registry.Unregister(ctx, w.ID)
}

func (w *Worker) runPruner(ctx context.Context) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(w.config.PruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				pruned, err := w.registry.Prune(ctx, w.Hostname, w.PID, rqregistry.ProcessTablePIDs)
				if err != nil {
					w.logf("error", "prune failed", "error", err)
					continue
				}
				if len(pruned) > 0 {
					w.logf("info", "pruned dead workers", "count", len(pruned))
				}
			case <-stop:
				return
			}
		}
	}()
	return stop
}
