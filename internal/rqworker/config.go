// Package rqworker implements the worker lifecycle from spec.md §4.4-4.5:
// the fork/wait/signal main loop, multi-queue reservation, and graceful
// shutdown escalation that together make up the system's core.
package rqworker

import "time"

// Config tunes a Worker's loop behaviour. Zero values are not valid defaults
// for every field; use DefaultConfig as a starting point.
type Config struct {
	// Interval is the sleep between empty poll attempts in non-blocking
	// mode. Zero selects single-pass mode: the loop exits the first time
	// reservation finds nothing, which test harnesses rely on.
	Interval time.Duration

	// Blocking selects BLPOP-based reservation over round-robin polling.
	Blocking bool

	// GracefulDelay is how long a worker waits after TERM before escalating
	// to the graceful signal (or KILL, if none is configured).
	GracefulDelay time.Duration

	// GracefulSignal is sent to a still-running child on the first
	// escalation after TERM. Empty means escalate straight to KILL.
	GracefulSignal string

	// GracefulDelayTwo is how long the worker waits after sending
	// GracefulSignal before escalating to KILL.
	GracefulDelayTwo time.Duration

	// ShutdownOnReserveError causes the main loop to exit (rather than
	// keep retrying) the first time reservation reports RedisUnavailable.
	ShutdownOnReserveError bool

	// PruneInterval, if non-zero, runs the registry pruner in a background
	// goroutine on this period. Zero disables background pruning.
	PruneInterval time.Duration
}

// DefaultConfig matches the reference implementation's defaults (spec.md
// §4.5): a 5 s poll interval, 5 s and 2 s graceful escalation delays.
func DefaultConfig() Config {
	return Config{
		Interval:         5 * time.Second,
		GracefulDelay:    5 * time.Second,
		GracefulDelayTwo: 2 * time.Second,
	}
}
