package rqerrors

import "fmt"

// RedisUnavailable wraps any error surfaced by the Redis client that isn't a
// transient LOADING reply (those are retried internally by redisx.Adapter).
type RedisUnavailable struct {
	Op  string
	Err error
}

func (e *RedisUnavailable) Error() string {
	return fmt.Sprintf("redis unavailable during %s: %v", e.Op, e.Err)
}

func (e *RedisUnavailable) Unwrap() error { return e.Err }

// NewRedisUnavailable wraps err as a RedisUnavailable for the given operation.
func NewRedisUnavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &RedisUnavailable{Op: op, Err: err}
}

// MalformedEnvelope is returned when a popped list entry does not decode as
// a job envelope. Callers treat this the same as an empty pop so a single
// poison message never blocks the rest of the queue.
type MalformedEnvelope struct {
	Raw []byte
	Err error
}

func (e *MalformedEnvelope) Error() string {
	return fmt.Sprintf("malformed job envelope: %v", e.Err)
}

func (e *MalformedEnvelope) Unwrap() error { return e.Err }

// JobNotCreatable is returned by a Factory when the named job class cannot
// be resolved or instantiated, or the resulting value has no Perform method.
type JobNotCreatable struct {
	Class string
	Err   error
}

func (e *JobNotCreatable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job class %q not creatable: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("job class %q not creatable", e.Class)
}

func (e *JobNotCreatable) Unwrap() error { return e.Err }

// DontPerform is returned by a BeforePerform or SetUp hook to cooperatively
// cancel a single job. It is not a failure: no stat is incremented and the
// job's status is never set to FAILED.
type DontPerform struct {
	Reason string
}

func (e *DontPerform) Error() string {
	if e.Reason == "" {
		return "job skipped: DontPerform"
	}
	return fmt.Sprintf("job skipped: %s", e.Reason)
}

// DirtyExit represents a forked job process that exited with a non-zero
// status, or that was killed by a signal before it could report its own
// failure.
type DirtyExit struct {
	Code   int
	Signal string
}

func (e *DirtyExit) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("job process killed by signal %s", e.Signal)
	}
	return fmt.Sprintf("job process exited with status %d", e.Code)
}

// JobThrew wraps any error or panic that escaped a job's Perform or TearDown.
type JobThrew struct {
	Class string
	Err   error
}

func (e *JobThrew) Error() string {
	return fmt.Sprintf("job %s threw: %v", e.Class, e.Err)
}

func (e *JobThrew) Unwrap() error { return e.Err }

// ConfigError signals an invalid producer-supplied argument: an empty class
// or queue name, or a malformed schedule timestamp.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// NewConfigError builds a ConfigError with a formatted message.
func NewConfigError(format string, args ...interface{}) error {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}
