// Package rqerrors collects the error taxonomy shared by every resque
// package: Redis-unavailability, malformed wire data, job-factory failures,
// cooperative job skips, and panic recovery for job handlers run inline or
// inside a forked child.
package rqerrors

import (
	"fmt"
	"runtime/debug"
)

// PanicError represents an error recovered from a panic inside job code.
type PanicError struct {
	Value      interface{}
	Stacktrace string
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", p.Value)
}

// RecoverPanic recovers from a panic and returns it as an error with a stack
// trace. Returns nil if no panic occurred. recover only stops a panic when
// the deferred function calls it itself, so RecoverPanic stops one only when
// it is the deferred call (defer rqerrors.RecoverPanic()), which discards the
// returned error; called from inside a deferred closure it returns nil and
// the panic continues.
func RecoverPanic() error {
	if r := recover(); r != nil {
		return &PanicError{
			Value:      r,
			Stacktrace: string(debug.Stack()),
		}
	}
	return nil
}

// FormatPanicForLog returns a formatted string suitable for logging.
func FormatPanicForLog(panicErr *PanicError) string {
	return fmt.Sprintf("PANIC: %v\n\nStack Trace:\n%s", panicErr.Value, panicErr.Stacktrace)
}
