package schedule

import (
	"encoding/json"
	"time"
)

// Schedule is a named, cron-driven recurring job. Each tick that is due
// rides on top of the delayed-job extension: the scheduler calls
// EnqueueAt with the current time once a run falls due rather than pushing
// directly onto the target queue.
type Schedule struct {
	// ID is a unique identifier for the schedule.
	ID string

	// Cron expression (standard 5-field: minute hour day month weekday).
	// Examples:
	//   "0 * * * *"     - Every hour at minute 0
	//   "*/15 * * * *"  - Every 15 minutes
	//   "0 9 * * 1"     - Every Monday at 9:00 AM
	Cron string

	// Queue is the target queue name the job is enqueued onto.
	Queue string

	// Class is the job class name (rqjob.Envelope.Class).
	Class string

	// Args is the job's single positional argument, JSON-encoded. Leave
	// nil to enqueue with no argument.
	Args json.RawMessage

	// Timezone for cron evaluation (default: UTC). Must be a valid IANA
	// timezone, e.g. "America/New_York".
	Timezone string

	// Enabled allows disabling a schedule without removing it.
	Enabled bool

	// Track requests a status record (WAITING, then RUNNING/COMPLETE/FAILED)
	// for each run this schedule enqueues, per create()'s trackStatus flag
	// (spec.md §4.3). Most recurring schedules leave this false.
	Track bool

	// Description is for logging/monitoring only.
	Description string
}

// State is the runtime state of a schedule, persisted in Redis so a
// restarted scheduler instance picks up where the last one left off.
type State struct {
	ID          string
	LastRun     time.Time
	NextRun     time.Time
	RunCount    int64
	LastError   string
	LastSuccess time.Time
}
