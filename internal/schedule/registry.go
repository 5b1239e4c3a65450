package schedule

import (
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleIDPattern validates schedule IDs (alphanumeric, underscores, hyphens).
var scheduleIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Registry stores and manages named recurring schedules.
type Registry struct {
	mu        sync.RWMutex
	schedules map[string]*Schedule
	parser    cron.Parser
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		schedules: make(map[string]*Schedule),
		parser:    cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Register adds a schedule to the registry.
func (r *Registry) Register(s *Schedule) error {
	if err := r.validate(s); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.schedules[s.ID]; exists {
		return fmt.Errorf("schedule with ID %s already exists", s.ID)
	}

	if s.Timezone == "" {
		s.Timezone = "UTC"
	}

	r.schedules[s.ID] = s
	return nil
}

// MustRegister registers a schedule, panicking on error. Useful for
// initialization-time schedule registration.
func (r *Registry) MustRegister(s *Schedule) {
	if err := r.Register(s); err != nil {
		panic(fmt.Sprintf("failed to register schedule: %v", err))
	}
}

// Get retrieves a schedule by ID.
func (r *Registry) Get(id string) (*Schedule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, exists := r.schedules[id]
	return s, exists
}

// List returns all registered schedules.
func (r *Registry) List() []*Schedule {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schedules := make([]*Schedule, 0, len(r.schedules))
	for _, s := range r.schedules {
		schedules = append(schedules, s)
	}
	return schedules
}

// Count returns the number of registered schedules.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.schedules)
}

// NextRun calculates the next run time for a schedule after the given time.
func (r *Registry) NextRun(s *Schedule, after time.Time) (time.Time, error) {
	cronSchedule, err := r.parser.Parse(s.Cron)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse cron expression: %w", err)
	}

	loc := time.UTC
	if s.Timezone != "" && s.Timezone != "UTC" {
		loc, err = time.LoadLocation(s.Timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone %s: %w", s.Timezone, err)
		}
	}

	afterInTz := after.In(loc)
	next := cronSchedule.Next(afterInTz)
	return next, nil
}

func (r *Registry) validate(s *Schedule) error {
	if s.ID == "" {
		return fmt.Errorf("schedule ID cannot be empty")
	}
	if !scheduleIDPattern.MatchString(s.ID) {
		return fmt.Errorf("schedule ID must contain only alphanumeric characters, underscores, and hyphens")
	}

	if s.Cron == "" {
		return fmt.Errorf("cron expression cannot be empty")
	}
	if _, err := r.parser.Parse(s.Cron); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", s.Cron, err)
	}

	if s.Queue == "" {
		return fmt.Errorf("queue cannot be empty")
	}
	if s.Class == "" {
		return fmt.Errorf("job class cannot be empty")
	}

	if s.Timezone != "" && s.Timezone != "UTC" {
		if _, err := time.LoadLocation(s.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", s.Timezone, err)
		}
	}

	return nil
}
