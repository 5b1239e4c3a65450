// Package rqcreator implements spec.md §4.3's job factory: a capability that
// maps a job class name to an executable rqjob.Instance.
package rqcreator

import (
	"context"
	"fmt"
	"sync"

	"github.com/resquego/resque/internal/rqerrors"
	"github.com/resquego/resque/internal/rqjob"
)

// Constructor builds a fresh rqjob.Instance for one envelope.
type Constructor func(ctx context.Context, env *rqjob.Envelope) (rqjob.Instance, error)

// Registry is a Factory backed by explicit Register calls, the idiomatic
// replacement for the reference implementation's "look up a global class by
// name" default creator (§4.3).
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register associates class with constructor. Registering the same class
// twice replaces the previous constructor.
func (r *Registry) Register(class string, constructor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[class] = constructor
}

// Create builds an Instance for env's class, or a JobNotCreatable error if no
// constructor was registered for it.
func (r *Registry) Create(ctx context.Context, env *rqjob.Envelope) (rqjob.Instance, error) {
	r.mu.RLock()
	constructor, ok := r.ctors[env.Class]
	r.mu.RUnlock()
	if !ok {
		return nil, &rqerrors.JobNotCreatable{
			Class: env.Class,
			Err:   fmt.Errorf("no constructor registered for class %q", env.Class),
		}
	}
	return constructor(ctx, env)
}
