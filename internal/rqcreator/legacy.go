package rqcreator

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/resquego/resque/internal/rqerrors"
	"github.com/resquego/resque/internal/rqjob"
)

// LegacyCreator builds the zero value of a registered job type and
// unmarshals the envelope's single positional argument into it, the default
// creator behaviour from spec.md §4.3 ("look up the class by name; error if
// missing or lacking perform; instantiate; attach job/args/queue fields").
// The zero value must implement rqjob.Instance on its pointer receiver.
type LegacyCreator struct {
	mu     sync.RWMutex
	types  map[string]reflect.Type
}

func NewLegacyCreator() *LegacyCreator {
	return &LegacyCreator{types: make(map[string]reflect.Type)}
}

// RegisterType associates class with the Go type of sample, which must
// implement rqjob.Instance via a pointer receiver and expose an exported
// Args field (any JSON-unmarshalable type) to receive the job's argument.
func (c *LegacyCreator) RegisterType(class string, sample rqjob.Instance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	c.types[class] = t
}

// Create instantiates the type registered for env.Class, unmarshals the
// envelope's argument into its Args field if present, and sets Queue/JobID
// fields when the type exposes them.
func (c *LegacyCreator) Create(ctx context.Context, env *rqjob.Envelope) (rqjob.Instance, error) {
	c.mu.RLock()
	t, ok := c.types[env.Class]
	c.mu.RUnlock()
	if !ok {
		return nil, &rqerrors.JobNotCreatable{
			Class: env.Class,
			Err:   fmt.Errorf("no type registered for class %q", env.Class),
		}
	}

	v := reflect.New(t)
	if arg, present := env.Argument(); present {
		if f := v.Elem().FieldByName("Args"); f.IsValid() && f.CanSet() {
			if err := unmarshalInto(arg, f); err != nil {
				return nil, &rqerrors.JobNotCreatable{Class: env.Class, Err: err}
			}
		}
	}
	if f := v.Elem().FieldByName("Queue"); f.IsValid() && f.CanSet() && f.Kind() == reflect.String {
		f.SetString(env.Class)
	}
	if f := v.Elem().FieldByName("JobID"); f.IsValid() && f.CanSet() && f.Kind() == reflect.String {
		f.SetString(env.ID)
	}

	instance, ok := v.Interface().(rqjob.Instance)
	if !ok {
		return nil, &rqerrors.JobNotCreatable{
			Class: env.Class,
			Err:   fmt.Errorf("type registered for class %q does not implement Perform", env.Class),
		}
	}
	return instance, nil
}

func unmarshalInto(raw json.RawMessage, field reflect.Value) error {
	ptr := reflect.New(field.Type())
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return err
	}
	field.Set(ptr.Elem())
	return nil
}
