// Package rqregistry tracks live workers in Redis and prunes entries for
// workers no longer present in this host's process table, per spec.md
// §3 and §4.6.
package rqregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resquego/resque/internal/redisx"
)

// ID builds the canonical worker id "<hostname>:<pid>:<queue-pattern>".
func ID(hostname string, pid int, patterns []string) string {
	return fmt.Sprintf("%s:%d:%s", hostname, pid, strings.Join(patterns, ","))
}

// Hostname returns the OS hostname, or "localhost" if it cannot be read.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}

// Registry records and queries the set of live workers.
type Registry struct {
	redis *redisx.Adapter
}

// New builds a Registry backed by the given adapter.
func New(a *redisx.Adapter) *Registry {
	return &Registry{redis: a}
}

func (r *Registry) workersKey() string          { return r.redis.Key("workers") }
func (r *Registry) startedKey(id string) string { return r.redis.Key("worker:" + id + ":started") }
func (r *Registry) workingKey(id string) string { return r.redis.Key("worker:" + id) }

// Register adds id to the live worker set and stamps its start time.
func (r *Registry) Register(ctx context.Context, id string) error {
	started := time.Now().Format("2006-01-02 15:04:05 -0700")
	workersKey, startedKey := r.workersKey(), r.startedKey(id)
	return r.redis.Do(ctx, "registry.register", func(c *redis.Client) error {
		pipe := c.Pipeline()
		pipe.SAdd(ctx, workersKey, id)
		pipe.Set(ctx, startedKey, started, 0)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// Unregister removes id and all of its worker-scoped keys.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	workersKey := r.workersKey()
	startedKey := r.startedKey(id)
	workingKey := r.workingKey(id)
	statKeys := []string{
		r.redis.Key("stat:processed:" + id),
		r.redis.Key("stat:failed:" + id),
	}
	return r.redis.Do(ctx, "registry.unregister", func(c *redis.Client) error {
		pipe := c.Pipeline()
		pipe.SRem(ctx, workersKey, id)
		pipe.Del(ctx, startedKey)
		pipe.Del(ctx, workingKey)
		for _, k := range statKeys {
			pipe.Del(ctx, k)
		}
		_, err := pipe.Exec(ctx)
		return err
	})
}

// WorkingPayload is the JSON value stored at worker:<id> while a job is
// in flight.
type WorkingPayload struct {
	Queue   string          `json:"queue"`
	RunAt   string          `json:"run_at"`
	Payload json.RawMessage `json:"payload"`
}

// WorkingOn records that id is currently processing payload from queue.
func (r *Registry) WorkingOn(ctx context.Context, id, queue string, payload json.RawMessage) error {
	wp := WorkingPayload{
		Queue:   queue,
		RunAt:   time.Now().Format("2006-01-02 15:04:05 -0700"),
		Payload: payload,
	}
	data, err := json.Marshal(wp)
	if err != nil {
		return err
	}
	key := r.workingKey(id)
	return r.redis.Do(ctx, "registry.workingon", func(c *redis.Client) error {
		return c.Set(ctx, key, data, 0).Err()
	})
}

// DoneWorking clears id's in-flight record. The processed counters are
// incremented by rqjob.Descriptor.Perform when a job completes.
func (r *Registry) DoneWorking(ctx context.Context, id string) error {
	key := r.workingKey(id)
	return r.redis.Do(ctx, "registry.doneworking", func(c *redis.Client) error {
		return c.Del(ctx, key).Err()
	})
}

// Working returns the in-flight payload for id, or nil if the worker is
// idle.
func (r *Registry) Working(ctx context.Context, id string) (*WorkingPayload, error) {
	key := r.workingKey(id)
	var wp *WorkingPayload
	err := r.redis.Do(ctx, "registry.working", func(c *redis.Client) error {
		raw, e := c.Get(ctx, key).Result()
		if redisx.IsNil(e) {
			return nil
		}
		if e != nil {
			return e
		}
		var parsed WorkingPayload
		if e := json.Unmarshal([]byte(raw), &parsed); e != nil {
			return e
		}
		wp = &parsed
		return nil
	})
	return wp, err
}

// IDs returns every registered worker id.
func (r *Registry) IDs(ctx context.Context) ([]string, error) {
	key := r.workersKey()
	var ids []string
	err := r.redis.Do(ctx, "registry.ids", func(c *redis.Client) error {
		var e error
		ids, e = c.SMembers(ctx, key).Result()
		return e
	})
	return ids, err
}

// parseID splits a worker id into host, pid, and queue pattern.
func parseID(id string) (host string, pid int, ok bool) {
	parts := strings.SplitN(id, ":", 3)
	if len(parts) < 2 {
		return "", 0, false
	}
	p, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, false
	}
	return parts[0], p, true
}

// LivePIDs reports which host process ids are currently alive. Implementations
// shell out to the host's process table (see ProcessTablePIDs).
type LivePIDs func() (map[int]bool, error)

// Prune unregisters every worker whose id names this host and a pid absent
// from live, skipping selfPID (this process's own id).
func (r *Registry) Prune(ctx context.Context, hostname string, selfPID int, live LivePIDs) ([]string, error) {
	ids, err := r.IDs(ctx)
	if err != nil {
		return nil, err
	}

	var alive map[int]bool
	var pruned []string
	for _, id := range ids {
		host, pid, ok := parseID(id)
		if !ok || host != hostname || pid == selfPID {
			continue
		}
		if alive == nil {
			alive, err = live()
			if err != nil {
				return pruned, err
			}
		}
		if alive[pid] {
			continue
		}
		if err := r.Unregister(ctx, id); err != nil {
			return pruned, err
		}
		pruned = append(pruned, id)
	}
	return pruned, nil
}
