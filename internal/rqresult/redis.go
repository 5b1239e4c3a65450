package rqresult

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/resquego/resque/internal/redisx"
	"github.com/resquego/resque/internal/rqjob"
	"github.com/resquego/resque/internal/serialization"
)

// RedisBackend implements Backend over Redis, using HSET for the result
// hash and PUBLISH/SUBSCRIBE to wake WaitForResult callers without polling.
type RedisBackend struct {
	redis      *redisx.Adapter
	successTTL time.Duration
	failureTTL time.Duration
	serializer *serialization.Serializer
}

// NewRedisBackend builds a RedisBackend that stores result values as JSON.
// successTTL/failureTTL bound how long a result survives before DeleteResult
// would have run anyway.
func NewRedisBackend(a *redisx.Adapter, successTTL, failureTTL time.Duration) *RedisBackend {
	return NewRedisBackendWithFormat(a, successTTL, failureTTL, serialization.FormatJSON)
}

// NewRedisBackendWithFormat builds a RedisBackend whose EncodeValue/
// DecodeValue helpers use format for the stored "value" field — FormatJSON
// for a plain Go value, or FormatProtobuf for a proto.Message result.
func NewRedisBackendWithFormat(a *redisx.Adapter, successTTL, failureTTL time.Duration, format serialization.PayloadFormat) *RedisBackend {
	return &RedisBackend{
		redis:      a,
		successTTL: successTTL,
		failureTTL: failureTTL,
		serializer: serialization.NewSerializer(format),
	}
}

// EncodeValue serializes v under the backend's configured format, ready to
// assign to Result.Value. A job's TearDown calls this before StoreResult.
func (r *RedisBackend) EncodeValue(v interface{}) (json.RawMessage, error) {
	encoded, err := r.serializer.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(encoded), nil
}

// DecodeValue deserializes a Result's Value into v, matching whatever format
// EncodeValue used to produce it.
func (r *RedisBackend) DecodeValue(value json.RawMessage, v interface{}) error {
	return r.serializer.Unmarshal(value, v)
}

func (r *RedisBackend) key(jobID string) string    { return r.redis.Key("result:" + jobID) }
func (r *RedisBackend) notifyKey(jobID string) string { return r.redis.Key("result:notify:" + jobID) }

// StoreResult writes result's fields into a Redis hash, sets its TTL based
// on success/failure, and publishes a "ready" notification.
func (r *RedisBackend) StoreResult(ctx context.Context, result *Result) error {
	data := map[string]interface{}{
		"status":       int(result.Status),
		"completed_at": result.CompletedAt.Format(time.RFC3339),
		"duration_ms":  result.Duration.Milliseconds(),
	}
	if result.IsSuccess() && len(result.Value) > 0 {
		data["value"] = string(result.Value)
	}
	if result.IsFailed() && result.Error != "" {
		data["error"] = result.Error
	}

	ttl := r.successTTL
	if result.IsFailed() {
		ttl = r.failureTTL
	}

	key := r.key(result.JobID)
	notifyKey := r.notifyKey(result.JobID)
	return r.redis.Do(ctx, "result.store", func(c *redis.Client) error {
		pipe := c.Pipeline()
		pipe.HSet(ctx, key, data)
		pipe.Expire(ctx, key, ttl)
		pipe.Publish(ctx, notifyKey, "ready")
		_, err := pipe.Exec(ctx)
		return err
	})
}

// GetResult reads the stored hash for jobID, returning nil if it has no
// fields (never stored, or its TTL already expired).
func (r *RedisBackend) GetResult(ctx context.Context, jobID string) (*Result, error) {
	key := r.key(jobID)
	var data map[string]string
	err := r.redis.Do(ctx, "result.get", func(c *redis.Client) error {
		var e error
		data, e = c.HGetAll(ctx, key).Result()
		return e
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	result := &Result{JobID: jobID}
	if s, ok := data["status"]; ok {
		n, _ := strconv.Atoi(s)
		result.Status = rqjob.Status(n)
	}
	if ts, ok := data["completed_at"]; ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			result.CompletedAt = parsed
		}
	}
	if ms, ok := data["duration_ms"]; ok {
		if n, err := strconv.ParseInt(ms, 10, 64); err == nil {
			result.Duration = time.Duration(n) * time.Millisecond
		}
	}
	if v, ok := data["value"]; ok {
		result.Value = json.RawMessage(v)
	}
	if e, ok := data["error"]; ok {
		result.Error = e
	}
	return result, nil
}

// WaitForResult returns immediately if a result already exists, otherwise
// subscribes to the job's notify channel and blocks until it fires or
// timeout elapses.
func (r *RedisBackend) WaitForResult(ctx context.Context, jobID string, timeout time.Duration) (*Result, error) {
	if existing, err := r.GetResult(ctx, jobID); err != nil || existing != nil {
		return existing, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pubsub := r.redis.Raw().Subscribe(waitCtx, r.notifyKey(jobID))
	defer func() { _ = pubsub.Close() }()

	select {
	case <-waitCtx.Done():
		return r.GetResult(ctx, jobID)
	case msg := <-pubsub.Channel():
		if msg != nil && msg.Payload == "ready" {
			return r.GetResult(ctx, jobID)
		}
	}
	return nil, nil
}

// DeleteResult removes jobID's stored result, if any.
func (r *RedisBackend) DeleteResult(ctx context.Context, jobID string) error {
	key := r.key(jobID)
	return r.redis.Do(ctx, "result.delete", func(c *redis.Client) error {
		return c.Del(ctx, key).Err()
	})
}

// Close closes the underlying Redis connection.
func (r *RedisBackend) Close() error {
	return r.redis.Close()
}
