package rqqueue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/resquego/resque/internal/rqjob"
)

func pushN(t *testing.T, q *Queue, name string, classes []string) {
	t.Helper()
	ctx := context.Background()
	for _, c := range classes {
		env, err := rqjob.NewEnvelope(c, "", nil)
		require.NoError(t, err)
		require.NoError(t, q.Push(ctx, name, env))
	}
}

func drainClasses(t *testing.T, q *Queue, name string) []string {
	t.Helper()
	ctx := context.Background()
	var got []string
	for {
		env, err := q.Pop(ctx, name)
		require.NoError(t, err)
		if env == nil {
			break
		}
		got = append(got, env.Class)
	}
	return got
}

func TestDequeueAllClearsQueue(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	pushN(t, q, "jobs", []string{"A", "B", "C"})

	n, err := q.Dequeue(ctx, "jobs", nil, "worker-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	size, err := q.Size(ctx, "jobs")
	require.NoError(t, err)
	require.Equal(t, int64(0), size)
}

func TestSafeDequeueRemovesMatchesAndPreservesOrder(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	pushN(t, q, "jobs", []string{"A", "B", "C", "B", "D"})

	n, err := q.Dequeue(ctx, "jobs", []Predicate{{Class: "B"}}, "worker-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	remaining := drainClasses(t, q, "jobs")
	require.Equal(t, []string{"A", "C", "D"}, remaining)
}

func TestSafeDequeueByClassAndArgs(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	e1, err := rqjob.NewEnvelope("Send", "id-1", map[string]interface{}{"to": "a@x.com"})
	require.NoError(t, err)
	e2, err := rqjob.NewEnvelope("Send", "id-2", map[string]interface{}{"to": "b@x.com"})
	require.NoError(t, err)
	e3, err := rqjob.NewEnvelope("Send", "id-3", map[string]interface{}{"to": "a@x.com", "cc": "z@x.com"})
	require.NoError(t, err)

	require.NoError(t, q.Push(ctx, "mail", e1))
	require.NoError(t, q.Push(ctx, "mail", e2))
	require.NoError(t, q.Push(ctx, "mail", e3))

	n, err := q.Dequeue(ctx, "mail", []Predicate{{Class: "Send", Args: map[string]interface{}{"to": "a@x.com"}}}, "worker-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	remaining := drainClasses(t, q, "mail")
	require.Equal(t, []string{"Send"}, remaining)
}

func TestSafeDequeueNoMatchLeavesQueueIntact(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	pushN(t, q, "jobs", []string{"A", "B", "C"})

	n, err := q.Dequeue(ctx, "jobs", []Predicate{{Class: "Z"}}, "worker-1")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	remaining := drainClasses(t, q, "jobs")
	require.Equal(t, []string{"A", "B", "C"}, remaining)
}
