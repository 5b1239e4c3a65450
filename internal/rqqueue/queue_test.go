package rqqueue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/resquego/resque/internal/redisx"
	"github.com/resquego/resque/internal/rqjob"
)

func newTestQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	a, err := redisx.New(redisx.Options{URL: "redis://" + mr.Addr(), Prefix: "rq"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return New(a), mr
}

func TestPushPopRoundTrip(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	env, err := rqjob.NewEnvelope("SendEmail", "abc123", map[string]string{"to": "a@b.com"})
	require.NoError(t, err)

	size, err := q.Size(ctx, "mail")
	require.NoError(t, err)
	require.NoError(t, q.Push(ctx, "mail", env))

	got, err := q.Pop(ctx, "mail")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "SendEmail", got.Class)
	require.Equal(t, "abc123", got.ID)

	again, err := q.Pop(ctx, "mail")
	require.NoError(t, err)
	require.Nil(t, again)

	afterSize, err := q.Size(ctx, "mail")
	require.NoError(t, err)
	require.Equal(t, size, afterSize)
}

func TestPushRegistersQueueName(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	env, err := rqjob.NewEnvelope("Noop", "", nil)
	require.NoError(t, err)
	require.NoError(t, q.Push(ctx, "background", env))

	names, err := q.Names(ctx)
	require.NoError(t, err)
	require.Contains(t, names, "background")
}

func TestMalformedEntryTreatedAsEmpty(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	_, err := mr.Lpush("rq:queue:broken", "{not json")
	require.NoError(t, err)

	env, err := q.Pop(ctx, "broken")
	require.NoError(t, err)
	require.Nil(t, env)
}
