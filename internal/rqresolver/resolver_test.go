package rqresolver

import (
	"context"
	"sort"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/resquego/resque/internal/redisx"
	"github.com/resquego/resque/internal/rqjob"
	"github.com/resquego/resque/internal/rqqueue"
)

func newTestResolver(t *testing.T) (*Resolver, *rqqueue.Queue) {
	t.Helper()
	mr := miniredis.RunT(t)
	a, err := redisx.New(redisx.Options{URL: "redis://" + mr.Addr(), Prefix: "rq"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	q := rqqueue.New(a)
	return New(q), q
}

func registerQueues(t *testing.T, q *rqqueue.Queue, names ...string) {
	t.Helper()
	ctx := context.Background()
	for _, n := range names {
		env, err := rqjob.NewEnvelope("Noop", "", nil)
		require.NoError(t, err)
		require.NoError(t, q.Push(ctx, n, env))
	}
}

func TestResolveLiteralsPassThroughWithoutRedis(t *testing.T) {
	r, _ := newTestResolver(t)
	got, err := r.Resolve(context.Background(), []string{"high", "low"})
	require.NoError(t, err)
	require.Equal(t, []string{"high", "low"}, got)
}

func TestResolveWildcardExpandsRemainingQueues(t *testing.T) {
	r, q := newTestResolver(t)
	registerQueues(t, q, "high", "low", "mail")

	got, err := r.Resolve(context.Background(), []string{"high", "*"})
	require.NoError(t, err)
	require.Equal(t, "high", got[0])
	rest := append([]string(nil), got[1:]...)
	sort.Strings(rest)
	require.Equal(t, []string{"low", "mail"}, rest)
}

func TestResolveExclusionRemovesMatches(t *testing.T) {
	r, q := newTestResolver(t)
	registerQueues(t, q, "high", "low", "mail_bulk", "mail_urgent")

	got, err := r.Resolve(context.Background(), []string{"*", "!mail_*"})
	require.NoError(t, err)
	sort.Strings(got)
	require.Equal(t, []string{"high", "low"}, got)
}

func TestResolvePreservesLiteralPriorityOrder(t *testing.T) {
	r, q := newTestResolver(t)
	registerQueues(t, q, "a", "b", "c")

	got, err := r.Resolve(context.Background(), []string{"c", "a", "*"})
	require.NoError(t, err)
	require.Equal(t, "c", got[0])
	require.Equal(t, "a", got[1])
	require.Len(t, got, 3)
}
