// Package rqresolver expands a worker's queue pattern list against the live
// queue registry, per spec.md §4.6: literals pass through untouched,
// wildcards and exclusions are resolved against SMEMBERS queues.
package rqresolver

import (
	"context"
	"math/rand"
	"regexp"
	"strings"

	"github.com/resquego/resque/internal/rqqueue"
)

// Resolver expands queue patterns using the live "queues" registry.
type Resolver struct {
	queue *rqqueue.Queue
}

// New builds a Resolver backed by the given queue store.
func New(q *rqqueue.Queue) *Resolver {
	return &Resolver{queue: q}
}

type token struct {
	raw        string
	isWildcard bool
}

// Resolve expands patterns into a concrete, ordered queue name list. If
// patterns contains no wildcards and no exclusions, it is returned
// unmodified without touching Redis.
func (r *Resolver) Resolve(ctx context.Context, patterns []string) ([]string, error) {
	var literals []token
	var exclusions []string
	hasWildcard := false

	for _, p := range patterns {
		switch {
		case strings.HasPrefix(p, "!"):
			exclusions = append(exclusions, strings.TrimPrefix(p, "!"))
		case strings.Contains(p, "*"):
			hasWildcard = true
			literals = append(literals, token{raw: p, isWildcard: true})
		default:
			literals = append(literals, token{raw: p})
		}
	}

	if !hasWildcard && len(exclusions) == 0 {
		out := make([]string, len(patterns))
		copy(out, patterns)
		return out, nil
	}

	live, err := r.queue.Names(ctx)
	if err != nil {
		return nil, err
	}
	rand.Shuffle(len(live), func(i, j int) { live[i], live[j] = live[j], live[i] })

	excludeRe, err := compileAny(exclusions)
	if err != nil {
		return nil, err
	}

	working := make([]string, 0, len(live))
	for _, name := range live {
		if excludeRe != nil && excludeRe.MatchString(name) {
			continue
		}
		working = append(working, name)
	}

	var out []string
	for _, t := range literals {
		if !t.isWildcard {
			out = append(out, t.raw)
			working = remove(working, t.raw)
			continue
		}
		re, err := globToRegexp(t.raw)
		if err != nil {
			return nil, err
		}
		var remaining []string
		for _, name := range working {
			if re.MatchString(name) {
				out = append(out, name)
			} else {
				remaining = append(remaining, name)
			}
		}
		working = remaining
	}

	return out, nil
}

func compileAny(globs []string) (*regexp.Regexp, error) {
	if len(globs) == 0 {
		return nil, nil
	}
	parts := make([]string, len(globs))
	for i, g := range globs {
		re, err := globToRegexp(g)
		if err != nil {
			return nil, err
		}
		parts[i] = re.String()
	}
	return regexp.Compile(strings.Join(parts, "|"))
}

func globToRegexp(pattern string) (*regexp.Regexp, error) {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, ".*")
	return regexp.Compile("^" + escaped + "$")
}

func remove(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}
