package infra

import (
	"context"
	"sync"
	"sync/atomic"
)

// Group coalesces concurrent work by key: only one execution runs per key
// at a time, and every caller that arrives while it is in flight receives
// the same result (or the same error). The entry is removed once settled so
// the map does not grow without bound.
type Group[K comparable, V any] struct {
	mu    sync.Mutex
	calls map[K]*call[V]

	hits   atomic.Uint64 // callers that shared another caller's execution
	misses atomic.Uint64 // callers that performed the execution
}

type call[V any] struct {
	done   chan struct{}
	val    V
	err    error
	shared bool
}

// Do executes fn for key, suppressing duplicate concurrent executions.
// The third return value reports whether the result was shared with
// another caller.
func (g *Group[K, V]) Do(key K, fn func() (V, error)) (V, error, bool) {
	return g.DoContext(context.Background(), key, fn)
}

// DoContext is Do with caller cancellation. A cancelled waiter detaches and
// returns ctx.Err(); the in-flight execution keeps running for the callers
// that remain, so one caller's cancellation never poisons the shared result.
func (g *Group[K, V]) DoContext(ctx context.Context, key K, fn func() (V, error)) (V, error, bool) {
	g.mu.Lock()
	if g.calls == nil {
		g.calls = make(map[K]*call[V])
	}

	if c, ok := g.calls[key]; ok {
		c.shared = true
		g.mu.Unlock()
		g.hits.Add(1)
		select {
		case <-c.done:
			return c.val, c.err, true
		case <-ctx.Done():
			var zero V
			return zero, ctx.Err(), true
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.calls[key] = c
	g.mu.Unlock()
	g.misses.Add(1)

	c.val, c.err = fn()

	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
	close(c.done)

	return c.val, c.err, c.shared
}

// Forget drops the in-flight entry for key. Future calls to Do for this key
// will execute rather than wait for an earlier call to complete.
func (g *Group[K, V]) Forget(key K) {
	g.mu.Lock()
	delete(g.calls, key)
	g.mu.Unlock()
}

// Stats returns hit/miss counters for the group.
func (g *Group[K, V]) Stats() GroupStats {
	return GroupStats{
		Hits:   g.hits.Load(),
		Misses: g.misses.Load(),
	}
}

// GroupStats contains counters for a singleflight group.
type GroupStats struct {
	Hits   uint64 // calls that shared results
	Misses uint64 // calls that executed the function
}

// HitRate returns the share of calls that were coalesced (0.0 to 1.0).
func (s GroupStats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
