package infra

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestGroup_SingleCaller(t *testing.T) {
	var g Group[string, int]

	val, err, shared := g.Do("a", func() (int, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
	if shared {
		t.Errorf("single caller should not be shared")
	}
}

func TestGroup_CoalescesConcurrentCallers(t *testing.T) {
	var g Group[string, int]
	var executions atomic.Int32

	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		g.Do("key", func() (int, error) {
			close(started)
			<-release
			executions.Add(1)
			return 7, nil
		})
	}()
	<-started

	const waiters = 10
	var wg sync.WaitGroup
	results := make([]int, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err, _ := g.Do("key", func() (int, error) {
				executions.Add(1)
				return 7, nil
			})
			if err != nil {
				t.Errorf("waiter %d: unexpected error: %v", i, err)
			}
			results[i] = v
		}(i)
	}

	// Give the waiters time to attach before releasing the owner.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := executions.Load(); n != 1 {
		t.Errorf("expected exactly 1 execution, got %d", n)
	}
	for i, v := range results {
		if v != 7 {
			t.Errorf("waiter %d: expected 7, got %d", i, v)
		}
	}
}

func TestGroup_SharedError(t *testing.T) {
	var g Group[string, int]
	wantErr := errors.New("boom")

	_, err, _ := g.Do("k", func() (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected boom error, got %v", err)
	}
}

func TestGroup_EntryRemovedAfterSettle(t *testing.T) {
	var g Group[string, int]

	g.Do("k", func() (int, error) { return 1, nil })
	g.Do("k", func() (int, error) { return 2, nil })

	stats := g.Stats()
	if stats.Misses != 2 {
		t.Errorf("sequential calls should both execute, got %d misses", stats.Misses)
	}
	if stats.Hits != 0 {
		t.Errorf("sequential calls should not share, got %d hits", stats.Hits)
	}
}

func TestGroup_CancelledWaiterDetaches(t *testing.T) {
	var g Group[string, int]

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		g.Do("k", func() (int, error) {
			close(started)
			<-release
			return 5, nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err, _ := g.DoContext(ctx, "k", func() (int, error) { return 5, nil })
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled waiter did not detach")
	}

	// The owner must still settle normally for other callers.
	close(release)
}

func TestGroup_Forget(t *testing.T) {
	var g Group[string, int]

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		g.Do("k", func() (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	g.Forget("k")

	var executed atomic.Bool
	done := make(chan struct{})
	go func() {
		g.Do("k", func() (int, error) {
			executed.Store(true)
			return 2, nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("call after Forget should not wait for the forgotten owner")
	}
	if !executed.Load() {
		t.Error("call after Forget should execute")
	}
	close(release)
}

func TestGroupStats_HitRate(t *testing.T) {
	s := GroupStats{Hits: 3, Misses: 1}
	if got := s.HitRate(); got != 0.75 {
		t.Errorf("expected 0.75, got %f", got)
	}
	if got := (GroupStats{}).HitRate(); got != 0 {
		t.Errorf("expected 0 for empty stats, got %f", got)
	}
}
