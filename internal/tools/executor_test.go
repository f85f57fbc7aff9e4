package tools

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loomhq/loom/internal/cache"
	"github.com/loomhq/loom/internal/hostcheck"
)

type staticProvider struct {
	defs []Definition
}

func (p staticProvider) Fetch(context.Context) ([]Definition, error) {
	return p.defs, nil
}

func newTestExecutor(t *testing.T, defs []Definition, opts ExecutorOptions) *Executor {
	t.Helper()
	registry := NewRegistry(staticProvider{defs: defs}, nil)
	if err := registry.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh registry: %v", err)
	}
	store := cache.NewMemoryStore(cache.MemoryStoreOptions{MaxSize: 64})
	return NewExecutor(registry, store, hostcheck.New(nil), opts, nil, nil)
}

func getDef(name, url string) Definition {
	return Definition{Name: name, Method: http.MethodGet, URLTemplate: url}
}

func TestExecuteUnknownTool(t *testing.T) {
	exec := newTestExecutor(t, nil, ExecutorOptions{})
	_, err := exec.Execute(context.Background(), Call{Tool: "nope"})
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

func TestExecuteMissingArgumentFailsBeforeNetwork(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	def := getDef("budget", srv.URL+"?range={rangeDays}")
	def.RequiredArgs = []string{"rangeDays"}
	exec := newTestExecutor(t, []Definition{def}, ExecutorOptions{})

	_, err := exec.Execute(context.Background(), Call{Tool: "budget", Args: map[string]any{}})
	if !errors.Is(err, ErrMissingArgument) {
		t.Fatalf("expected ErrMissingArgument, got %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("upstream was called %d times, want 0", calls.Load())
	}
}

func TestExecuteNilArgumentCountsAsMissing(t *testing.T) {
	def := getDef("budget", "http://example.com/{id}")
	def.RequiredArgs = []string{"id"}
	exec := newTestExecutor(t, []Definition{def}, ExecutorOptions{})

	_, err := exec.Execute(context.Background(), Call{Tool: "budget", Args: map[string]any{"id": nil}})
	if !errors.Is(err, ErrMissingArgument) {
		t.Fatalf("expected ErrMissingArgument, got %v", err)
	}
}

func TestExecuteHostNotAllowed(t *testing.T) {
	def := getDef("meta", "http://metadata.google.internal/latest")
	exec := newTestExecutor(t, []Definition{def}, ExecutorOptions{})

	_, err := exec.Execute(context.Background(), Call{Tool: "meta"})
	if !errors.Is(err, hostcheck.ErrHostNotAllowed) {
		t.Fatalf("expected ErrHostNotAllowed, got %v", err)
	}
}

func TestExecuteRendersURLTemplate(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	def := getDef("lookup", srv.URL+"/items/{id}?q={query}")
	exec := newTestExecutor(t, []Definition{def}, ExecutorOptions{})

	res, err := exec.Execute(context.Background(), Call{
		Tool: "lookup",
		Args: map[string]any{"id": 42, "query": "a b"},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.OK() {
		t.Fatalf("status = %d, want 2xx", res.StatusCode)
	}
	if gotPath != "/items/42" {
		t.Errorf("path = %q, want /items/42", gotPath)
	}
	if gotQuery != "q=a+b" {
		t.Errorf("query = %q, want q=a+b", gotQuery)
	}
}

func TestExecuteCachedGetHitsUpstreamOnce(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"balance":120.5}`))
	}))
	defer srv.Close()

	def := getDef("balance", srv.URL+"/balance")
	def.CacheTTLSeconds = 60
	exec := newTestExecutor(t, []Definition{def}, ExecutorOptions{})

	first, err := exec.Execute(context.Background(), Call{Tool: "balance"})
	if err != nil {
		t.Fatalf("first execute: %v", err)
	}
	second, err := exec.Execute(context.Background(), Call{Tool: "balance"})
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
	if string(first.Body) != string(second.Body) {
		t.Errorf("cached body %q differs from original %q", second.Body, first.Body)
	}
	if second.StatusCode != http.StatusOK {
		t.Errorf("cached status = %d, want 200", second.StatusCode)
	}
}

func TestExecutePostIsNeverCached(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"done":true}`))
	}))
	defer srv.Close()

	def := Definition{Name: "buy", Method: http.MethodPost, URLTemplate: srv.URL + "/buy", CacheTTLSeconds: 60}
	exec := newTestExecutor(t, []Definition{def}, ExecutorOptions{})

	for i := 0; i < 2; i++ {
		if _, err := exec.Execute(context.Background(), Call{Tool: "buy", Args: map[string]any{"sku": "x"}}); err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
	}
	if calls.Load() != 2 {
		t.Errorf("upstream calls = %d, want 2", calls.Load())
	}
}

func TestExecuteCoalescesConcurrentCalls(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		w.Write([]byte(`{"n":1}`))
	}))
	defer srv.Close()

	def := getDef("slow", srv.URL+"/slow")
	def.CacheTTLSeconds = 60
	exec := newTestExecutor(t, []Definition{def}, ExecutorOptions{DefaultTimeout: 5 * time.Second})

	const waiters = 8
	var wg sync.WaitGroup
	errs := make([]error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = exec.Execute(context.Background(), Call{Tool: "slow"})
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"recovered":true}`))
	}))
	defer srv.Close()

	def := getDef("flaky", srv.URL+"/flaky")
	def.RetryCount = 3
	exec := newTestExecutor(t, []Definition{def}, ExecutorOptions{})

	res, err := exec.Execute(context.Background(), Call{Tool: "flaky"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.OK() {
		t.Fatalf("status = %d, want 2xx", res.StatusCode)
	}
	if calls.Load() != 3 {
		t.Errorf("upstream calls = %d, want 3", calls.Load())
	}
}

func TestExecuteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"missing"}`))
	}))
	defer srv.Close()

	def := getDef("lookup", srv.URL+"/lookup")
	def.RetryCount = 3
	exec := newTestExecutor(t, []Definition{def}, ExecutorOptions{})

	res, err := exec.Execute(context.Background(), Call{Tool: "lookup"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", res.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", calls.Load())
	}
}

func TestExecuteRejectsOversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"pad":"` + strings.Repeat("x", 2048) + `"}`))
	}))
	defer srv.Close()

	def := getDef("big", srv.URL+"/big")
	exec := newTestExecutor(t, []Definition{def}, ExecutorOptions{MaxResponseBytes: 1024})

	_, err := exec.Execute(context.Background(), Call{Tool: "big"})
	if !errors.Is(err, ErrResponseTooLarge) {
		t.Fatalf("expected ErrResponseTooLarge, got %v", err)
	}
}

func TestExecuteRejectsNonJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	def := getDef("html", srv.URL+"/html")
	exec := newTestExecutor(t, []Definition{def}, ExecutorOptions{})

	_, err := exec.Execute(context.Background(), Call{Tool: "html"})
	if !errors.Is(err, ErrInvalidToolPayload) {
		t.Fatalf("expected ErrInvalidToolPayload, got %v", err)
	}
}

func TestExecuteNormalizesEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	def := getDef("empty", srv.URL+"/empty")
	exec := newTestExecutor(t, []Definition{def}, ExecutorOptions{})

	res, err := exec.Execute(context.Background(), Call{Tool: "empty"})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if string(res.Body) != "{}" {
		t.Errorf("body = %q, want {}", res.Body)
	}
}

func TestCacheKeyIsolatesUsers(t *testing.T) {
	a := cacheKey("budget", "http://x/y", "user-1")
	b := cacheKey("budget", "http://x/y", "user-2")
	if a == b {
		t.Error("cache keys for different users must differ")
	}
	if !strings.HasPrefix(a, "toolcache:v1:budget:u:user-1:h:") {
		t.Errorf("unexpected key shape: %s", a)
	}
}

func TestExecutePerCallCacheTTLOverride(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"total": 1}`))
	}))
	defer srv.Close()

	// No definition TTL and no global default: only the call's TTL caches.
	def := getDef("budget", srv.URL)
	exec := newTestExecutor(t, []Definition{def}, ExecutorOptions{})

	for i := 0; i < 2; i++ {
		res, err := exec.Execute(context.Background(), Call{Tool: "budget", CacheTTLSeconds: 60})
		if err != nil {
			t.Fatalf("execute %d: %v", i, err)
		}
		if !res.OK() {
			t.Fatalf("status = %d, want 2xx", res.StatusCode)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("upstream was called %d times, want 1", calls.Load())
	}

	// Without the override the same call is not cached.
	if _, err := exec.Execute(context.Background(), Call{Tool: "budget"}); err != nil {
		t.Fatalf("execute uncached: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("upstream was called %d times, want 2", calls.Load())
	}
}
