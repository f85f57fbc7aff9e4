package tools

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loomhq/loom/internal/cache"
	"github.com/loomhq/loom/internal/hostcheck"
	"github.com/loomhq/loom/internal/infra"
	"github.com/loomhq/loom/internal/observability"
	"github.com/loomhq/loom/internal/retry"
)

// ExecutorOptions carries the global defaults; per-tool catalog values
// override them.
type ExecutorOptions struct {
	DefaultTimeout   time.Duration
	DefaultRetries   int
	DefaultCacheTTL  time.Duration
	MaxResponseBytes int64
}

// Executor runs single tool calls with caching, request coalescing, retry
// and outbound limits.
type Executor struct {
	registry *Registry
	cache    cache.Store
	hosts    *hostcheck.Checker
	client   *http.Client
	opts     ExecutorOptions
	logger   *slog.Logger
	metrics  *observability.Metrics

	flight infra.Group[string, Result]
}

// NewExecutor creates a tool executor. metrics may be nil.
func NewExecutor(
	registry *Registry,
	store cache.Store,
	hosts *hostcheck.Checker,
	opts ExecutorOptions,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 5 * time.Second
	}
	if opts.MaxResponseBytes <= 0 {
		opts.MaxResponseBytes = 1 << 20
	}
	return &Executor{
		registry: registry,
		cache:    store,
		hosts:    hosts,
		client:   &http.Client{},
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
	}
}

// Execute runs one tool call. Cacheable GETs are served from the cache when
// fresh, and concurrent identical calls share a single upstream execution.
func (e *Executor) Execute(ctx context.Context, call Call) (Result, error) {
	def, err := e.registry.Get(call.Tool)
	if err != nil {
		return Result{}, err
	}

	for _, name := range def.RequiredArgs {
		if v, ok := call.Args[name]; !ok || v == nil {
			return Result{}, fmt.Errorf("%w: %q for tool %q", ErrMissingArgument, name, def.Name)
		}
	}

	rendered := renderURL(def.URLTemplate, call.Args)
	if err := e.hosts.CheckURL(rendered); err != nil {
		return Result{}, err
	}

	ttl := e.opts.DefaultCacheTTL
	if def.CacheTTLSeconds > 0 {
		ttl = time.Duration(def.CacheTTLSeconds) * time.Second
	}
	if call.CacheTTLSeconds > 0 {
		ttl = time.Duration(call.CacheTTLSeconds) * time.Second
	}
	cacheable := strings.EqualFold(def.Method, http.MethodGet) && ttl > 0

	if !cacheable {
		return e.observe(def, func() (Result, error) {
			return e.doHTTP(ctx, def, rendered, call.Args)
		})
	}

	rc := observability.RequestContextFrom(ctx)
	key := cacheKey(def.Name, rendered, rc.UserID)

	if body, hit, err := e.cache.Get(ctx, key); err != nil {
		e.logger.Warn("tool cache read failed", "tool", def.Name, "error", err)
	} else if hit {
		if e.metrics != nil {
			e.metrics.CacheEvents.WithLabelValues("hit").Inc()
			e.metrics.ToolExecutions.WithLabelValues(def.Name, "cached").Inc()
		}
		return Result{Tool: def.Name, StatusCode: http.StatusOK, Body: json.RawMessage(body)}, nil
	}
	if e.metrics != nil {
		e.metrics.CacheEvents.WithLabelValues("miss").Inc()
	}

	res, err, shared := e.flight.DoContext(ctx, key, func() (Result, error) {
		// The execution may outlive the winning caller: detach it from
		// the caller's cancellation so waiters still get a result. The
		// per-attempt timeout below bounds it instead.
		execCtx := observability.WithRequestContext(context.WithoutCancel(ctx), rc)

		res, err := e.observe(def, func() (Result, error) {
			return e.doHTTP(execCtx, def, rendered, call.Args)
		})
		if err != nil {
			return Result{}, err
		}
		if res.OK() {
			if cerr := e.cache.Set(execCtx, key, string(res.Body), ttl); cerr != nil {
				e.logger.Warn("tool cache write failed", "tool", def.Name, "error", cerr)
			}
		}
		return res, nil
	})
	if shared && e.metrics != nil {
		e.metrics.CoalescedCalls.Inc()
	}
	return res, err
}

// observe wraps fn with execution metrics.
func (e *Executor) observe(def Definition, fn func() (Result, error)) (Result, error) {
	start := time.Now()
	res, err := fn()
	if e.metrics != nil {
		e.metrics.ToolDuration.WithLabelValues(def.Name).Observe(time.Since(start).Seconds())
		status := "success"
		if err != nil || !res.OK() {
			status = "error"
		}
		e.metrics.ToolExecutions.WithLabelValues(def.Name, status).Inc()
	}
	return res, err
}

// doHTTP performs the call under the composed retry/timeout policy.
// Transport errors and 408/429/5xx responses are retried; other statuses
// are returned to the caller as-is.
func (e *Executor) doHTTP(ctx context.Context, def Definition, rendered string, args map[string]any) (Result, error) {
	retries := e.opts.DefaultRetries
	if def.RetryCount > 0 {
		retries = def.RetryCount
	}
	timeout := e.opts.DefaultTimeout
	if def.TimeoutMs > 0 {
		timeout = time.Duration(def.TimeoutMs) * time.Millisecond
	}

	policy := retry.Linear(retries+1, 150*time.Millisecond)

	result, outcome := retry.DoWithValue(ctx, policy, func() (Result, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := e.buildRequest(attemptCtx, def, rendered, args)
		if err != nil {
			return Result{}, retry.Permanent(err)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return Result{}, fmt.Errorf("tool %s: %w", def.Name, err)
		}
		defer resp.Body.Close()

		if transientStatus(resp.StatusCode) {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
			return Result{}, fmt.Errorf("tool %s: upstream status %d", def.Name, resp.StatusCode)
		}

		body, err := readBounded(resp.Body, e.opts.MaxResponseBytes)
		if err != nil {
			return Result{}, retry.Permanent(fmt.Errorf("tool %s: %w", def.Name, err))
		}
		return Result{Tool: def.Name, StatusCode: resp.StatusCode, Body: body}, nil
	})

	if outcome.Err != nil {
		return Result{}, outcome.Err
	}
	return result, nil
}

func (e *Executor) buildRequest(ctx context.Context, def Definition, rendered string, args map[string]any) (*http.Request, error) {
	var body io.Reader
	if !strings.EqualFold(def.Method, http.MethodGet) {
		payload, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode tool args: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(def.Method), rendered, body)
	if err != nil {
		return nil, fmt.Errorf("build tool request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rc := observability.RequestContextFrom(ctx)
	if rc.CorrelationID != "" {
		req.Header.Set("X-Correlation-Id", rc.CorrelationID)
	}
	if rc.UserID != "" {
		req.Header.Set("X-User-Id", rc.UserID)
	}
	if rc.ConversationID != "" {
		req.Header.Set("X-Conversation-Id", rc.ConversationID)
	}
	return req, nil
}

// readBounded reads at most max bytes; anything larger fails instead of
// buffering unbounded. Empty bodies normalize to "{}".
func readBounded(r io.Reader, max int64) (json.RawMessage, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read tool response: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, max)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(data) {
		return nil, ErrInvalidToolPayload
	}
	return json.RawMessage(data), nil
}

func transientStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

// renderURL substitutes {arg} placeholders with URL-escaped values.
func renderURL(template string, args map[string]any) string {
	rendered := template
	for k, v := range args {
		placeholder := "{" + k + "}"
		rendered = strings.ReplaceAll(rendered, placeholder, url.QueryEscape(fmt.Sprintf("%v", v)))
	}
	return rendered
}

// cacheKey hashes the rendered URL so keys stay short; the user id keeps
// per-user results isolated.
func cacheKey(tool, rendered, userID string) string {
	sum := sha256.Sum256([]byte(rendered))
	return fmt.Sprintf("toolcache:v1:%s:u:%s:h:%s", tool, userID, hex.EncodeToString(sum[:]))
}
