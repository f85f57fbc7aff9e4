// Package tools implements the tool catalog and the resilient tool
// executor: caching, request coalescing, retry/timeout policy and outbound
// limits for HTTP-backed capabilities.
package tools

import (
	"encoding/json"
	"errors"
)

// Sentinel errors surfaced by the registry and executor.
var (
	ErrToolNotFound       = errors.New("tool not found")
	ErrMissingArgument    = errors.New("missing required argument")
	ErrResponseTooLarge   = errors.New("tool response too large")
	ErrInvalidToolPayload = errors.New("tool response is not valid JSON")
)

// Definition describes one HTTP-backed tool. Definitions are immutable once
// loaded; the registry swaps the whole set atomically on refresh.
type Definition struct {
	// Name uniquely identifies the tool, e.g. "finance.getBudgetSnapshot".
	Name string `json:"name"`
	// Method is the HTTP method, GET or POST.
	Method string `json:"method"`
	// URLTemplate contains {arg} placeholders substituted from call args,
	// e.g. "http://finance-data/api/v1/budget?range={rangeDays}".
	URLTemplate string `json:"urlTemplate"`
	// TimeoutMs overrides the global per-call timeout when positive.
	TimeoutMs int `json:"timeoutMs"`
	// RetryCount overrides the global retry count when positive.
	RetryCount int `json:"retryCount"`
	// CacheTTLSeconds overrides the global cache TTL for GET calls when
	// positive.
	CacheTTLSeconds int `json:"cacheTtlSeconds"`
	// RequiredArgs lists argument names that must be present and non-nil.
	RequiredArgs []string `json:"requiredArgs"`
}

// Call is a single tool invocation request. CacheTTLSeconds, when
// positive, overrides the definition's cache TTL for this call only.
type Call struct {
	Tool            string         `json:"tool"`
	Args            map[string]any `json:"args"`
	CacheTTLSeconds int            `json:"cacheTtlSeconds,omitempty"`
}

// Result is the outcome of a tool invocation. Body always holds valid JSON;
// empty upstream responses are normalized to "{}".
type Result struct {
	Tool       string          `json:"tool"`
	StatusCode int             `json:"statusCode"`
	Body       json.RawMessage `json:"body"`
}

// OK reports whether the upstream returned a 2xx status.
func (r Result) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
