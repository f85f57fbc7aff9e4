// Package planner talks to the external natural-language planner service
// and builds its planner_input.v1 request payload.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loomhq/loom/internal/observability"
	"github.com/loomhq/loom/internal/plan"
	"github.com/loomhq/loom/internal/tools"
)

// SchemaPlannerInputV1 tags the request payload sent to the planner.
const SchemaPlannerInputV1 = "planner_input.v1"

// ErrPlannerUnavailable covers transport failures and non-2xx responses
// from the planner service. The orchestrator falls back on it.
var ErrPlannerUnavailable = errors.New("planner unavailable")

// Input is the planner_input.v1 request body.
type Input struct {
	Schema              string          `json:"schema"`
	UserPrompt          string          `json:"userPrompt"`
	ConversationContext []ContextTurn   `json:"conversationContext"`
	ToolCatalog         []CatalogTool   `json:"toolCatalog"`
	UIComponentCatalog  json.RawMessage `json:"uiComponentCatalog,omitempty"`
	Constraints         Constraints     `json:"constraints"`
	Meta                Meta            `json:"meta"`
}

// ContextTurn is one prior message in the conversation, oldest first.
type ContextTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CatalogTool is the planner-facing view of a tool definition.
type CatalogTool struct {
	Name         string   `json:"name"`
	Method       string   `json:"method"`
	RequiredArgs []string `json:"requiredArgs,omitempty"`
}

type Constraints struct {
	MaxSteps int `json:"maxSteps"`
}

type Meta struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
}

// NewInput assembles a planner request from the prompt, context window and
// the current tool catalog.
func NewInput(prompt string, turns []ContextTurn, catalog []tools.Definition, uiCatalog json.RawMessage, maxSteps int, meta Meta) Input {
	catalogView := make([]CatalogTool, 0, len(catalog))
	for _, def := range catalog {
		catalogView = append(catalogView, CatalogTool{
			Name:         def.Name,
			Method:       def.Method,
			RequiredArgs: def.RequiredArgs,
		})
	}
	return Input{
		Schema:              SchemaPlannerInputV1,
		UserPrompt:          prompt,
		ConversationContext: turns,
		ToolCatalog:         catalogView,
		UIComponentCatalog:  uiCatalog,
		Constraints:         Constraints{MaxSteps: maxSteps},
		Meta:                meta,
	}
}

// Client calls the planner's POST /v1/plan endpoint.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewClient creates a planner client. metrics may be nil.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: metrics,
	}
}

// Plan sends the input and decodes the returned plan. The response must
// carry the tool_plan.v1 schema tag or it is rejected as invalid.
func (c *Client) Plan(ctx context.Context, input Input) (*plan.ToolPlan, error) {
	start := time.Now()
	p, err := c.plan(ctx, input)
	if c.metrics != nil {
		c.metrics.PlannerDuration.Observe(time.Since(start).Seconds())
		status := "success"
		if err != nil {
			status = "error"
		}
		c.metrics.PlannerRequests.WithLabelValues(status).Inc()
	}
	return p, err
}

func (c *Client) plan(ctx context.Context, input Input) (*plan.ToolPlan, error) {
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode planner input: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/plan", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build planner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if rc := observability.RequestContextFrom(ctx); rc.CorrelationID != "" {
		req.Header.Set("X-Correlation-Id", rc.CorrelationID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlannerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return nil, fmt.Errorf("%w: status %d", ErrPlannerUnavailable, resp.StatusCode)
	}

	var p plan.ToolPlan
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", plan.ErrInvalidPlan, err)
	}
	if p.Schema != plan.SchemaToolPlanV1 {
		return nil, fmt.Errorf("%w: schema %q", plan.ErrInvalidPlan, p.Schema)
	}
	return &p, nil
}
