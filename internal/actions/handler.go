package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loomhq/loom/internal/events"
	"github.com/loomhq/loom/internal/jsonpath"
	"github.com/loomhq/loom/internal/observability"
	"github.com/loomhq/loom/internal/tools"
)

// ToolRunner executes the routed tool call.
type ToolRunner interface {
	Execute(ctx context.Context, call tools.Call) (tools.Result, error)
}

// EventPublisher emits domain events after successful actions.
type EventPublisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Handler executes routed actions: tool call first, event publication only
// after a 2xx result.
type Handler struct {
	router    *Router
	runner    ToolRunner
	publisher EventPublisher
	logger    *slog.Logger
}

// NewHandler creates an action handler. publisher may be nil when event
// publication is disabled.
func NewHandler(router *Router, runner ToolRunner, publisher EventPublisher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{router: router, runner: runner, publisher: publisher, logger: logger}
}

// Handle runs one action end to end.
func (h *Handler) Handle(ctx context.Context, action Action) (Result, error) {
	route, err := h.router.Resolve(action.Type)
	if err != nil {
		return Result{}, err
	}

	args := make(map[string]any, len(route.ArgMapping))
	for argName, payloadField := range route.ArgMapping {
		if v, ok := action.Payload[payloadField]; ok {
			args[argName] = v
		}
	}

	res, err := h.runner.Execute(ctx, tools.Call{Tool: route.Tool, Args: args})
	if err != nil {
		return Result{}, fmt.Errorf("action %s: %w", action.Type, err)
	}
	if !res.OK() {
		return Result{}, fmt.Errorf("action %s: tool %q returned status %d", action.Type, route.Tool, res.StatusCode)
	}

	if route.Publish != nil && h.publisher != nil {
		env := buildEvent(ctx, *route.Publish, action, res)
		if err := h.publisher.Publish(ctx, env); err != nil {
			// The tool effect already happened; a lost event must not
			// fail the action.
			h.logger.Error("event publish failed", "action", action.Type, "subject", route.Publish.Subject, "error", err)
		}
	}

	text := route.SuccessText
	if text == "" {
		text = "Done."
	}
	return Result{Schema: SchemaActionResultV1, Text: text}, nil
}

// buildEvent assembles the event payload from the publish spec's three
// sources; tool-result extractions win over payload copies, which win over
// fixed values.
func buildEvent(ctx context.Context, spec PublishSpec, action Action, res tools.Result) events.Envelope {
	payload := map[string]any{}
	for k, v := range spec.Fixed {
		payload[k] = v
	}
	for field, payloadField := range spec.FromActionPayload {
		if v, ok := action.Payload[payloadField]; ok {
			payload[field] = v
		}
	}
	for field, path := range spec.FromToolResultPath {
		if v, found := jsonpath.Get(res.Body, path); found {
			payload[field] = v.Value()
		}
	}

	rc := observability.RequestContextFrom(ctx)
	return events.NewEnvelope(spec.Subject, rc.CorrelationID, action.ConversationID, action.UserID, payload)
}
