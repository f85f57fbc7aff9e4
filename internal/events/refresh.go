package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/loomhq/loom/internal/infra"
	"github.com/loomhq/loom/internal/observability"
	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/ui"
)

// ToolRunner executes refresh tool calls.
type ToolRunner interface {
	Execute(ctx context.Context, call tools.Call) (tools.Result, error)
}

// Broadcaster pushes a patch to every client joined to a conversation.
type Broadcaster interface {
	BroadcastPatch(ctx context.Context, conversationID string, patch ui.Patch) error
}

// RefreshHandler reacts to domain events by re-running the tool calls of
// every subscribed UI instance and broadcasting the resulting patches.
type RefreshHandler struct {
	instances   ui.InstanceStore
	runner      ToolRunner
	broadcaster Broadcaster
	logger      *slog.Logger
	metrics     *observability.Metrics

	flight infra.Group[string, struct{}]
}

func NewRefreshHandler(
	instances ui.InstanceStore,
	runner ToolRunner,
	broadcaster Broadcaster,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *RefreshHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefreshHandler{
		instances:   instances,
		runner:      runner,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     metrics,
	}
}

// Handle runs one refresh cycle. Concurrent deliveries of the same
// (subject, conversation, user) collapse into a single cycle.
func (h *RefreshHandler) Handle(ctx context.Context, env Envelope) error {
	_, err, shared := h.flight.DoContext(ctx, env.DedupeKey(), func() (struct{}, error) {
		return struct{}{}, h.refresh(ctx, env)
	})
	if shared {
		h.logger.Debug("refresh deduplicated", "key", env.DedupeKey())
	}
	return err
}

func (h *RefreshHandler) refresh(ctx context.Context, env Envelope) error {
	ctx = observability.WithRequestContext(ctx, observability.RequestContext{
		CorrelationID:  env.CorrelationID,
		UserID:         env.UserID,
		ConversationID: env.ConversationID,
	})

	affected, err := h.instances.FindAffected(ctx, env.Subject, env.ConversationID, env.UserID)
	if err != nil {
		return fmt.Errorf("find affected instances: %w", err)
	}
	if len(affected) == 0 {
		return nil
	}

	for _, inst := range affected {
		h.refreshInstance(ctx, env, inst)
	}
	return nil
}

// refreshInstance executes the instance's refresh specs and broadcasts a
// single patch. Individual tool failures drop only their own op.
func (h *RefreshHandler) refreshInstance(ctx context.Context, env Envelope, inst *ui.Instance) {
	var ops []ui.Op
	for _, spec := range inst.RefreshSpecsFor(env.Subject) {
		res, err := h.runner.Execute(ctx, tools.Call{Tool: spec.Tool, Args: spec.Args})
		if err != nil {
			h.logger.Warn("refresh tool failed",
				"tool", spec.Tool,
				"ui_instance", inst.ID,
				"error", err,
			)
			continue
		}
		if !res.OK() {
			h.logger.Warn("refresh tool returned non-2xx",
				"tool", spec.Tool,
				"status", res.StatusCode,
				"ui_instance", inst.ID,
			)
			continue
		}

		var value any
		if err := json.Unmarshal(res.Body, &value); err != nil {
			continue
		}
		ops = append(ops, ui.Op{Op: ui.OpSet, Path: spec.PatchPath, Value: value})
	}
	if len(ops) == 0 {
		return
	}

	inst.Document = ui.Apply(inst.Document, ops)
	if err := h.instances.Save(ctx, inst); err != nil {
		h.logger.Warn("persist refreshed document failed", "ui_instance", inst.ID, "error", err)
	}

	patch := ui.NewPatch(inst, ops)
	if err := h.broadcaster.BroadcastPatch(ctx, inst.ConversationID, patch); err != nil {
		h.logger.Warn("patch broadcast failed", "ui_instance", inst.ID, "error", err)
		return
	}
	if h.metrics != nil {
		h.metrics.PatchBroadcasts.Inc()
	}
}
