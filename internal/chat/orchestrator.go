// Package chat implements the top-level conversation pipeline: persist the
// prompt, obtain and validate a plan, run it, compose UI and text, persist
// the answer.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/loomhq/loom/internal/answer"
	"github.com/loomhq/loom/internal/compose"
	"github.com/loomhq/loom/internal/observability"
	"github.com/loomhq/loom/internal/plan"
	"github.com/loomhq/loom/internal/planner"
	"github.com/loomhq/loom/internal/store"
	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/ui"
)

// Request is one user turn.
type Request struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Prompt         string `json:"prompt"`
}

// Response is the assistant turn: text always, a UI document only when the
// plan carried a UI intent. UI serializes as uiV1, null on text-only turns.
type Response struct {
	Text          string      `json:"text"`
	UI            ui.Document `json:"uiV1"`
	CorrelationID string      `json:"correlationId"`
}

// PlannerClient obtains a plan for a prompt.
type PlannerClient interface {
	Plan(ctx context.Context, input planner.Input) (*plan.ToolPlan, error)
}

// PlanRunner executes a validated plan.
type PlanRunner interface {
	Execute(ctx context.Context, p *plan.ToolPlan) (map[string]tools.Result, error)
}

// Catalog exposes the current tool definitions for the planner input.
type Catalog interface {
	All() []tools.Definition
}

// Options tunes the pipeline.
type Options struct {
	MaxToolSteps    int
	FallbackEnabled bool
	HistoryLimit    int
	MissingValue    string
	UICatalog       json.RawMessage
}

// Orchestrator wires the pipeline's collaborators together.
type Orchestrator struct {
	plannerClient PlannerClient
	validator     *plan.Validator
	runner        PlanRunner
	catalog       Catalog
	textComposer  *compose.TextComposer
	uiComposer    *compose.UIComposer
	answers       answer.Service
	conversations store.ConversationStore
	instances     ui.InstanceStore
	opts          Options
	logger        *slog.Logger
}

func NewOrchestrator(
	plannerClient PlannerClient,
	runner PlanRunner,
	catalog Catalog,
	textComposer *compose.TextComposer,
	uiComposer *compose.UIComposer,
	answers answer.Service,
	conversations store.ConversationStore,
	instances ui.InstanceStore,
	opts Options,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxToolSteps <= 0 {
		opts.MaxToolSteps = 8
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	return &Orchestrator{
		plannerClient: plannerClient,
		validator:     plan.NewValidator(opts.MaxToolSteps),
		runner:        runner,
		catalog:       catalog,
		textComposer:  textComposer,
		uiComposer:    uiComposer,
		answers:       answers,
		conversations: conversations,
		instances:     instances,
		opts:          opts,
		logger:        logger,
	}
}

// Handle runs one conversation turn end to end.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Response, error) {
	rc := observability.RequestContextFrom(ctx)
	if rc.CorrelationID == "" {
		rc.CorrelationID = uuid.NewString()
	}
	rc.UserID = req.UserID
	rc.ConversationID = req.ConversationID
	ctx = observability.WithRequestContext(ctx, rc)
	logger := observability.LoggerWith(ctx, o.logger)

	if _, err := o.conversations.Append(ctx, req.ConversationID, "user", req.Prompt); err != nil {
		return Response{}, fmt.Errorf("persist user message: %w", err)
	}

	history, err := o.conversations.Recent(ctx, req.ConversationID, o.opts.HistoryLimit)
	if err != nil {
		return Response{}, fmt.Errorf("load conversation context: %w", err)
	}
	// The prompt was just appended; context excludes the current turn.
	if len(history) > 0 {
		history = history[:len(history)-1]
	}

	p, err := o.obtainPlan(ctx, req, history, logger)
	if err != nil {
		return Response{}, err
	}

	results, err := o.runner.Execute(ctx, p)
	if err != nil {
		return Response{}, fmt.Errorf("execute plan: %w", err)
	}

	var doc ui.Document
	if p.HasUI() {
		var subs []ui.Subscription
		doc, subs = o.uiComposer.Compose(p.UI, results)
		inst := ui.NewInstance(req.ConversationID, req.UserID, doc, subs)
		if err := o.instances.Save(ctx, inst); err != nil {
			logger.Warn("save ui instance failed", "error", err)
		}
	}

	text := o.composeText(ctx, req, p, results, history, logger)

	if _, err := o.conversations.Append(ctx, req.ConversationID, "assistant", text); err != nil {
		logger.Warn("persist assistant message failed", "error", err)
	}

	return Response{Text: text, UI: doc, CorrelationID: rc.CorrelationID}, nil
}

// obtainPlan calls the planner and validates the result, substituting the
// fallback plan when enabled.
func (o *Orchestrator) obtainPlan(ctx context.Context, req Request, history []store.Message, logger *slog.Logger) (*plan.ToolPlan, error) {
	input := planner.NewInput(
		req.Prompt,
		asTurns(history),
		o.catalog.All(),
		o.opts.UICatalog,
		o.opts.MaxToolSteps,
		planner.Meta{ConversationID: req.ConversationID, UserID: req.UserID},
	)

	p, err := o.plannerClient.Plan(ctx, input)
	if err == nil {
		err = o.validator.Validate(p)
	}
	if err != nil {
		if !o.opts.FallbackEnabled {
			return nil, fmt.Errorf("plan turn: %w", err)
		}
		logger.Warn("planner failed, using fallback plan", "error", err)
		p = plan.Fallback()
		if err := o.validator.Validate(p); err != nil {
			return nil, fmt.Errorf("fallback plan: %w", err)
		}
	}
	return p, nil
}

// composeText implements the two-tier policy: deterministic templates when
// tool data is available, LLM completion for general questions and when
// the template output carries no substance.
func (o *Orchestrator) composeText(
	ctx context.Context,
	req Request,
	p *plan.ToolPlan,
	results map[string]tools.Result,
	history []store.Message,
	logger *slog.Logger,
) string {
	if !p.HasSteps() && !p.HasUI() {
		return o.llmAnswer(ctx, req, history, "", logger)
	}

	text := o.textComposer.Compose(results)
	if compose.LooksAllMissing(text, o.opts.MissingValue) {
		return o.llmAnswer(ctx, req, history, text, logger)
	}
	return text
}

// llmAnswer asks the answer service, falling back to the deterministic
// text (or a fixed apology) when the model is unavailable.
func (o *Orchestrator) llmAnswer(ctx context.Context, req Request, history []store.Message, deterministic string, logger *slog.Logger) string {
	turns := make([]answer.Turn, 0, len(history))
	for _, msg := range history {
		turns = append(turns, answer.Turn{Role: msg.Role, Content: msg.Content})
	}
	text, err := o.answers.Answer(ctx, req.Prompt, turns)
	if err != nil {
		logger.Warn("llm answer failed", "error", err)
		if deterministic != "" {
			return deterministic
		}
		return "Sorry, I can't answer that right now."
	}
	return text
}

func asTurns(history []store.Message) []planner.ContextTurn {
	turns := make([]planner.ContextTurn, 0, len(history))
	for _, msg := range history {
		turns = append(turns, planner.ContextTurn{Role: msg.Role, Content: msg.Content})
	}
	return turns
}
