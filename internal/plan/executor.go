package plan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loomhq/loom/internal/tools"
)

// ToolRunner executes a single tool call.
type ToolRunner interface {
	Execute(ctx context.Context, call tools.Call) (tools.Result, error)
}

// Executor runs validated plans step by step.
type Executor struct {
	runner     ToolRunner
	bestEffort bool
	logger     *slog.Logger
}

// NewExecutor creates a plan executor. With bestEffort set, a failing step
// is skipped and the remaining steps still run; otherwise the first failure
// aborts the plan.
func NewExecutor(runner ToolRunner, bestEffort bool, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{runner: runner, bestEffort: bestEffort, logger: logger}
}

// Execute runs the plan's steps strictly in order and collects successful
// results keyed by tool name. When one plan calls the same tool twice the
// later result wins; inter-step references use step ids and are unaffected.
func (e *Executor) Execute(ctx context.Context, p *ToolPlan) (map[string]tools.Result, error) {
	byTool := make(map[string]tools.Result, len(p.Steps))
	byStep := make(map[string]tools.Result, len(p.Steps))

	for _, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return byTool, err
		}

		args, err := resolveArgs(step.Args, byStep)
		if err != nil {
			if e.skip(step, err) {
				continue
			}
			return byTool, fmt.Errorf("step %q: %w", step.ID, err)
		}

		res, err := e.runner.Execute(ctx, tools.Call{
			Tool:            step.Tool,
			Args:            args,
			CacheTTLSeconds: step.CacheTTLSeconds,
		})
		if err != nil {
			if e.skip(step, err) {
				continue
			}
			return byTool, fmt.Errorf("step %q: %w", step.ID, err)
		}
		if !res.OK() {
			err := fmt.Errorf("tool %q returned status %d", step.Tool, res.StatusCode)
			if e.skip(step, err) {
				continue
			}
			return byTool, fmt.Errorf("step %q: %w", step.ID, err)
		}

		byTool[step.Tool] = res
		byStep[step.ID] = res
	}
	return byTool, nil
}

func (e *Executor) skip(step Step, err error) bool {
	if !e.bestEffort {
		return false
	}
	e.logger.Warn("skipping failed plan step", "step", step.ID, "tool", step.Tool, "error", err)
	return true
}
