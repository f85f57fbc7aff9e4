// Package plan defines the structured tool plan produced by the external
// planner, its validation rules, and the sequential executor that runs it.
package plan

import (
	"encoding/json"

	"github.com/loomhq/loom/internal/ui"
)

// SchemaToolPlanV1 is the schema tag every valid plan must carry.
const SchemaToolPlanV1 = "tool_plan.v1"

// ToolPlan is one planner turn: an ordered list of tool calls plus an
// optional generative UI intent.
type ToolPlan struct {
	Schema    string    `json:"schema"`
	Rationale string    `json:"rationale"`
	Steps     []Step    `json:"steps"`
	UI        *UIIntent `json:"uiIntent,omitempty"`
}

// Step is a single planned tool call. Later steps may reference earlier
// results through {{step:<id>.<path>}} templates in their args.
type Step struct {
	ID              string         `json:"id"`
	Tool            string         `json:"tool"`
	Args            map[string]any `json:"args"`
	CacheTTLSeconds int            `json:"cacheTtlSeconds,omitempty"`
}

// UIIntent carries the planner's generative UI description verbatim. The
// core does not interpret component types; it passes the tree through to
// the composer.
type UIIntent struct {
	ComponentTree json.RawMessage   `json:"componentTree"`
	Bindings      []ui.Binding      `json:"bindings,omitempty"`
	Subscriptions []ui.Subscription `json:"subscriptions,omitempty"`
}

// HasSteps reports whether the plan calls any tools.
func (p *ToolPlan) HasSteps() bool {
	return p != nil && len(p.Steps) > 0
}

// HasUI reports whether the plan carries a UI intent.
func (p *ToolPlan) HasUI() bool {
	return p != nil && p.UI != nil
}
