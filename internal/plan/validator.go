package plan

import (
	"errors"
	"fmt"
)

// ErrInvalidPlan wraps every validation failure so callers can detect the
// class with errors.Is and decide whether to fall back.
var ErrInvalidPlan = errors.New("invalid plan")

// Validator checks plans against the structural rules before execution.
type Validator struct {
	maxSteps int
}

// NewValidator creates a validator with the given step ceiling.
func NewValidator(maxSteps int) *Validator {
	if maxSteps <= 0 {
		maxSteps = 8
	}
	return &Validator{maxSteps: maxSteps}
}

// Validate returns nil when the plan is structurally sound: correct schema
// tag, bounded step count, unique non-empty step ids, non-empty tool names.
func (v *Validator) Validate(p *ToolPlan) error {
	if p == nil {
		return fmt.Errorf("%w: nil plan", ErrInvalidPlan)
	}
	if p.Schema != SchemaToolPlanV1 {
		return fmt.Errorf("%w: schema %q, want %q", ErrInvalidPlan, p.Schema, SchemaToolPlanV1)
	}
	if len(p.Steps) > v.maxSteps {
		return fmt.Errorf("%w: %d steps exceeds limit of %d", ErrInvalidPlan, len(p.Steps), v.maxSteps)
	}

	seen := make(map[string]struct{}, len(p.Steps))
	for i, step := range p.Steps {
		if step.ID == "" {
			return fmt.Errorf("%w: step %d has empty id", ErrInvalidPlan, i)
		}
		if _, dup := seen[step.ID]; dup {
			return fmt.Errorf("%w: duplicate step id %q", ErrInvalidPlan, step.ID)
		}
		seen[step.ID] = struct{}{}
		if step.Tool == "" {
			return fmt.Errorf("%w: step %q has empty tool name", ErrInvalidPlan, step.ID)
		}
	}
	return nil
}
