package plan

import (
	"errors"
	"testing"
)

func validPlan() *ToolPlan {
	return &ToolPlan{
		Schema: SchemaToolPlanV1,
		Steps: []Step{
			{ID: "s1", Tool: "finance.getBudget"},
			{ID: "s2", Tool: "finance.getTransactions"},
		},
	}
}

func TestValidateAcceptsWellFormedPlan(t *testing.T) {
	v := NewValidator(8)
	if err := v.Validate(validPlan()); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateRejectsBadSchema(t *testing.T) {
	v := NewValidator(8)
	p := validPlan()
	p.Schema = "tool_plan.v2"
	if err := v.Validate(p); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestValidateRejectsTooManySteps(t *testing.T) {
	v := NewValidator(2)
	p := validPlan()
	p.Steps = append(p.Steps, Step{ID: "s3", Tool: "finance.getGoals"})
	if err := v.Validate(p); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestValidateAcceptsExactlyMaxSteps(t *testing.T) {
	v := NewValidator(2)
	if err := v.Validate(validPlan()); err != nil {
		t.Fatalf("validate at limit: %v", err)
	}
}

func TestValidateRejectsDuplicateStepIDs(t *testing.T) {
	v := NewValidator(8)
	p := validPlan()
	p.Steps[1].ID = "s1"
	if err := v.Validate(p); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestValidateRejectsEmptyStepID(t *testing.T) {
	v := NewValidator(8)
	p := validPlan()
	p.Steps[0].ID = ""
	if err := v.Validate(p); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestValidateRejectsEmptyToolName(t *testing.T) {
	v := NewValidator(8)
	p := validPlan()
	p.Steps[1].Tool = ""
	if err := v.Validate(p); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestValidateRejectsNilPlan(t *testing.T) {
	v := NewValidator(8)
	if err := v.Validate(nil); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestFallbackPlanIsValid(t *testing.T) {
	v := NewValidator(8)
	p := Fallback()
	if err := v.Validate(p); err != nil {
		t.Fatalf("fallback plan must validate: %v", err)
	}
	if p.HasSteps() || p.HasUI() {
		t.Error("fallback plan must have no steps and no UI intent")
	}
}
