package plan

// Fallback returns the minimal rule-based plan used when the planner is
// unreachable or returns an invalid plan: no steps, no UI, so the turn
// degrades to a plain answer instead of failing.
func Fallback() *ToolPlan {
	return &ToolPlan{
		Schema:    SchemaToolPlanV1,
		Rationale: "Fallback plan (rule-based placeholder).",
		Steps:     []Step{},
	}
}
