package plan

import (
	"encoding/json"
	"testing"
)

func TestToolPlanDecodesUIIntentField(t *testing.T) {
	raw := []byte(`{
		"schema": "tool_plan.v1",
		"rationale": "budget summary",
		"steps": [{"id": "s1", "tool": "finance.getBudget", "args": {}}],
		"uiIntent": {
			"componentTree": {"type": "Card"},
			"bindings": [{"componentPath": "0", "prop": "value", "dataKey": "total"}],
			"subscriptions": [{"event": "finance.expense.added"}]
		}
	}`)

	var p ToolPlan
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !p.HasUI() {
		t.Fatal("uiIntent not decoded")
	}
	if len(p.UI.Bindings) != 1 || p.UI.Bindings[0].DataKey != "total" {
		t.Errorf("bindings = %+v", p.UI.Bindings)
	}
	if len(p.UI.Subscriptions) != 1 || p.UI.Subscriptions[0].Event != "finance.expense.added" {
		t.Errorf("subscriptions = %+v", p.UI.Subscriptions)
	}
}

func TestToolPlanNullUIIntent(t *testing.T) {
	var p ToolPlan
	if err := json.Unmarshal([]byte(`{"schema":"tool_plan.v1","steps":[],"uiIntent":null}`), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.HasUI() {
		t.Error("null uiIntent should decode as no UI")
	}
}
