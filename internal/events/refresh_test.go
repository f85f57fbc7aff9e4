package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/ui"
)

type recordingRunner struct {
	mu      sync.Mutex
	results map[string]tools.Result
	errs    map[string]error
	calls   []tools.Call
	block   chan struct{}
}

func (r *recordingRunner) Execute(_ context.Context, call tools.Call) (tools.Result, error) {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()
	if err, ok := r.errs[call.Tool]; ok {
		return tools.Result{}, err
	}
	if res, ok := r.results[call.Tool]; ok {
		return res, nil
	}
	return tools.Result{Tool: call.Tool, StatusCode: http.StatusOK, Body: json.RawMessage(`{"fresh":true}`)}, nil
}

func (r *recordingRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	patches []ui.Patch
	convs   []string
}

func (b *recordingBroadcaster) BroadcastPatch(_ context.Context, conversationID string, patch ui.Patch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.patches = append(b.patches, patch)
	b.convs = append(b.convs, conversationID)
	return nil
}

func budgetInstance(conv, user string) *ui.Instance {
	return ui.NewInstance(conv, user, ui.Document{
		"schema": ui.SchemaUIV1,
		"data":   map[string]any{"finance.getBudget": map[string]any{"stale": true}},
	}, []ui.Subscription{
		{Event: "finance.expense_created", Refresh: []ui.RefreshSpec{
			{Tool: "finance.getBudget", PatchPath: "data/finance.getBudget"},
		}},
	})
}

func expenseEvent(conv, user string) Envelope {
	return NewEnvelope("finance.expense_created", "corr-1", conv, user, map[string]any{"amount": 12.0})
}

func TestHandleRefreshesAffectedInstanceAndBroadcasts(t *testing.T) {
	store := ui.NewMemoryInstanceStore()
	ctx := context.Background()
	inst := budgetInstance("c1", "u1")
	store.Save(ctx, inst)

	runner := &recordingRunner{results: map[string]tools.Result{
		"finance.getBudget": {
			Tool:       "finance.getBudget",
			StatusCode: http.StatusOK,
			Body:       json.RawMessage(`{"total":1200,"remaining":800}`),
		},
	}}
	bc := &recordingBroadcaster{}
	h := NewRefreshHandler(store, runner, bc, nil, nil)

	if err := h.Handle(ctx, expenseEvent("c1", "u1")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(bc.patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(bc.patches))
	}
	patch := bc.patches[0]
	if patch.Schema != ui.SchemaPatchV1 || patch.UIInstanceID != inst.ID {
		t.Errorf("patch = %+v", patch)
	}
	if bc.convs[0] != "c1" {
		t.Errorf("broadcast conversation = %s", bc.convs[0])
	}
	if len(patch.Ops) != 1 || patch.Ops[0].Op != ui.OpSet || patch.Ops[0].Path != "data/finance.getBudget" {
		t.Errorf("ops = %+v", patch.Ops)
	}

	data := inst.Document["data"].(map[string]any)
	budget := data["finance.getBudget"].(map[string]any)
	if budget["remaining"] != 800.0 {
		t.Errorf("stored document not refreshed: %v", budget)
	}
}

func TestHandleIgnoresUnrelatedEvents(t *testing.T) {
	store := ui.NewMemoryInstanceStore()
	ctx := context.Background()
	store.Save(ctx, budgetInstance("c1", "u1"))

	runner := &recordingRunner{}
	bc := &recordingBroadcaster{}
	h := NewRefreshHandler(store, runner, bc, nil, nil)

	if err := h.Handle(ctx, NewEnvelope("shop.order_placed", "", "c1", "u1", nil)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if runner.callCount() != 0 || len(bc.patches) != 0 {
		t.Error("unsubscribed event must not trigger work")
	}
}

func TestHandleIsolatesFailedRefreshSpecs(t *testing.T) {
	store := ui.NewMemoryInstanceStore()
	ctx := context.Background()
	inst := ui.NewInstance("c1", "u1", ui.Document{"schema": ui.SchemaUIV1}, []ui.Subscription{
		{Event: "finance.expense_created", Refresh: []ui.RefreshSpec{
			{Tool: "finance.getBudget", PatchPath: "data/finance.getBudget"},
			{Tool: "finance.getGoals", PatchPath: "data/finance.getGoals"},
		}},
	})
	store.Save(ctx, inst)

	runner := &recordingRunner{errs: map[string]error{"finance.getBudget": errors.New("down")}}
	bc := &recordingBroadcaster{}
	h := NewRefreshHandler(store, runner, bc, nil, nil)

	if err := h.Handle(ctx, expenseEvent("c1", "u1")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(bc.patches) != 1 {
		t.Fatalf("patches = %d, want 1", len(bc.patches))
	}
	ops := bc.patches[0].Ops
	if len(ops) != 1 || ops[0].Path != "data/finance.getGoals" {
		t.Errorf("failed spec must be dropped, ops = %+v", ops)
	}
}

func TestHandleFansOutToEveryAffectedInstance(t *testing.T) {
	store := ui.NewMemoryInstanceStore()
	ctx := context.Background()
	store.Save(ctx, budgetInstance("c1", "u1"))
	store.Save(ctx, budgetInstance("c2", "u2"))

	runner := &recordingRunner{}
	bc := &recordingBroadcaster{}
	h := NewRefreshHandler(store, runner, bc, nil, nil)

	// No owner on the envelope: every subscribed instance refreshes.
	if err := h.Handle(ctx, NewEnvelope("finance.expense_created", "", "", "", nil)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(bc.patches) != 2 {
		t.Errorf("patches = %d, want 2", len(bc.patches))
	}
}

func TestHandleDeduplicatesConcurrentIdenticalEvents(t *testing.T) {
	store := ui.NewMemoryInstanceStore()
	ctx := context.Background()
	store.Save(ctx, budgetInstance("c1", "u1"))

	runner := &recordingRunner{block: make(chan struct{})}
	bc := &recordingBroadcaster{}
	h := NewRefreshHandler(store, runner, bc, nil, nil)

	env := expenseEvent("c1", "u1")
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Handle(ctx, env)
		}()
	}
	time.Sleep(50 * time.Millisecond) // let every handler reach the coalescing gate
	close(runner.block)
	wg.Wait()

	if got := runner.callCount(); got >= 4 {
		t.Errorf("tool calls = %d, concurrent identical events must coalesce", got)
	}
}

func TestParseEnvelopeRejectsWrongSchema(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"schema":"event.v2","subject":"x"}`))
	if err == nil {
		t.Fatal("expected schema error")
	}
	_, err = ParseEnvelope([]byte(`not json`))
	if err == nil {
		t.Fatal("expected decode error")
	}
	_, err = ParseEnvelope([]byte(`{"schema":"event.v1"}`))
	if err == nil {
		t.Fatal("expected missing-subject error")
	}
}
