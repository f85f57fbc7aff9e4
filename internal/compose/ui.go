package compose

import (
	"encoding/json"

	"github.com/loomhq/loom/internal/plan"
	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/ui"
)

// UIOptions controls which parts of the intent reach the document.
type UIOptions struct {
	// IncludeDataSnapshot attaches decoded tool results under "data".
	IncludeDataSnapshot bool `json:"includeDataSnapshot"`
	// IncludeBindings copies the intent's bindings through.
	IncludeBindings bool `json:"includeBindings"`
	// IncludeSubscriptions copies the intent's subscriptions through.
	IncludeSubscriptions bool `json:"includeSubscriptions"`
	// AllowedToolRefs restricts the data snapshot to these tools; empty
	// means every result is eligible.
	AllowedToolRefs []string `json:"allowedToolRefs,omitempty"`
}

// DefaultUIOptions includes everything.
func DefaultUIOptions() UIOptions {
	return UIOptions{
		IncludeDataSnapshot:  true,
		IncludeBindings:      true,
		IncludeSubscriptions: true,
	}
}

// UIComposer builds ui.v1 documents from plan UI intents.
type UIComposer struct {
	opts UIOptions
}

func NewUIComposer(opts UIOptions) *UIComposer {
	return &UIComposer{opts: opts}
}

// Compose builds the document for one assistant turn. The intent's
// component tree is passed through verbatim; the core has no knowledge of
// component types. The returned subscriptions are what the saved UI
// instance listens on.
func (c *UIComposer) Compose(intent *plan.UIIntent, results map[string]tools.Result) (ui.Document, []ui.Subscription) {
	if intent == nil {
		return nil, nil
	}

	var root any
	if len(intent.ComponentTree) > 0 {
		if err := json.Unmarshal(intent.ComponentTree, &root); err != nil {
			root = nil
		}
	}

	doc := ui.Document{
		"schema": ui.SchemaUIV1,
		"root":   root,
	}

	if c.opts.IncludeDataSnapshot {
		doc["data"] = c.snapshot(results)
	}
	if c.opts.IncludeBindings && len(intent.Bindings) > 0 {
		doc["bindings"] = intent.Bindings
	}

	var subs []ui.Subscription
	if c.opts.IncludeSubscriptions && len(intent.Subscriptions) > 0 {
		subs = intent.Subscriptions
		doc["subscriptions"] = subs
	}
	return doc, subs
}

func (c *UIComposer) snapshot(results map[string]tools.Result) map[string]any {
	allowed := map[string]bool{}
	for _, ref := range c.opts.AllowedToolRefs {
		allowed[ref] = true
	}

	data := map[string]any{}
	for tool, res := range results {
		if len(allowed) > 0 && !allowed[tool] {
			continue
		}
		var decoded any
		if err := json.Unmarshal(res.Body, &decoded); err != nil {
			continue
		}
		data[tool] = decoded
	}
	return data
}
