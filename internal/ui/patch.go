package ui

import "strings"

// Op kinds understood by the patch engine.
const (
	OpSet    = "set"
	OpMerge  = "merge"
	OpRemove = "remove"
)

// Op is one mutation against a document. Path is a /-delimited pointer
// into the document tree, e.g. "data/finance.getBudget".
type Op struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// Patch is the ui.patch.v1 message broadcast to subscribed clients.
type Patch struct {
	Schema         string `json:"schema"`
	UIInstanceID   string `json:"uiInstanceId"`
	ConversationID string `json:"conversationId"`
	Ops            []Op   `json:"ops"`
}

// NewPatch wraps ops in a ui.patch.v1 message for one instance.
func NewPatch(instance *Instance, ops []Op) Patch {
	return Patch{
		Schema:         SchemaPatchV1,
		UIInstanceID:   instance.ID,
		ConversationID: instance.ConversationID,
		Ops:            ops,
	}
}

// Apply returns a new document with ops applied; the input document is not
// mutated. Ops whose path dead-ends in a non-object are skipped: a patch
// never turns a scalar into a container. Re-applying the same ops yields
// the same document.
func Apply(doc Document, ops []Op) Document {
	out := cloneMap(doc)
	for _, op := range ops {
		applyOp(out, op)
	}
	return out
}

func applyOp(doc map[string]any, op Op) {
	tokens := splitPath(op.Path)
	if len(tokens) == 0 {
		return
	}

	parent := doc
	for _, token := range tokens[:len(tokens)-1] {
		child, exists := parent[token]
		if !exists {
			if op.Op == OpRemove {
				return
			}
			next := map[string]any{}
			parent[token] = next
			parent = next
			continue
		}
		childMap, ok := child.(map[string]any)
		if !ok {
			return
		}
		parent = childMap
	}

	leaf := tokens[len(tokens)-1]
	switch op.Op {
	case OpSet:
		parent[leaf] = op.Value
	case OpMerge:
		incoming, ok := op.Value.(map[string]any)
		if !ok {
			return
		}
		target, exists := parent[leaf]
		if !exists {
			parent[leaf] = cloneMap(incoming)
			return
		}
		targetMap, ok := target.(map[string]any)
		if !ok {
			return
		}
		for k, v := range incoming {
			targetMap[k] = cloneValue(v)
		}
	case OpRemove:
		delete(parent, leaf)
	}
}

func splitPath(path string) []string {
	var tokens []string
	for _, t := range strings.Split(path, "/") {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return cloneMap(tv)
	case Document:
		return cloneMap(tv)
	case []any:
		out := make([]any, len(tv))
		for i, e := range tv {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
