// Package compose turns tool results into user-facing output: deterministic
// text from configured templates, and the ui.v1 document from a plan's UI
// intent.
package compose

import (
	"fmt"
	"math"
	"strings"

	"github.com/loomhq/loom/internal/jsonpath"
	"github.com/loomhq/loom/internal/tools"
)

// DefaultMissingValue replaces bindings whose path yields nothing.
const DefaultMissingValue = "N/A"

// TextBinding extracts one template value from a tool result.
type TextBinding struct {
	// Key is the placeholder name: {key} in the template.
	Key string `json:"key"`
	// ToolRef names the tool whose result is read.
	ToolRef string `json:"toolRef"`
	// JSONPath addresses the value inside the result body, e.g. "$.budget.total".
	JSONPath string `json:"jsonPath"`
	// Format is one of "currency", "int", "percent" or empty for raw text.
	Format string `json:"format,omitempty"`
}

// TextSpec is one configured answer template. A spec applies when every
// tool in Requires produced a result this turn.
type TextSpec struct {
	Name             string        `json:"name"`
	Requires         []string      `json:"requires"`
	Template         string        `json:"template"`
	Bindings         []TextBinding `json:"bindings"`
	MissingValue     string        `json:"missingValue,omitempty"`
	FallbackTemplate string        `json:"fallbackTemplate,omitempty"`
}

// TextComposer renders deterministic answer text from tool results.
type TextComposer struct {
	specs []TextSpec
}

func NewTextComposer(specs []TextSpec) *TextComposer {
	return &TextComposer{specs: specs}
}

// Compose picks the first spec whose required tools all have results and
// renders its template. With no matching spec it returns "OK", which the
// orchestrator's missing-output heuristic routes to the LLM fallback.
func (c *TextComposer) Compose(results map[string]tools.Result) string {
	for _, spec := range c.specs {
		if !spec.applies(results) {
			continue
		}
		return spec.render(results)
	}
	return "OK"
}

func (s TextSpec) applies(results map[string]tools.Result) bool {
	for _, tool := range s.Requires {
		if _, ok := results[tool]; !ok {
			return false
		}
	}
	return len(s.Requires) > 0 || len(s.Bindings) > 0
}

func (s TextSpec) render(results map[string]tools.Result) string {
	missing := s.MissingValue
	if missing == "" {
		missing = DefaultMissingValue
	}

	out := s.Template
	anyBound := false
	for _, b := range s.Bindings {
		value := missing
		if res, ok := results[b.ToolRef]; ok {
			if got, found := jsonpath.Get(res.Body, b.JSONPath); found {
				value = formatValue(got.Value(), b.Format)
				anyBound = true
			}
		}
		out = strings.ReplaceAll(out, "{"+b.Key+"}", value)
	}

	if !anyBound && s.FallbackTemplate != "" {
		return s.FallbackTemplate
	}
	return out
}

// formatValue renders a bound value. Unknown formats fall through to plain
// rendering rather than failing the whole template.
func formatValue(v any, format string) string {
	switch format {
	case "currency":
		if f, ok := asFloat(v); ok {
			return fmt.Sprintf("$%.2f", f)
		}
	case "int":
		if f, ok := asFloat(v); ok {
			return fmt.Sprintf("%d", int64(math.Round(f)))
		}
	case "percent":
		if f, ok := asFloat(v); ok {
			return fmt.Sprintf("%.1f%%", f)
		}
	}
	return fmt.Sprintf("%v", v)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

// LooksAllMissing reports whether rendered text carries no substance: it is
// empty, the bare "OK" marker, or a short string dominated by the missing
// placeholder. The orchestrator replaces such output with an LLM answer.
func LooksAllMissing(text, missingValue string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == "OK" {
		return true
	}
	if missingValue == "" {
		missingValue = DefaultMissingValue
	}
	return strings.Count(trimmed, missingValue) >= 2 && len(trimmed) < 240
}
