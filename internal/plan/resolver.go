package plan

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/loomhq/loom/internal/jsonpath"
	"github.com/loomhq/loom/internal/tools"
)

var stepRefPattern = regexp.MustCompile(`\{\{step:([^.}]+)\.([^}]+)\}\}`)

// resolveArgs substitutes {{step:<id>.<path>}} references in string args
// with values from earlier step results. A whole-string reference keeps the
// extracted value's native type; an embedded reference renders as text.
func resolveArgs(args map[string]any, prior map[string]tools.Result) (map[string]any, error) {
	if len(args) == 0 {
		return args, nil
	}
	resolved := make(map[string]any, len(args))
	for k, v := range args {
		s, ok := v.(string)
		if !ok {
			resolved[k] = v
			continue
		}

		if m := stepRefPattern.FindStringSubmatch(s); m != nil && m[0] == s {
			value, err := lookupRef(m[1], m[2], prior)
			if err != nil {
				return nil, fmt.Errorf("arg %q: %w", k, err)
			}
			resolved[k] = value
			continue
		}

		var refErr error
		out := stepRefPattern.ReplaceAllStringFunc(s, func(ref string) string {
			m := stepRefPattern.FindStringSubmatch(ref)
			value, err := lookupRef(m[1], m[2], prior)
			if err != nil {
				refErr = fmt.Errorf("arg %q: %w", k, err)
				return ref
			}
			return fmt.Sprintf("%v", value)
		})
		if refErr != nil {
			return nil, refErr
		}
		resolved[k] = out
	}
	return resolved, nil
}

func lookupRef(stepID, path string, prior map[string]tools.Result) (any, error) {
	res, ok := prior[stepID]
	if !ok {
		return nil, fmt.Errorf("reference to unknown or failed step %q", stepID)
	}
	value, found := jsonpath.Get(res.Body, "$."+strings.TrimPrefix(path, "."))
	if !found {
		return nil, fmt.Errorf("path %q not found in result of step %q", path, stepID)
	}
	return value.Value(), nil
}
