// Package jsonpath evaluates the small JSONPath subset used by compose
// specs and publish specs: `$.a.b[0].c`.
package jsonpath

import (
	"strings"

	"github.com/tidwall/gjson"
)

// Get resolves path against a JSON document. The second return value is
// false when the path is absent or the document is not valid JSON.
func Get(raw []byte, path string) (gjson.Result, bool) {
	translated, ok := translate(path)
	if !ok {
		return gjson.Result{}, false
	}
	if translated == "" {
		// "$" addresses the root document.
		res := gjson.ParseBytes(raw)
		return res, res.Type != gjson.Null || res.Raw != ""
	}
	res := gjson.GetBytes(raw, translated)
	return res, res.Exists()
}

// translate converts `$.a.b[0].c` into gjson's `a.b.0.c` form.
func translate(path string) (string, bool) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", false
	}
	p = strings.TrimPrefix(p, "$")
	p = strings.TrimPrefix(p, ".")
	if p == "" {
		return "", true
	}

	var sb strings.Builder
	for _, part := range strings.Split(p, ".") {
		if part == "" {
			continue
		}
		s := part
		for {
			i := strings.IndexByte(s, '[')
			if i < 0 {
				appendSegment(&sb, s)
				break
			}
			if name := s[:i]; name != "" {
				appendSegment(&sb, name)
			}
			j := strings.IndexByte(s, ']')
			if j <= i {
				return "", false
			}
			appendSegment(&sb, s[i+1:j])
			s = s[j+1:]
			if s == "" {
				break
			}
		}
	}
	return sb.String(), true
}

func appendSegment(sb *strings.Builder, seg string) {
	if seg == "" {
		return
	}
	if sb.Len() > 0 {
		sb.WriteByte('.')
	}
	sb.WriteString(seg)
}
