package compose

import (
	"fmt"
	"os"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

type textSpecDocument struct {
	TextSpecs []TextSpec `json:"textSpecs"`
}

// LoadTextSpecs reads answer templates from a JSON5 document of the form
// {"textSpecs": [...]}.
func LoadTextSpecs(path string) ([]TextSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read text specs: %w", err)
	}
	var doc textSpecDocument
	if err := json5.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse text specs %s: %w", path, err)
	}
	for i, spec := range doc.TextSpecs {
		if spec.Name == "" {
			return nil, fmt.Errorf("text spec %d has no name", i)
		}
	}
	return doc.TextSpecs, nil
}
