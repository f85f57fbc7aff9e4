package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
)

// catalogDocument is the on-disk/wire shape of a tool catalog.
type catalogDocument struct {
	Tools []Definition `json:"tools"`
}

// FileCatalogProvider reads the catalog from a JSON/JSON5 file.
type FileCatalogProvider struct {
	Path string
}

// Fetch implements CatalogProvider.
func (p *FileCatalogProvider) Fetch(_ context.Context) ([]Definition, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read tool catalog: %w", err)
	}
	var doc catalogDocument
	if err := json5.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tool catalog %s: %w", p.Path, err)
	}
	return doc.Tools, nil
}

// HTTPCatalogProvider fetches the catalog from a config service endpoint.
type HTTPCatalogProvider struct {
	URL    string
	Client *http.Client
}

// Fetch implements CatalogProvider.
func (p *HTTPCatalogProvider) Fetch(ctx context.Context) ([]Definition, error) {
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch tool catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tool catalog endpoint returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read tool catalog: %w", err)
	}
	var doc catalogDocument
	if err := json5.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse tool catalog: %w", err)
	}
	return doc.Tools, nil
}
