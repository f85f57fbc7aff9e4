package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

// CatalogProvider supplies the full set of tool definitions. Providers are
// read on every refresh; the registry owns the in-memory snapshot.
type CatalogProvider interface {
	Fetch(ctx context.Context) ([]Definition, error)
}

// Registry holds an atomically-swappable snapshot of the tool catalog.
// Readers never observe a partially updated catalog: Refresh builds a new
// map and swaps the pointer in one step.
type Registry struct {
	provider CatalogProvider
	logger   *slog.Logger

	snapshot atomic.Pointer[map[string]Definition]
}

// NewRegistry creates an empty registry. Call Refresh to load the catalog.
func NewRegistry(provider CatalogProvider, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{provider: provider, logger: logger}
	empty := map[string]Definition{}
	r.snapshot.Store(&empty)
	return r
}

// Refresh fetches the catalog and replaces the snapshot. On failure the
// previous snapshot stays in place.
func (r *Registry) Refresh(ctx context.Context) error {
	defs, err := r.provider.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch tool catalog: %w", err)
	}

	next := make(map[string]Definition, len(defs))
	for _, def := range defs {
		if def.Name == "" {
			return fmt.Errorf("tool catalog entry with empty name")
		}
		next[strings.ToLower(def.Name)] = def
	}
	r.snapshot.Store(&next)

	r.logger.Debug("tool catalog refreshed", "tools", len(next))
	return nil
}

// Get resolves a tool definition by name (case-insensitive).
func (r *Registry) Get(name string) (Definition, error) {
	defs := *r.snapshot.Load()
	def, ok := defs[strings.ToLower(name)]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return def, nil
}

// All returns the current snapshot's definitions.
func (r *Registry) All() []Definition {
	defs := *r.snapshot.Load()
	out := make([]Definition, 0, len(defs))
	for _, def := range defs {
		out = append(out, def)
	}
	return out
}
