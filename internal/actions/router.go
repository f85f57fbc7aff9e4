package actions

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// RouteProvider supplies the full set of action routes.
type RouteProvider interface {
	Fetch(ctx context.Context) ([]Route, error)
}

// FileRouteProvider reads routes from a JSON5 document of the form
// {"routes": [...]}.
type FileRouteProvider struct {
	Path string
}

func (p FileRouteProvider) Fetch(context.Context) ([]Route, error) {
	raw, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("read action routes: %w", err)
	}
	var doc struct {
		Routes []Route `json:"routes"`
	}
	if err := json5.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse action routes %s: %w", p.Path, err)
	}
	return doc.Routes, nil
}

// Router resolves action types to routes from an atomically-swapped
// snapshot, mirroring the tool registry's refresh model.
type Router struct {
	provider RouteProvider
	logger   *slog.Logger

	snapshot atomic.Pointer[map[string]Route]
}

func NewRouter(provider RouteProvider, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{provider: provider, logger: logger}
	empty := map[string]Route{}
	r.snapshot.Store(&empty)
	return r
}

// Refresh replaces the route snapshot. On failure the previous snapshot
// stays in place.
func (r *Router) Refresh(ctx context.Context) error {
	routes, err := r.provider.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch action routes: %w", err)
	}
	next := make(map[string]Route, len(routes))
	for _, route := range routes {
		if route.ActionType == "" {
			return fmt.Errorf("action route with empty actionType")
		}
		if route.Tool == "" {
			return fmt.Errorf("action route %q without tool", route.ActionType)
		}
		next[strings.ToLower(route.ActionType)] = route
	}
	r.snapshot.Store(&next)
	r.logger.Debug("action routes refreshed", "routes", len(next))
	return nil
}

// Resolve returns the route for an action type (case-insensitive).
func (r *Router) Resolve(actionType string) (Route, error) {
	routes := *r.snapshot.Load()
	route, ok := routes[strings.ToLower(actionType)]
	if !ok {
		return Route{}, fmt.Errorf("%w: %s", ErrNoRoute, actionType)
	}
	return route, nil
}
