package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// StartRefresher schedules periodic catalog refreshes. The returned cron
// is already running; stop it during shutdown.
func StartRefresher(registry *Registry, every time.Duration, logger *slog.Logger) (*cron.Cron, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if every <= 0 {
		every = time.Minute
	}

	c := cron.New()
	spec := fmt.Sprintf("@every %s", every)
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := registry.Refresh(ctx); err != nil {
			logger.Warn("tool catalog refresh failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule catalog refresh: %w", err)
	}
	c.Start()
	return c, nil
}
