// Package main provides the CLI entry point for the loom orchestration
// server.
//
// Loom turns user prompts into tool-call plans, executes them with caching
// and coalescing, composes generative UI documents, and keeps those
// documents live through a durable event stream pushed to websocket
// clients.
//
// Start the server:
//
//	loom serve --config loom.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"

	"github.com/loomhq/loom/internal/actions"
	"github.com/loomhq/loom/internal/answer"
	"github.com/loomhq/loom/internal/cache"
	"github.com/loomhq/loom/internal/chat"
	"github.com/loomhq/loom/internal/compose"
	"github.com/loomhq/loom/internal/config"
	"github.com/loomhq/loom/internal/events"
	"github.com/loomhq/loom/internal/hostcheck"
	"github.com/loomhq/loom/internal/observability"
	"github.com/loomhq/loom/internal/plan"
	"github.com/loomhq/loom/internal/planner"
	"github.com/loomhq/loom/internal/server"
	"github.com/loomhq/loom/internal/store"
	"github.com/loomhq/loom/internal/tools"
	"github.com/loomhq/loom/internal/ui"
)

// Build metadata, injected via -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "loom",
		Short:   "Loom orchestration server",
		Long:    "Loom is the orchestration core behind a tool-calling, generative-UI assistant.",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the orchestration server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "loom.yaml", "Path to configuration file")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.NewLogger(observability.LogConfig{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
	slog.SetDefault(logger)
	logger.Info("starting loom", "version", version)

	metrics := observability.NewMetrics(nil)

	// Tool catalog.
	var provider tools.CatalogProvider
	if cfg.Tools.CatalogPath != "" {
		provider = &tools.FileCatalogProvider{Path: cfg.Tools.CatalogPath}
	} else {
		provider = &tools.HTTPCatalogProvider{URL: cfg.Tools.CatalogURL}
	}
	registry := tools.NewRegistry(provider, logger)
	if err := registry.Refresh(ctx); err != nil {
		return fmt.Errorf("initial tool catalog load: %w", err)
	}
	refresher, err := tools.StartRefresher(registry, cfg.Tools.ReloadEvery, logger)
	if err != nil {
		return fmt.Errorf("start catalog refresher: %w", err)
	}
	defer refresher.Stop()

	// Tool-result cache.
	var toolCache cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		redisStore, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("connect redis cache: %w", err)
		}
		defer redisStore.Close()
		toolCache = redisStore
	default:
		toolCache = cache.NewMemoryStore(cache.MemoryStoreOptions{MaxSize: cfg.Cache.MaxSize})
	}

	executor := tools.NewExecutor(
		registry,
		toolCache,
		hostcheck.New(cfg.Tools.AllowedHosts),
		tools.ExecutorOptions{
			DefaultTimeout:   cfg.Tools.DefaultTimeout,
			DefaultRetries:   cfg.Tools.DefaultRetries,
			DefaultCacheTTL:  cfg.Tools.DefaultCacheTTL,
			MaxResponseBytes: cfg.Tools.MaxResponseBytes,
		},
		logger,
		metrics,
	)

	// Event stream.
	nc, err := nats.Connect(cfg.Events.URL, nats.Name("loom"))
	if err != nil {
		return fmt.Errorf("connect nats: %w", err)
	}
	defer nc.Drain() //nolint:errcheck
	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("jetstream context: %w", err)
	}
	stream, err := events.EnsureStream(ctx, js, cfg.Events.StreamName, cfg.Events.Subjects)
	if err != nil {
		return err
	}
	publisher := events.NewPublisher(js, logger, metrics)

	// Action routing.
	router := actions.NewRouter(actions.FileRouteProvider{Path: cfg.Actions.RoutesPath}, logger)
	if err := router.Refresh(ctx); err != nil {
		return fmt.Errorf("initial action routes load: %w", err)
	}
	actionHandler := actions.NewHandler(router, executor, publisher, logger)

	// Composition.
	var textSpecs []compose.TextSpec
	if cfg.Compose.TextSpecPath != "" {
		textSpecs, err = compose.LoadTextSpecs(cfg.Compose.TextSpecPath)
		if err != nil {
			return fmt.Errorf("load text specs: %w", err)
		}
	}
	textComposer := compose.NewTextComposer(textSpecs)
	uiComposer := compose.NewUIComposer(compose.UIOptions{
		IncludeDataSnapshot:  !cfg.Compose.UI.ExcludeDataSnapshot,
		IncludeBindings:      !cfg.Compose.UI.ExcludeBindings,
		IncludeSubscriptions: !cfg.Compose.UI.ExcludeSubscriptions,
		AllowedToolRefs:      cfg.Compose.UI.AllowedToolRefs,
	})

	// Chat pipeline.
	plannerClient := planner.NewClient(cfg.Planner.BaseURL, cfg.Planner.Timeout, logger, metrics)
	answers := answer.NewOpenAIService(answer.Options{
		APIKey:  cfg.Answer.APIKey,
		BaseURL: cfg.Answer.BaseURL,
		Model:   cfg.Answer.Model,
	}, metrics)
	conversations := store.NewMemoryStore(0)
	instances := ui.NewMemoryInstanceStore()
	planExecutor := plan.NewExecutor(executor, cfg.Chat.BestEffortTools, logger)
	orchestrator := chat.NewOrchestrator(
		plannerClient,
		planExecutor,
		registry,
		textComposer,
		uiComposer,
		answers,
		conversations,
		instances,
		chat.Options{
			MaxToolSteps:    cfg.Chat.MaxToolSteps,
			FallbackEnabled: cfg.Chat.EnableFallback,
			MissingValue:    compose.DefaultMissingValue,
			UICatalog:       uiCatalog(),
		},
		logger,
	)

	// Refresh loop.
	hub := server.NewHub(logger)
	refreshHandler := events.NewRefreshHandler(instances, executor, hub, logger, metrics)
	subscriber, err := events.NewSubscriber(ctx, stream, refreshHandler, events.SubscriberOptions{
		Durable:       cfg.Events.DurableName,
		BatchSize:     cfg.Events.BatchSize,
		FetchMaxWait:  cfg.Events.FetchMaxWait,
		AckWait:       cfg.Events.AckWait,
		MaxAckPending: cfg.Events.MaxAckPending,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("attach event consumer: %w", err)
	}
	go subscriber.Run(ctx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	srv := server.New(addr, orchestrator, actionHandler, hub, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := srv.Shutdown(context.Background()); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("shutdown incomplete", "error", err)
	}
	return nil
}

// uiCatalog is the component vocabulary advertised to the planner. The
// core passes component trees through without interpreting them; this list
// only guides plan generation.
func uiCatalog() json.RawMessage {
	catalog := map[string]any{
		"components": []string{"Column", "Row", "Card", "Text", "Metric", "Table", "Chart"},
	}
	raw, _ := json.Marshal(catalog)
	return raw
}
