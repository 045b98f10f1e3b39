// Package app provides the top-level application lifecycle management for
// marketgraph. It wires together all dependencies (stores, caches, blob
// storage, upstream clients, services and pipelines) and runs the configured
// operating mode alongside the operational HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/marketgraph/internal/config"
	"github.com/alanyoungcy/marketgraph/internal/notify"
	"github.com/alanyoungcy/marketgraph/internal/server"
	"github.com/alanyoungcy/marketgraph/internal/server/handler"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the metrics
// server when enabled, and runs the selected mode. One-shot modes return when
// their run completes; scheduled modes block until the context is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	if a.cfg.Metrics.Enabled {
		a.startServer(runCtx, g, deps)
	}

	p := a.buildPipeline(deps)
	g.Go(func() error {
		// A finished mode also stops the metrics server.
		defer stop()
		err := a.runMode(runCtx, p)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.notify(context.WithoutCancel(runCtx), p, notify.EventRunFailed,
				fmt.Sprintf("marketgraph %s failed", a.cfg.Mode), err.Error())
		}
		return err
	})
	return g.Wait()
}

func (a *App) runMode(ctx context.Context, p *pipelineSet) error {
	switch strings.ToLower(a.cfg.Mode) {
	case "scrape":
		return a.ScrapeMode(ctx, p)
	case "volatility":
		return a.VolatilityMode(ctx, p)
	case "relations":
		return a.RelationsMode(ctx, p)
	case "analyze":
		return a.AnalyzeMode(ctx, p)
	case "full":
		return a.FullMode(ctx, p)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// startServer runs the operational HTTP server until ctx is done.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	srv := server.NewServer(
		server.Config{Addr: a.cfg.Metrics.Addr},
		deps.Metrics.Handler(),
		handler.NewHealthHandler(deps.Health, a.logger),
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
