// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/kgrec/internal/api"
	"github.com/tomtom215/kgrec/internal/app"
	"github.com/tomtom215/kgrec/internal/config"
	"github.com/tomtom215/kgrec/internal/logging"
	"github.com/tomtom215/kgrec/internal/supervisor"
	"github.com/tomtom215/kgrec/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("graph_driver", cfg.Graph.Driver).
		Str("cache_backend", cfg.Cache.Backend).
		Str("model_dir", cfg.Model.Dir).
		Int("model_version", cfg.Model.Version).
		Msg("Starting KGRec with supervisor tree")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	components, err := app.New(ctx, cfg, logging.Logger())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer done()
		if err := components.Close(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("Error closing components")
		}
	}()

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Error().Err(err).Msg("Failed to create supervisor tree")
		return
	}

	reload := services.NewSnapshotReloadService(
		components.Checkpoints,
		components.Snapshots,
		components.Engine,
		components.Graph,
		services.SnapshotReloadConfig{
			Interval:      cfg.Model.ReloadInterval,
			PinnedVersion: cfg.Model.Version,
			StrictCatalog: cfg.Model.StrictCatalog,
		},
		logging.Logger(),
	)
	tree.AddModelService(reload)

	server := newHTTPServer(cfg, components)
	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, cfg.Server.ShutdownTimeout, logging.Logger()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	// The channel delivers exactly one value when the tree exits.
	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
		treeErr = <-errCh
	case treeErr = <-errCh:
	}
	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		logging.Error().Err(treeErr).Msg("Supervisor tree error")
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("KGRec stopped gracefully")
}

// newHTTPServer builds the router and the listener settings.
func newHTTPServer(cfg *config.Config, c *app.Components) *http.Server {
	mwCfg := api.DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.Server.CORSOrigins
	mwCfg.RateLimitRequests = cfg.Server.RateLimitReqs
	mwCfg.RateLimitWindow = cfg.Server.RateLimitWindow
	mwCfg.RateLimitDisabled = cfg.Server.RateLimitDisabled

	checks := map[string]api.Pinger{"graph": c.Graph}
	var feedback api.FeedbackLog
	if c.Feedback != nil {
		feedback = c.Feedback
	}
	handler := api.NewHandler(c.Engine, feedback, checks)

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handler, api.NewChiMiddleware(mwCfg)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
