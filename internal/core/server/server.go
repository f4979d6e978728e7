// Package server wires the HTTP surface: routes, middleware, and graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mealradar/placecache/internal/blacklist"
	"github.com/mealradar/placecache/internal/core/config"
	"github.com/mealradar/placecache/internal/core/health"
	"github.com/mealradar/placecache/internal/core/middleware"
	"github.com/mealradar/placecache/internal/core/router"
	"github.com/mealradar/placecache/internal/orchestrator"
	"github.com/mealradar/placecache/internal/sharedcache"
)

// Deps carries everything the HTTP surface serves from.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Blacklist    *blacklist.Store
	Shared       *sharedcache.Store
	Ready        health.ReadinessReporter
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// listener fails. In-flight background cache writes are drained before
// returning.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, deps Deps) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if deps.Ready != nil {
		r.Get("/readyz", health.Readiness(deps.Ready))
	}
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/places", router.HandlePlaces(logger, deps.Orchestrator))
	r.Get("/places/fresh", router.HandlePlacesFresh(logger, deps.Orchestrator))

	r.Post("/blacklist", router.HandleBlacklistReport(logger, deps.Blacklist))
	r.Get("/blacklist", router.HandleBlacklistList(logger, deps.Blacklist))
	r.Delete("/blacklist/local", router.HandleBlacklistClearLocal(logger, deps.Blacklist))

	r.Get("/buckets/recent", router.HandleRecentBuckets(logger, deps.Shared))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		deps.Orchestrator.Wait()
		return nil
	case err := <-errCh:
		return err
	}
}
