// Package orchestrator implements the top-level fetch path across the cache
// tiers, the upstream provider, and the blacklist.
//
// The fallback order is fixed: local cache, shared cache, provider, then a
// deterministic placeholder dataset. Lower tiers are repopulated on the way
// back up. Every terminal return passes through the blacklist filter exactly
// once, and no tier error ever reaches the caller; the only caller-visible
// failure mode is an empty result after every fallback is exhausted.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mealradar/placecache/internal/blacklist"
	"github.com/mealradar/placecache/internal/core/model"
	"github.com/mealradar/placecache/internal/localcache"
	"github.com/mealradar/placecache/internal/logger"
	"github.com/mealradar/placecache/internal/observability"
	"github.com/mealradar/placecache/internal/provider"
	"github.com/mealradar/placecache/internal/sharedcache"
	"github.com/mealradar/placecache/internal/tablestore"
)

// DefaultSharedWriteTimeout bounds the fire-and-forget shared write after a
// provider fetch.
const DefaultSharedWriteTimeout = 2 * time.Second

// Request is one orchestrated fetch.
type Request struct {
	Center       model.Coordinate
	RadiusMeters int
	Category     string
	Limit        int
	ForceRefresh bool
}

type Orchestrator struct {
	local     *localcache.Store
	shared    *sharedcache.Store
	provider  provider.Client // nil when no upstream is configured
	blacklist *blacklist.Store
	logger    *slog.Logger

	sharedWriteTimeout time.Duration
	writes             sync.WaitGroup
}

type Option func(*Orchestrator)

// WithSharedWriteTimeout overrides the background shared-write timeout.
func WithSharedWriteTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.sharedWriteTimeout = d
		}
	}
}

func New(local *localcache.Store, shared *sharedcache.Store, prov provider.Client, bl *blacklist.Store, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		local:              local,
		shared:             shared,
		provider:           prov,
		blacklist:          bl,
		logger:             logger,
		sharedWriteTimeout: DefaultSharedWriteTimeout,
	}
	for _, f := range opts {
		f(o)
	}
	return o
}

// Fetch resolves one request through the tier chain. It never returns an
// error; exhausted fallbacks yield the filtered placeholder dataset.
func (o *Orchestrator) Fetch(ctx context.Context, req Request) []model.Place {
	log := o.logger.With(
		"request_id", uuid.NewString(),
		"center", req.Center.String(),
		"radius", req.RadiusMeters,
		"force", req.ForceRefresh,
	)

	if !req.ForceRefresh {
		// an empty cached list is the same as a miss, the next tier may know
		// more
		if places, ok := o.local.Get(ctx, req.Center, req.RadiusMeters); ok && len(places) > 0 {
			log.DebugContext(logger.WithTier(ctx, "local"), "local cache hit", "places", len(places))
			observability.ObserveFetch("local")
			return blacklist.Filter(ctx, o.blacklist, places)
		}

		if places, contributors, ok := o.shared.Get(ctx, req.Center, req.RadiusMeters); ok && len(places) > 0 {
			log.InfoContext(logger.WithTier(ctx, "shared"), "shared cache hit", "places", len(places), "contributors", contributors)
			// the local tier is a read-through cache of the shared tier
			o.local.Put(ctx, req.Center, req.RadiusMeters, places)
			observability.ObserveFetch("shared")
			return blacklist.Filter(ctx, o.blacklist, places)
		}
	}

	if places, ok := o.fetchUpstream(ctx, log, req.Center, req.RadiusMeters, req.Category, req.Limit); ok {
		observability.ObserveFetch("provider")
		return blacklist.Filter(ctx, o.blacklist, places)
	}

	if req.ForceRefresh {
		// step 1 was skipped; whatever the local tier still holds beats a
		// placeholder
		if places, ok := o.local.Get(ctx, req.Center, req.RadiusMeters); ok && len(places) > 0 {
			log.InfoContext(logger.WithTier(ctx, "local"), "forced refresh fell back to local cache", "places", len(places))
			observability.ObserveFetch("local_fallback")
			return blacklist.Filter(ctx, o.blacklist, places)
		}
	}

	log.InfoContext(logger.WithTier(ctx, "placeholder"), "serving placeholder dataset")
	observability.ObserveFetch("placeholder")
	return blacklist.Filter(ctx, o.blacklist, provider.Placeholder(req.Center, req.RadiusMeters))
}

// fetchUpstream calls the provider and, on success, repopulates both cache
// tiers. The shared write is fire-and-forget: it detaches from the request
// context so an abandoned fetch still benefits other users, and its failure
// is logged, never surfaced.
func (o *Orchestrator) fetchUpstream(ctx context.Context, log *slog.Logger, center model.Coordinate, radiusMeters int, category string, limit int) ([]model.Place, bool) {
	if o.provider == nil {
		return nil, false
	}

	places, err := o.provider.SearchNearby(ctx, center, radiusMeters, category, limit)
	if err != nil {
		log.Warn("provider search failed, falling through", "err", err)
		return nil, false
	}
	if len(places) == 0 {
		log.Info("provider returned no places")
		return nil, false
	}

	o.local.Put(ctx, center, radiusMeters, places)
	o.writeShared(ctx, center, radiusMeters, places)
	return places, true
}

func (o *Orchestrator) writeShared(ctx context.Context, center model.Coordinate, radiusMeters int, places []model.Place) {
	detached := context.WithoutCancel(ctx)
	o.writes.Add(1)
	go func() {
		defer o.writes.Done()
		wctx, cancel := context.WithTimeout(detached, o.sharedWriteTimeout)
		defer cancel()
		err := o.shared.Put(wctx, center, radiusMeters, places)
		if err != nil && !errors.Is(err, tablestore.ErrUnconfigured) {
			o.logger.Warn("background shared cache write failed",
				"center", center.String(), "radius", radiusMeters, "err", err)
		}
	}()
}

// Wait blocks until in-flight background shared writes finish. Shutdown and
// tests use it; the fetch paths never do.
func (o *Orchestrator) Wait() {
	o.writes.Wait()
}
