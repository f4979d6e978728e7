package orchestrator

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mealradar/placecache/internal/blacklist"
	"github.com/mealradar/placecache/internal/core/model"
	"github.com/mealradar/placecache/internal/logger"
	"github.com/mealradar/placecache/internal/observability"
	"github.com/mealradar/placecache/internal/provider"
)

const (
	freshAttempts  = 3
	freshRadiusCap = 10000
)

// radiusLadder returns the search radii for the discovery attempts: the
// requested radius, then 1.5x, then the cap.
func radiusLadder(base int) [freshAttempts]int {
	second := int(float64(base) * 1.5)
	if second > freshRadiusCap {
		second = freshRadiusCap
	}
	return [freshAttempts]int{base, second, freshRadiusCap}
}

// FetchFresh resolves a "show me something new" request: places the user has
// already seen (shownIDs) are excluded, and the provider is queried at
// progressively wider radii until an attempt yields at least one unseen
// place. Results fetched along the way still populate both cache tiers at
// their own radius, so widened searches benefit ordinary fetches too.
//
// When every attempt comes back empty the tier chain is walked with the same
// exclusion applied. Like Fetch, this never returns an error.
func (o *Orchestrator) FetchFresh(ctx context.Context, req Request, shownIDs []string) []model.Place {
	log := o.logger.With(
		"request_id", uuid.NewString(),
		"center", req.Center.String(),
		"radius", req.RadiusMeters,
		"shown", len(shownIDs),
	)

	shown := make(map[string]struct{}, len(shownIDs))
	for _, id := range shownIDs {
		shown[id] = struct{}{}
	}

	if o.provider != nil {
		for attempt, radius := range radiusLadder(req.RadiusMeters) {
			places, err := o.provider.SearchNearby(ctx, req.Center, radius, req.Category, req.Limit)
			if err != nil {
				log.Warn("discovery attempt failed", "attempt", attempt+1, "attempt_radius", radius, "err", err)
				continue
			}
			if len(places) == 0 {
				continue
			}

			o.local.Put(ctx, req.Center, radius, places)
			o.writeShared(ctx, req.Center, radius, places)

			fresh := excludeShown(blacklist.Filter(ctx, o.blacklist, places), shown)
			if len(fresh) > 0 {
				log.InfoContext(logger.WithTier(ctx, "provider"), "discovery hit", "attempt", attempt+1, "attempt_radius", radius, "fresh", len(fresh))
				observability.ObserveFetch("provider_fresh")
				return fresh
			}
		}
	}

	return o.freshFallback(ctx, log, req, shown)
}

// freshFallback walks the cache tiers for a discovery request whose provider
// attempts were exhausted.
func (o *Orchestrator) freshFallback(ctx context.Context, log *slog.Logger, req Request, shown map[string]struct{}) []model.Place {
	if places, ok := o.local.Get(ctx, req.Center, req.RadiusMeters); ok {
		if fresh := excludeShown(blacklist.Filter(ctx, o.blacklist, places), shown); len(fresh) > 0 {
			log.InfoContext(logger.WithTier(ctx, "local"), "discovery fell back to local cache", "fresh", len(fresh))
			observability.ObserveFetch("local_fresh")
			return fresh
		}
	}

	if places, _, ok := o.shared.Get(ctx, req.Center, req.RadiusMeters); ok {
		if fresh := excludeShown(blacklist.Filter(ctx, o.blacklist, places), shown); len(fresh) > 0 {
			log.InfoContext(logger.WithTier(ctx, "shared"), "discovery fell back to shared cache", "fresh", len(fresh))
			observability.ObserveFetch("shared_fresh")
			return fresh
		}
	}

	log.InfoContext(logger.WithTier(ctx, "placeholder"), "discovery serving placeholder dataset")
	observability.ObserveFetch("placeholder_fresh")
	return excludeShown(blacklist.Filter(ctx, o.blacklist, provider.Placeholder(req.Center, req.RadiusMeters)), shown)
}

func excludeShown(places []model.Place, shown map[string]struct{}) []model.Place {
	if len(shown) == 0 {
		return places
	}
	out := places[:0:0]
	for _, p := range places {
		if _, seen := shown[p.ID]; !seen {
			out = append(out, p)
		}
	}
	return out
}
