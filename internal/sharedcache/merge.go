package sharedcache

import (
	"time"

	"github.com/mealradar/placecache/internal/core/model"
)

// Merge folds a newly fetched place list into an existing bucket (nil for an
// empty one) and returns the next bucket state. Pure function.
//
// The union is right-biased: where both sides carry the same ID, the incoming
// record wins for every field. Existing places keep their relative order,
// then unseen incoming places follow in arrival order, so repeated merges of
// the same input are idempotent on the place set.
//
// The contributor counter counts successful write operations, not distinct
// devices, and over-counts when the same payload is merged twice. That
// approximation is accepted; see the package doc for the concurrency model.
func Merge(existing *model.Bucket, key model.BucketKey, center model.Coordinate, incoming []model.Place, now time.Time) model.Bucket {
	next := model.Bucket{
		Key:          key,
		Center:       center,
		Contributors: 1,
		UpdatedAt:    now,
	}

	if existing == nil {
		next.Places = dedupe(incoming)
		return next
	}

	next.Contributors = existing.Contributors + 1

	byID := make(map[string]model.Place, len(incoming))
	for _, p := range incoming {
		byID[p.ID] = p
	}

	merged := make([]model.Place, 0, len(existing.Places)+len(incoming))
	seen := make(map[string]struct{}, len(existing.Places)+len(incoming))
	for _, p := range existing.Places {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		if inc, ok := byID[p.ID]; ok {
			merged = append(merged, inc)
			continue
		}
		merged = append(merged, p)
	}
	for _, p := range incoming {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		merged = append(merged, p)
	}

	next.Places = merged
	return next
}

func dedupe(places []model.Place) []model.Place {
	out := make([]model.Place, 0, len(places))
	seen := make(map[string]struct{}, len(places))
	for _, p := range places {
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
