// Package spatial quantizes raw coordinates and radii into cache identities.
//
// The shared tier deliberately collapses nearby queries onto one bucket: every
// coordinate inside the same grid cell and every radius within the same tier
// map to the same BucketKey. The local tier keeps a much finer key so one
// device never shares entries across meaningfully different positions.
package spatial

import (
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/mealradar/placecache/internal/core/model"
)

const (
	// GridStep is the shared-tier snap interval in degrees, about 1 km at
	// mid-latitudes.
	GridStep = 0.01

	// localStep is the local-tier rounding interval, about 100 m.
	localStep = 0.001
)

// RadiusTiers is the ascending set of normalized search radii in meters.
// Requests above the largest tier clamp to it.
var RadiusTiers = []int{3000, 5000, 8000, 10000}

// Quantize maps a raw coordinate and requested radius to the shared bucket
// identity. Total and pure: the same input always yields a byte-identical key.
func Quantize(c model.Coordinate, radiusMeters int) model.BucketKey {
	return model.BucketKey{
		GridLat: snap(c.Lat, GridStep),
		GridLng: snap(c.Lng, GridStep),
		Radius:  NormalizeRadius(radiusMeters),
	}
}

// NormalizeRadius returns the smallest tier covering the requested radius,
// or the largest tier when the request exceeds them all.
func NormalizeRadius(radiusMeters int) int {
	for _, t := range RadiusTiers {
		if radiusMeters <= t {
			return t
		}
	}
	return RadiusTiers[len(RadiusTiers)-1]
}

// LocalKey builds the per-device cache key: coordinate rounded to ~100 m,
// radius taken verbatim. The human-readable prefix keeps stored keys easy to
// inspect; the hash suffix guards against any float formatting drift.
func LocalKey(c model.Coordinate, radiusMeters int) string {
	lat := snap(c.Lat, localStep)
	lng := snap(c.Lng, localStep)
	plain := fmt.Sprintf("%.3f:%.3f:%d", lat, lng, radiusMeters)
	return fmt.Sprintf("places:%s:%016x", plain, xxhash.Sum64String(plain))
}

// snap truncates toward the lower cell edge, so a cell covers
// [edge, edge+step). The nudge keeps exact multiples of step from landing in
// the cell below when the division comes out a hair under the integer.
func snap(v, step float64) float64 {
	return math.Floor(v/step+1e-9) * step
}
