package provider

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/mealradar/placecache/internal/core/model"
)

// placeholderSeeds are the fixed sample listings served when no provider key
// is configured or every upstream and cache fallback is exhausted. Bearings
// and distances fan the samples out around the query point.
var placeholderSeeds = []struct {
	name     string
	category string
	bearing  float64
	distance float64
	price    int
}{
	{"The Corner Bistro", "french", 30, 400, 2},
	{"Sakura Sushi House", "japanese", 100, 750, 3},
	{"Trattoria Bella", "italian", 170, 1100, 2},
	{"Golden Dragon", "chinese", 250, 600, 1},
	{"El Mercado Taqueria", "mexican", 320, 900, 1},
}

// Placeholder builds the deterministic fallback dataset centered on the query
// coordinate. Same input, same output: IDs are positional and stable so the
// blacklist can suppress individual samples too.
func Placeholder(center model.Coordinate, radiusMeters int) []model.Place {
	maxDist := float64(radiusMeters)
	out := make([]model.Place, 0, len(placeholderSeeds))
	for i, s := range placeholderSeeds {
		dist := s.distance
		if maxDist > 0 && dist > maxDist {
			dist = maxDist / 2
		}
		pt := geo.PointAtBearingAndDistance(orb.Point{center.Lng, center.Lat}, s.bearing, dist)
		out = append(out, model.Place{
			ID:         fmt.Sprintf("sample-%d", i+1),
			Name:       s.name,
			Category:   s.category,
			Coordinate: model.Coordinate{Lat: pt.Lat(), Lng: pt.Lon()},
			PriceTier:  s.price,
			Provenance: model.ProvenanceSample,
		})
	}
	return out
}
