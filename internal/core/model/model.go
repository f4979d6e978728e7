// Package model defines core domain types shared across the library.
package model

import (
	"fmt"
	"time"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// Provenance records where a place record came from.
type Provenance string

const (
	ProvenanceProvider  Provenance = "provider"
	ProvenanceCommunity Provenance = "community"
	ProvenanceSample    Provenance = "sample"
)

// Place is a point of interest. Identity is the provider-assigned ID; every
// other field may be overwritten by a newer record with the same ID.
type Place struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Category   string     `json:"category,omitempty"`
	Coordinate Coordinate `json:"coordinate"`
	Address    string     `json:"address,omitempty"`
	Phone      string     `json:"phone,omitempty"`
	Hours      string     `json:"hours,omitempty"`
	PriceTier  int        `json:"price_tier,omitempty"`
	Open       *bool      `json:"open,omitempty"`
	ImageURL   string     `json:"image_url,omitempty"`
	Provenance Provenance `json:"provenance,omitempty"`
}

// Identity satisfies Identified so place lists can pass through the
// blacklist filter.
func (p Place) Identity() string { return p.ID }

// Identified is anything carrying a stable item ID. The blacklist filter
// operates generically over it, so raw provider records and cached places go
// through the same primitive.
type Identified interface {
	Identity() string
}

// BucketKey identifies a shared cache bucket: a coordinate snapped to the
// shared grid plus a normalized radius tier. Its string form is used verbatim
// as the storage key, so the encoding must stay byte-stable.
type BucketKey struct {
	GridLat float64 `json:"grid_lat"`
	GridLng float64 `json:"grid_lng"`
	Radius  int     `json:"radius"`
}

// String encodes the key with two decimals, matching the 0.01 degree grid.
func (k BucketKey) String() string {
	return fmt.Sprintf("%.2f:%.2f:%d", k.GridLat, k.GridLng, k.Radius)
}

// Bucket is one shared cache record: the union of every place list ever
// contributed to its grid cell and radius tier.
type Bucket struct {
	Key          BucketKey  `json:"key"`
	Center       Coordinate `json:"center"`
	Places       []Place    `json:"places"`
	Contributors int        `json:"contributors"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// BlacklistEntry is one community-reported suppression. The report count is
// monotonic; it only resets through an explicit administrative delete.
type BlacklistEntry struct {
	PlaceID         string    `json:"place_id"`
	Name            string    `json:"name"`
	Reason          string    `json:"reason"`
	ReportCount     int       `json:"report_count"`
	FirstReportedAt time.Time `json:"first_reported_at"`
	LastReportedAt  time.Time `json:"last_reported_at"`
}
