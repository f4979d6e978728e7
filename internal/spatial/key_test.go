package spatial

import (
	"testing"

	"github.com/mealradar/placecache/internal/core/model"
)

func TestQuantize_NearbyCoordinatesCollapse(t *testing.T) {
	// Both points sit inside the [37.77, 37.78) x [-122.42, -122.41) cell.
	a := Quantize(model.Coordinate{Lat: 37.7749, Lng: -122.4194}, 5000)
	b := Quantize(model.Coordinate{Lat: 37.7755, Lng: -122.4190}, 5000)
	if a != b {
		t.Fatalf("nearby coordinates produced different keys: %v vs %v", a, b)
	}
	if got, want := a.String(), "37.77:-122.42:5000"; got != want {
		t.Fatalf("key = %q, want %q", got, want)
	}
}

func TestQuantize_DistantCoordinatesDiffer(t *testing.T) {
	a := Quantize(model.Coordinate{Lat: 37.7749, Lng: -122.4194}, 5000)
	b := Quantize(model.Coordinate{Lat: 37.8049, Lng: -122.4194}, 5000)
	if a == b {
		t.Fatalf("coordinates three cells apart collapsed onto %v", a)
	}
}

func TestQuantize_ExactGridEdgeStaysInCell(t *testing.T) {
	// A coordinate sitting exactly on a cell edge belongs to that cell, not
	// the one below, regardless of float division error.
	k := Quantize(model.Coordinate{Lat: 37.77, Lng: -122.42}, 3000)
	if got, want := k.String(), "37.77:-122.42:3000"; got != want {
		t.Fatalf("key = %q, want %q", got, want)
	}
}

func TestQuantize_Deterministic(t *testing.T) {
	c := model.Coordinate{Lat: 59.3293, Lng: 18.0686}
	k1 := Quantize(c, 4200)
	k2 := Quantize(c, 4200)
	if k1.String() != k2.String() {
		t.Fatalf("same input produced %q then %q", k1.String(), k2.String())
	}
}

func TestNormalizeRadius(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{0, 3000},
		{1500, 3000},
		{3000, 3000},
		{3001, 5000},
		{5000, 5000},
		{7999, 8000},
		{9000, 10000},
		{10000, 10000},
		{250000, 10000},
	}
	for _, tc := range cases {
		if got := NormalizeRadius(tc.in); got != tc.want {
			t.Errorf("NormalizeRadius(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeRadius_SameTierSameKey(t *testing.T) {
	c := model.Coordinate{Lat: 37.7749, Lng: -122.4194}
	a := Quantize(c, 4000)
	b := Quantize(c, 5000)
	if a != b {
		t.Fatalf("radii in the same tier produced different keys: %v vs %v", a, b)
	}
}

func TestLocalKey_FinerThanSharedGrid(t *testing.T) {
	// ~70 m apart: same shared bucket, different local keys.
	a := model.Coordinate{Lat: 37.7749, Lng: -122.4194}
	b := model.Coordinate{Lat: 37.7755, Lng: -122.4194}
	if Quantize(a, 5000) != Quantize(b, 5000) {
		t.Fatalf("expected shared keys to collide")
	}
	if LocalKey(a, 5000) == LocalKey(b, 5000) {
		t.Fatalf("expected local keys to differ")
	}
}

func TestLocalKey_RadiusVerbatim(t *testing.T) {
	c := model.Coordinate{Lat: 37.7749, Lng: -122.4194}
	if LocalKey(c, 4000) == LocalKey(c, 5000) {
		t.Fatalf("local key must not normalize radius")
	}
}
