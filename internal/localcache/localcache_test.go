package localcache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mealradar/placecache/internal/core/model"
	"github.com/mealradar/placecache/internal/kv"
	"github.com/mealradar/placecache/internal/spatial"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var sf = model.Coordinate{Lat: 37.7749, Lng: -122.4194}

func places(ids ...string) []model.Place {
	out := make([]model.Place, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Place{ID: id, Name: "place " + id, Coordinate: sf})
	}
	return out
}

func TestPutGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(16, 0), discard())

	if _, ok := s.Get(ctx, sf, 5000); ok {
		t.Fatalf("expected miss on empty store")
	}

	s.Put(ctx, sf, 5000, places("a", "b"))
	got, ok := s.Get(ctx, sf, 5000)
	if !ok || len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Fatalf("Get = %+v ok=%v", got, ok)
	}
}

func TestPut_OverwritesWholesale(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(16, 0), discard())

	s.Put(ctx, sf, 5000, places("a", "b", "c"))
	s.Put(ctx, sf, 5000, places("z"))

	got, ok := s.Get(ctx, sf, 5000)
	if !ok || len(got) != 1 || got[0].ID != "z" {
		t.Fatalf("Get after overwrite = %+v ok=%v", got, ok)
	}
}

func TestGet_ExpiredEntryPurged(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := &now
	mem := kv.NewMemory(16, 0)
	s := New(mem, discard(),
		WithTTL(time.Hour),
		WithClock(func() time.Time { return *clock }))

	s.Put(ctx, sf, 5000, places("a"))

	// one second inside the TTL: still valid
	later := now.Add(time.Hour - time.Second)
	clock = &later
	if _, ok := s.Get(ctx, sf, 5000); !ok {
		t.Fatalf("entry inside TTL treated as expired")
	}

	past := now.Add(time.Hour + time.Second)
	clock = &past
	if _, ok := s.Get(ctx, sf, 5000); ok {
		t.Fatalf("entry past TTL treated as valid")
	}

	// the stale entry is gone from the underlying store too
	if _, present, _ := mem.Get(ctx, spatial.LocalKey(sf, 5000)); present {
		t.Fatalf("stale entry not purged")
	}
}

func TestGet_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory(16, 0)
	s := New(mem, discard())

	key := spatial.LocalKey(sf, 5000)
	if err := mem.Set(ctx, key, []byte("{not json")); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok := s.Get(ctx, sf, 5000); ok {
		t.Fatalf("corrupt entry served as a hit")
	}
	if _, present, _ := mem.Get(ctx, key); present {
		t.Fatalf("corrupt entry not purged")
	}
}

func TestGet_RadiusIsVerbatim(t *testing.T) {
	ctx := context.Background()
	s := New(kv.NewMemory(16, 0), discard())

	s.Put(ctx, sf, 4000, places("a"))
	if _, ok := s.Get(ctx, sf, 5000); ok {
		t.Fatalf("local tier must not share across radii")
	}
	if _, ok := s.Get(ctx, sf, 4000); !ok {
		t.Fatalf("exact radius should hit")
	}
}
