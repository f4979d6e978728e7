// Package localcache implements the per-device cache tier. Keys are finer
// grained than the shared tier on purpose: one device should not reuse an
// entry fetched for a meaningfully different position, even though the shared
// tier would happily collapse the two.
package localcache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mealradar/placecache/internal/core/model"
	"github.com/mealradar/placecache/internal/kv"
	"github.com/mealradar/placecache/internal/observability"
	"github.com/mealradar/placecache/internal/spatial"
)

// DefaultTTL is how long a local entry stays trusted. Shorter than the shared
// TTL: the local tier serves exactly one user and can afford to refetch.
const DefaultTTL = 3 * time.Hour

type entry struct {
	WrittenAt time.Time     `json:"written_at"`
	Places    []model.Place `json:"places"`
}

// Store is the device-local cache tier. Single writer, last write wins.
type Store struct {
	kv     kv.Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Store)

// WithTTL overrides the local entry lifetime.
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithClock injects the time source, for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(store kv.Store, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		kv:     store,
		ttl:    DefaultTTL,
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the cached places for the exact (rounded coordinate, radius)
// pair, or ok=false on a miss. Stale and unreadable entries are purged as a
// side effect and reported as misses; storage trouble never escapes as an
// error.
func (s *Store) Get(ctx context.Context, c model.Coordinate, radiusMeters int) ([]model.Place, bool) {
	key := spatial.LocalKey(c, radiusMeters)

	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		s.logger.Warn("local cache read failed, treating as miss", "key", key, "err", err)
		observability.ObserveTier("local", "error")
		return nil, false
	}
	if !ok {
		observability.ObserveTier("local", "miss")
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		s.logger.Warn("local cache entry unreadable, purging", "key", key, "err", err)
		s.purge(ctx, key)
		observability.ObserveTier("local", "error")
		return nil, false
	}

	if s.now().Sub(e.WrittenAt) > s.ttl {
		s.purge(ctx, key)
		observability.ObserveTier("local", "expired")
		return nil, false
	}

	observability.ObserveTier("local", "hit")
	return e.Places, true
}

// Put overwrites any existing entry for the exact key with the new list and
// the current timestamp.
func (s *Store) Put(ctx context.Context, c model.Coordinate, radiusMeters int, places []model.Place) {
	key := spatial.LocalKey(c, radiusMeters)
	raw, err := json.Marshal(entry{WrittenAt: s.now(), Places: places})
	if err != nil {
		s.logger.Warn("local cache encode failed", "key", key, "err", err)
		return
	}
	if err := s.kv.Set(ctx, key, raw); err != nil {
		s.logger.Warn("local cache write failed", "key", key, "err", err)
	}
}

// Keys lists every locally cached place key, for administrative scans.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	return s.kv.Keys(ctx, "places:")
}

func (s *Store) purge(ctx context.Context, key string) {
	if err := s.kv.Delete(ctx, key); err != nil {
		s.logger.Warn("local cache purge failed", "key", key, "err", err)
	}
}
