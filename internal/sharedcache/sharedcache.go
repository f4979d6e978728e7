// Package sharedcache implements the community cache tier: one bucket per
// quantized grid cell and radius tier, shared by every nearby user.
//
// Concurrency model: many devices write the same bucket with no lock and no
// coordinator. Each Put reads whatever bucket state it can see, merges, and
// issues one atomic row upsert. Two truly concurrent Puts race and the last
// committed row wins; a contribution lost that way is picked back up by the
// next device's merge. The contributor counter therefore approximates write
// operations, not distinct users. This is a deliberate eventual-consistency
// trade-off, not a bug to fix here.
package sharedcache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mealradar/placecache/internal/core/model"
	"github.com/mealradar/placecache/internal/observability"
	"github.com/mealradar/placecache/internal/spatial"
	"github.com/mealradar/placecache/internal/tablestore"
)

// DefaultTTL is how long a shared bucket stays trusted by readers. Longer
// than the local TTL: the shared tier absorbs a larger, slower-moving
// audience.
const DefaultTTL = 6 * time.Hour

// Store is the shared cache tier over a table store backend.
type Store struct {
	table  tablestore.Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Store)

// WithTTL overrides the shared bucket lifetime.
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

func New(table tablestore.Store, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		table:  table,
		ttl:    DefaultTTL,
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Get returns the shared places and contributor count for the query's bucket.
// A bucket past the TTL is lazily deleted and reported absent: no background
// sweep exists, every reader performs the check-then-delete. Backend errors
// degrade to a miss; they never escape this tier.
func (s *Store) Get(ctx context.Context, c model.Coordinate, radiusMeters int) ([]model.Place, int, bool) {
	key := spatial.Quantize(c, radiusMeters)

	b, err := s.table.GetBucket(ctx, key)
	if err != nil {
		s.logUnavailable("shared cache read failed", key, err)
		observability.ObserveTier("shared", "error")
		return nil, 0, false
	}
	if b == nil {
		observability.ObserveTier("shared", "miss")
		return nil, 0, false
	}

	if s.now().Sub(b.UpdatedAt) > s.ttl {
		if err := s.table.DeleteBucket(ctx, key); err != nil {
			s.logger.Warn("expired bucket delete failed", "key", key.String(), "err", err)
		}
		observability.ObserveTier("shared", "expired")
		return nil, 0, false
	}

	observability.ObserveTier("shared", "hit")
	return b.Places, b.Contributors, true
}

// Put merges newPlaces into the query's bucket and upserts the result.
//
// The merge base is read without the TTL check: recency only gates whether
// readers trust a bucket, a stale-but-present bucket is still a valid base
// for writers to fold into. The upsert is a single insert-or-replace on the
// bucket key; there is deliberately no lock around the read-merge-write, see
// the package doc.
func (s *Store) Put(ctx context.Context, c model.Coordinate, radiusMeters int, newPlaces []model.Place) error {
	key := spatial.Quantize(c, radiusMeters)

	existing, err := s.table.GetBucket(ctx, key)
	if err != nil {
		// Absent base still lets the write proceed; losing the merge base
		// only costs the earlier contributions, which the next writer's
		// merge will restore.
		s.logUnavailable("merge base read failed, writing fresh bucket", key, err)
		existing = nil
	}

	center := model.Coordinate{Lat: key.GridLat, Lng: key.GridLng}
	next := Merge(existing, key, center, newPlaces, s.now())

	if err := s.table.UpsertBucket(ctx, &next); err != nil {
		s.logUnavailable("shared cache write failed", key, err)
		return err
	}
	observability.ObserveMergedBucket(len(next.Places))
	return nil
}

// Recent lists the newest shared buckets, for administrative inspection.
func (s *Store) Recent(ctx context.Context, limit int) ([]model.Bucket, error) {
	return s.table.RecentBuckets(ctx, limit)
}

func (s *Store) logUnavailable(msg string, key model.BucketKey, err error) {
	if errors.Is(err, tablestore.ErrUnconfigured) {
		// Not an error: running without a shared tier is a supported state.
		s.logger.Debug(msg, "key", key.String(), "err", err)
		return
	}
	s.logger.Warn(msg, "key", key.String(), "err", err)
}
