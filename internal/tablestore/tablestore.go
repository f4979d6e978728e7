// Package tablestore abstracts the remote shared table backend. Any
// document or row store with equality filters and conflict-free upsert can
// implement it; the cache and blacklist layers never talk to a backend
// directly.
package tablestore

import (
	"context"
	"errors"

	"github.com/mealradar/placecache/internal/core/model"
)

// ErrConflict reports that an insert hit an already-existing row. Callers use
// it to detect the two-writers-first-report race and fall through to an
// update.
var ErrConflict = errors.New("tablestore: entry already exists")

// ErrUnconfigured is returned by the Disabled store. A missing shared tier is
// a valid permanent state, not a failure; callers degrade to local-only
// behavior when they see it.
var ErrUnconfigured = errors.New("tablestore: shared tier not configured")

// Store is the shared-table contract. All mutations must be atomic at the row
// level: an upsert is a single insert-or-replace keyed on the bucket key,
// never a delete-plus-insert pair.
type Store interface {
	// Configured reports whether a real backend is attached.
	Configured() bool

	// GetBucket returns the bucket for key, or (nil, nil) when absent.
	GetBucket(ctx context.Context, key model.BucketKey) (*model.Bucket, error)
	// UpsertBucket atomically inserts or replaces the row for b.Key.
	UpsertBucket(ctx context.Context, b *model.Bucket) error
	// DeleteBucket removes the row for key. Missing rows are not an error.
	DeleteBucket(ctx context.Context, key model.BucketKey) error
	// RecentBuckets lists up to limit buckets ordered by recency, newest
	// first. Administrative use only.
	RecentBuckets(ctx context.Context, limit int) ([]model.Bucket, error)

	// GetEntry returns the blacklist entry for id, or (nil, nil) when absent.
	GetEntry(ctx context.Context, id string) (*model.BlacklistEntry, error)
	// InsertEntry creates a new blacklist row, returning ErrConflict if a row
	// for the same id already exists.
	InsertEntry(ctx context.Context, e *model.BlacklistEntry) error
	// UpdateEntry replaces the row for e.PlaceID.
	UpdateEntry(ctx context.Context, e *model.BlacklistEntry) error
	// DeleteEntry removes the row for id.
	DeleteEntry(ctx context.Context, id string) error
	// ListEntries returns every blacklist row.
	ListEntries(ctx context.Context) ([]model.BlacklistEntry, error)
}

// Disabled is the explicit "no shared tier" state. Every operation fails with
// ErrUnconfigured so callers take their local fallback paths.
type Disabled struct{}

func (Disabled) Configured() bool { return false }

func (Disabled) GetBucket(context.Context, model.BucketKey) (*model.Bucket, error) {
	return nil, ErrUnconfigured
}

func (Disabled) UpsertBucket(context.Context, *model.Bucket) error { return ErrUnconfigured }

func (Disabled) DeleteBucket(context.Context, model.BucketKey) error { return ErrUnconfigured }

func (Disabled) RecentBuckets(context.Context, int) ([]model.Bucket, error) {
	return nil, ErrUnconfigured
}

func (Disabled) GetEntry(context.Context, string) (*model.BlacklistEntry, error) {
	return nil, ErrUnconfigured
}

func (Disabled) InsertEntry(context.Context, *model.BlacklistEntry) error { return ErrUnconfigured }

func (Disabled) UpdateEntry(context.Context, *model.BlacklistEntry) error { return ErrUnconfigured }

func (Disabled) DeleteEntry(context.Context, string) error { return ErrUnconfigured }

func (Disabled) ListEntries(context.Context) ([]model.BlacklistEntry, error) {
	return nil, ErrUnconfigured
}
