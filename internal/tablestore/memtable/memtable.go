// Package memtable is an in-process tablestore.Store. It backs tests and the
// single-process demo configuration; it has the same row-atomic upsert
// semantics as the real backends, just without the network.
package memtable

import (
	"context"
	"sort"
	"sync"

	"github.com/mealradar/placecache/internal/core/model"
	"github.com/mealradar/placecache/internal/tablestore"
)

type Store struct {
	mu      sync.Mutex
	buckets map[string]model.Bucket
	entries map[string]model.BlacklistEntry

	// FailWith, when set, makes every operation return that error. Tests use
	// it to simulate a shared-tier outage.
	FailWith error
}

func New() *Store {
	return &Store{
		buckets: make(map[string]model.Bucket),
		entries: make(map[string]model.BlacklistEntry),
	}
}

func (s *Store) Configured() bool { return true }

func (s *Store) GetBucket(_ context.Context, key model.BucketKey) (*model.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	b, ok := s.buckets[key.String()]
	if !ok {
		return nil, nil
	}
	cp := b
	cp.Places = append([]model.Place(nil), b.Places...)
	return &cp, nil
}

func (s *Store) UpsertBucket(_ context.Context, b *model.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	cp := *b
	cp.Places = append([]model.Place(nil), b.Places...)
	s.buckets[b.Key.String()] = cp
	return nil
}

func (s *Store) DeleteBucket(_ context.Context, key model.BucketKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	delete(s.buckets, key.String())
	return nil
}

func (s *Store) RecentBuckets(_ context.Context, limit int) ([]model.Bucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	out := make([]model.Bucket, 0, len(s.buckets))
	for _, b := range s.buckets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetEntry(_ context.Context, id string) (*model.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	cp := e
	return &cp, nil
}

func (s *Store) InsertEntry(_ context.Context, e *model.BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	if _, exists := s.entries[e.PlaceID]; exists {
		return tablestore.ErrConflict
	}
	s.entries[e.PlaceID] = *e
	return nil
}

func (s *Store) UpdateEntry(_ context.Context, e *model.BlacklistEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	s.entries[e.PlaceID] = *e
	return nil
}

func (s *Store) DeleteEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	delete(s.entries, id)
	return nil
}

func (s *Store) ListEntries(_ context.Context) ([]model.BlacklistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	out := make([]model.BlacklistEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlaceID < out[j].PlaceID })
	return out, nil
}
