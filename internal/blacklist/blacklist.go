// Package blacklist keeps the community registry of suppressed place IDs.
//
// It mirrors the main cache's shared-then-local shape: reports go to the
// shared table first and silently degrade to a device-local table when the
// shared tier is missing or down. Blacklist unavailability must never block a
// user from seeing results, so nothing in this package raises past its own
// boundary on shared-tier trouble.
package blacklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/mealradar/placecache/internal/core/model"
	"github.com/mealradar/placecache/internal/kv"
	"github.com/mealradar/placecache/internal/observability"
	"github.com/mealradar/placecache/internal/tablestore"
)

const (
	localPrefix = "bl:"

	// memoTTL bounds how stale a cached verdict can be, for both the per-id
	// memo and the filter's blocked-set snapshot. Short on purpose: a fresh
	// report should take effect quickly for others.
	memoTTL     = 30 * time.Second
	memoEntries = 4096
)

// Store is the dual-tier blacklist registry.
type Store struct {
	shared tablestore.Store
	local  kv.Store
	memo   *expirable.LRU[string, bool]
	logger *slog.Logger
	now    func() time.Time

	// snap caches the blocked-id set so the filter on every read path does
	// not scan the shared table each time. A published snapshot is read-only;
	// rebuilds swap in a fresh map. Own reports invalidate it immediately,
	// other devices' reports show up after at most memoTTL.
	mu     sync.Mutex
	snap   map[string]struct{}
	snapAt time.Time
}

type Option func(*Store)

// WithClock injects the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(shared tablestore.Store, local kv.Store, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		shared: shared,
		local:  local,
		memo:   expirable.NewLRU[string, bool](memoEntries, nil, memoTTL),
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Report records a community report for id. Shared tier first; any shared
// failure falls back to a local-only report. The returned error is non-nil
// only when even the local fallback could not record the report.
func (s *Store) Report(ctx context.Context, id, name, reason string) error {
	if id == "" {
		return errors.New("blacklist: empty place id")
	}

	if err := s.reportShared(ctx, id, name, reason); err == nil {
		s.memo.Add(id, true)
		s.invalidateSnapshot()
		observability.ObserveBlacklistReport("shared")
		return nil
	} else if !errors.Is(err, tablestore.ErrUnconfigured) {
		s.logger.Warn("shared blacklist report failed, falling back to local", "id", id, "err", err)
	}

	if err := s.reportLocal(ctx, id, name, reason); err != nil {
		return fmt.Errorf("blacklist report %q: %w", id, err)
	}
	s.memo.Add(id, true)
	s.invalidateSnapshot()
	observability.ObserveBlacklistReport("local")
	return nil
}

// reportShared is the existing-vs-new double path. A lost race on first
// report surfaces as ErrConflict from the insert and falls through to the
// increment, so two simultaneous first reports end as one row with count 2.
func (s *Store) reportShared(ctx context.Context, id, name, reason string) error {
	existing, err := s.shared.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	now := s.now()

	if existing == nil {
		e := &model.BlacklistEntry{
			PlaceID:         id,
			Name:            name,
			Reason:          reason,
			ReportCount:     1,
			FirstReportedAt: now,
			LastReportedAt:  now,
		}
		err := s.shared.InsertEntry(ctx, e)
		if err == nil {
			return nil
		}
		if !errors.Is(err, tablestore.ErrConflict) {
			return err
		}
		// somebody else won the first-report race; increment theirs
		existing, err = s.shared.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			// conflict but no row: backend is confused, let local handle it
			return fmt.Errorf("insert conflict but entry %q absent", id)
		}
	}

	existing.ReportCount++
	existing.LastReportedAt = now
	if existing.Name == "" {
		existing.Name = name
	}
	return s.shared.UpdateEntry(ctx, existing)
}

func (s *Store) reportLocal(ctx context.Context, id, name, reason string) error {
	key := localPrefix + id
	now := s.now()

	e := model.BlacklistEntry{
		PlaceID:         id,
		Name:            name,
		Reason:          reason,
		ReportCount:     0,
		FirstReportedAt: now,
	}
	if raw, ok, err := s.local.Get(ctx, key); err == nil && ok {
		var prev model.BlacklistEntry
		if err := json.Unmarshal(raw, &prev); err == nil {
			e = prev
		}
	}
	e.ReportCount++
	e.LastReportedAt = now

	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode local entry: %w", err)
	}
	return s.local.Set(ctx, key, raw)
}

// IsBlacklisted reports whether id appears in the union of the shared and
// local tables. Shared-tier errors count as "not listed there".
func (s *Store) IsBlacklisted(ctx context.Context, id string) bool {
	if v, ok := s.memo.Get(id); ok {
		return v
	}

	listed := false
	if e, err := s.shared.GetEntry(ctx, id); err == nil && e != nil {
		listed = true
	}
	if !listed {
		if _, ok, err := s.local.Get(ctx, localPrefix+id); err == nil && ok {
			listed = true
		}
	}
	s.memo.Add(id, listed)
	return listed
}

// Filter removes every blacklisted item, preserving the order of survivors.
// It works over anything with an Identity, so raw provider records and cached
// places share the one primitive. Each pass reads one consistent blocked-set
// snapshot; snapshots live for up to memoTTL before the tables are rescanned.
func Filter[T model.Identified](ctx context.Context, s *Store, items []T) []T {
	if len(items) == 0 {
		return items
	}
	blocked := s.blockedIDs(ctx)
	if len(blocked) == 0 {
		return items
	}

	out := make([]T, 0, len(items))
	for _, it := range items {
		if _, bad := blocked[it.Identity()]; bad {
			continue
		}
		out = append(out, it)
	}
	return out
}

func (s *Store) blockedIDs(ctx context.Context) map[string]struct{} {
	s.mu.Lock()
	if s.snap != nil && s.now().Sub(s.snapAt) < memoTTL {
		snap := s.snap
		s.mu.Unlock()
		return snap
	}
	s.mu.Unlock()

	blocked := s.buildBlockedIDs(ctx)

	s.mu.Lock()
	s.snap = blocked
	s.snapAt = s.now()
	s.mu.Unlock()
	return blocked
}

func (s *Store) invalidateSnapshot() {
	s.mu.Lock()
	s.snap = nil
	s.mu.Unlock()
}

func (s *Store) buildBlockedIDs(ctx context.Context) map[string]struct{} {
	blocked := make(map[string]struct{})

	if entries, err := s.shared.ListEntries(ctx); err == nil {
		for _, e := range entries {
			blocked[e.PlaceID] = struct{}{}
		}
	} else if !errors.Is(err, tablestore.ErrUnconfigured) {
		s.logger.Warn("shared blacklist list failed, filtering with local only", "err", err)
	}

	keys, err := s.local.Keys(ctx, localPrefix)
	if err != nil {
		s.logger.Warn("local blacklist scan failed", "err", err)
		return blocked
	}
	for _, k := range keys {
		blocked[strings.TrimPrefix(k, localPrefix)] = struct{}{}
	}
	return blocked
}

// List returns the merged audit view. Shared entries win; a local entry whose
// id already exists in the shared table is a stale pre-sync artifact and is
// suppressed from the view, not deleted.
func (s *Store) List(ctx context.Context) []model.BlacklistEntry {
	var out []model.BlacklistEntry
	sharedIDs := make(map[string]struct{})

	if entries, err := s.shared.ListEntries(ctx); err == nil {
		for _, e := range entries {
			sharedIDs[e.PlaceID] = struct{}{}
		}
		out = append(out, entries...)
	} else if !errors.Is(err, tablestore.ErrUnconfigured) {
		s.logger.Warn("shared blacklist list failed, listing local only", "err", err)
	}

	keys, err := s.local.Keys(ctx, localPrefix)
	if err != nil {
		s.logger.Warn("local blacklist scan failed", "err", err)
		keys = nil
	}
	for _, k := range keys {
		raw, ok, err := s.local.Get(ctx, k)
		if err != nil || !ok {
			continue
		}
		var e model.BlacklistEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			s.logger.Warn("local blacklist entry unreadable, skipping", "key", k, "err", err)
			continue
		}
		if _, dup := sharedIDs[e.PlaceID]; dup {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PlaceID < out[j].PlaceID })
	return out
}

// ClearLocal empties only the local fallback table, forcing the next reads to
// resync from the shared table. The shared table is untouched.
func (s *Store) ClearLocal(ctx context.Context) error {
	keys, err := s.local.Keys(ctx, localPrefix)
	if err != nil {
		return fmt.Errorf("blacklist clear local: %w", err)
	}
	for _, k := range keys {
		if err := s.local.Delete(ctx, k); err != nil {
			return fmt.Errorf("blacklist clear local %q: %w", k, err)
		}
	}
	s.memo.Purge()
	s.invalidateSnapshot()
	return nil
}
