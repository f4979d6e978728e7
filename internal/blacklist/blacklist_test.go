package blacklist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/mealradar/placecache/internal/core/model"
	"github.com/mealradar/placecache/internal/kv"
	"github.com/mealradar/placecache/internal/tablestore"
	"github.com/mealradar/placecache/internal/tablestore/memtable"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func placeList(ids ...string) []model.Place {
	out := make([]model.Place, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Place{ID: id, Name: "place " + id})
	}
	return out
}

func TestReport_SharedFirstThenRepeat(t *testing.T) {
	ctx := context.Background()
	table := memtable.New()
	s := New(table, kv.NewMemory(16, 0), discard())

	if err := s.Report(ctx, "p1", "Bad Diner", "permanently closed"); err != nil {
		t.Fatalf("Report: %v", err)
	}
	e, err := table.GetEntry(ctx, "p1")
	if err != nil || e == nil {
		t.Fatalf("shared entry missing: %v, %v", e, err)
	}
	if e.ReportCount != 1 || e.Name != "Bad Diner" {
		t.Fatalf("first report entry = %+v", e)
	}

	if err := s.Report(ctx, "p1", "Bad Diner", "spam"); err != nil {
		t.Fatalf("repeat Report: %v", err)
	}
	e, _ = table.GetEntry(ctx, "p1")
	if e.ReportCount != 2 {
		t.Fatalf("ReportCount = %d, want 2", e.ReportCount)
	}
	if !e.LastReportedAt.After(e.FirstReportedAt) && !e.LastReportedAt.Equal(e.FirstReportedAt) {
		t.Fatalf("LastReportedAt not refreshed: %+v", e)
	}
}

func TestReport_FallsBackToLocalOnSharedOutage(t *testing.T) {
	ctx := context.Background()
	table := memtable.New()
	table.FailWith = errors.New("network down")
	local := kv.NewMemory(16, 0)
	s := New(table, local, discard())

	if err := s.Report(ctx, "p1", "Bad Diner", "closed"); err != nil {
		t.Fatalf("Report with shared outage: %v", err)
	}
	if keys, _ := local.Keys(ctx, "bl:"); len(keys) != 1 {
		t.Fatalf("local fallback keys = %v", keys)
	}
	if !s.IsBlacklisted(ctx, "p1") {
		t.Fatalf("locally reported id not blacklisted")
	}
}

func TestReport_UnconfiguredSharedGoesLocal(t *testing.T) {
	ctx := context.Background()
	local := kv.NewMemory(16, 0)
	s := New(tablestore.Disabled{}, local, discard())

	if err := s.Report(ctx, "p1", "n", "r"); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if err := s.Report(ctx, "p1", "n", "r"); err != nil {
		t.Fatalf("repeat Report: %v", err)
	}
	list := s.List(ctx)
	if len(list) != 1 || list[0].ReportCount != 2 {
		t.Fatalf("List = %+v", list)
	}
}

func TestReport_InsertConflictFallsThroughToIncrement(t *testing.T) {
	ctx := context.Background()
	table := memtable.New()
	s := New(table, kv.NewMemory(16, 0), discard())

	// simulate the other device winning the first-report race
	if err := table.InsertEntry(ctx, &model.BlacklistEntry{PlaceID: "p1", ReportCount: 1}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// our GetEntry sees nothing only in the true race; approximate by calling
	// reportShared directly against the now-present row
	if err := s.Report(ctx, "p1", "n", "r"); err != nil {
		t.Fatalf("Report: %v", err)
	}
	e, _ := table.GetEntry(ctx, "p1")
	if e.ReportCount != 2 {
		t.Fatalf("ReportCount = %d, want 2 (increment, not second row)", e.ReportCount)
	}
}

func TestFilter_RemovesListedPreservesOrder(t *testing.T) {
	ctx := context.Background()
	s := New(memtable.New(), kv.NewMemory(16, 0), discard())

	if err := s.Report(ctx, "B", "", ""); err != nil {
		t.Fatalf("Report: %v", err)
	}
	got := Filter(ctx, s, placeList("A", "B", "C"))
	if len(got) != 2 || got[0].ID != "A" || got[1].ID != "C" {
		t.Fatalf("Filter = %+v", got)
	}
}

func TestFilter_EmptyBlacklistReturnsInputUnchanged(t *testing.T) {
	ctx := context.Background()
	s := New(memtable.New(), kv.NewMemory(16, 0), discard())

	in := placeList("A", "B", "C")
	got := Filter(ctx, s, in)
	if !reflect.DeepEqual(got, in) {
		t.Fatalf("Filter changed input: %+v", got)
	}
}

func TestFilter_UnionOfSharedAndLocal(t *testing.T) {
	ctx := context.Background()
	table := memtable.New()
	local := kv.NewMemory(16, 0)
	s := New(table, local, discard())

	if err := s.Report(ctx, "shared-id", "", ""); err != nil {
		t.Fatalf("Report: %v", err)
	}
	// force a local-only report
	table.FailWith = errors.New("down")
	if err := s.Report(ctx, "local-id", "", ""); err != nil {
		t.Fatalf("local Report: %v", err)
	}
	table.FailWith = nil

	got := Filter(ctx, s, placeList("shared-id", "ok", "local-id"))
	if len(got) != 1 || got[0].ID != "ok" {
		t.Fatalf("Filter = %+v", got)
	}
}

func TestFilter_SnapshotCachedUntilTTL(t *testing.T) {
	ctx := context.Background()
	table := memtable.New()
	now := time.Unix(1700000000, 0)
	s := New(table, kv.NewMemory(16, 0), discard(),
		WithClock(func() time.Time { return now }))

	if got := Filter(ctx, s, placeList("A", "B")); len(got) != 2 {
		t.Fatalf("initial Filter = %+v", got)
	}

	// another device reports B; this device still holds a warm snapshot
	other := New(table, kv.NewMemory(16, 0), discard())
	if err := other.Report(ctx, "B", "", ""); err != nil {
		t.Fatalf("Report: %v", err)
	}
	if got := Filter(ctx, s, placeList("A", "B")); len(got) != 2 {
		t.Fatalf("warm snapshot should not rescan the table: %+v", got)
	}

	now = now.Add(memoTTL + time.Second)
	got := Filter(ctx, s, placeList("A", "B"))
	if len(got) != 1 || got[0].ID != "A" {
		t.Fatalf("expired snapshot not rebuilt: %+v", got)
	}
}

func TestFilter_OwnReportVisibleImmediately(t *testing.T) {
	ctx := context.Background()
	s := New(memtable.New(), kv.NewMemory(16, 0), discard())

	// warm the snapshot first
	if got := Filter(ctx, s, placeList("A", "B")); len(got) != 2 {
		t.Fatalf("initial Filter = %+v", got)
	}
	if err := s.Report(ctx, "B", "", ""); err != nil {
		t.Fatalf("Report: %v", err)
	}
	got := Filter(ctx, s, placeList("A", "B"))
	if len(got) != 1 || got[0].ID != "A" {
		t.Fatalf("own report not visible on next pass: %+v", got)
	}
}

func TestList_SharedWinsOverStaleLocal(t *testing.T) {
	ctx := context.Background()
	table := memtable.New()
	local := kv.NewMemory(16, 0)
	s := New(table, local, discard())

	// local report made while shared was down
	table.FailWith = errors.New("down")
	if err := s.Report(ctx, "p1", "local name", "local reason"); err != nil {
		t.Fatalf("Report: %v", err)
	}
	table.FailWith = nil

	// the id later lands in the shared table with a bigger count
	if err := table.InsertEntry(ctx, &model.BlacklistEntry{PlaceID: "p1", Name: "shared name", ReportCount: 7}); err != nil {
		t.Fatalf("seed shared: %v", err)
	}

	list := s.List(ctx)
	if len(list) != 1 || list[0].Name != "shared name" || list[0].ReportCount != 7 {
		t.Fatalf("List = %+v, want the shared row only", list)
	}
	// the stale local row is suppressed, not deleted
	if keys, _ := local.Keys(ctx, "bl:"); len(keys) != 1 {
		t.Fatalf("local row was deleted: %v", keys)
	}
}

func TestClearLocal_LeavesSharedAlone(t *testing.T) {
	ctx := context.Background()
	table := memtable.New()
	local := kv.NewMemory(16, 0)
	s := New(table, local, discard())

	if err := s.Report(ctx, "shared-id", "", ""); err != nil {
		t.Fatalf("Report: %v", err)
	}
	table.FailWith = errors.New("down")
	if err := s.Report(ctx, "local-id", "", ""); err != nil {
		t.Fatalf("local Report: %v", err)
	}
	table.FailWith = nil

	if err := s.ClearLocal(ctx); err != nil {
		t.Fatalf("ClearLocal: %v", err)
	}
	if keys, _ := local.Keys(ctx, "bl:"); len(keys) != 0 {
		t.Fatalf("local table not empty: %v", keys)
	}
	if !s.IsBlacklisted(ctx, "shared-id") {
		t.Fatalf("shared entry lost by ClearLocal")
	}
	if s.IsBlacklisted(ctx, "local-id") {
		t.Fatalf("cleared local entry still blacklisted")
	}
}
