package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mealradar/placecache/internal/blacklist"
	"github.com/mealradar/placecache/internal/core/model"
	"github.com/mealradar/placecache/internal/kv"
	"github.com/mealradar/placecache/internal/localcache"
	"github.com/mealradar/placecache/internal/orchestrator"
	"github.com/mealradar/placecache/internal/sharedcache"
	"github.com/mealradar/placecache/internal/tablestore/memtable"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParsePlacesRequest(t *testing.T) {
	cases := []struct {
		name    string
		query   string
		wantErr bool
		check   func(t *testing.T, req PlacesRequest)
	}{
		{
			name:  "defaults",
			query: "lat=37.7749&lng=-122.4194",
			check: func(t *testing.T, req PlacesRequest) {
				if req.RadiusMeters != 3000 {
					t.Errorf("radius = %d, want default 3000", req.RadiusMeters)
				}
				if req.Limit != defaultLimit {
					t.Errorf("limit = %d, want %d", req.Limit, defaultLimit)
				}
				if req.ForceRefresh {
					t.Error("force should default to false")
				}
			},
		},
		{
			name:  "radius snaps up to the next tier",
			query: "lat=37.77&lng=-122.41&radius=4200",
			check: func(t *testing.T, req PlacesRequest) {
				if req.RadiusMeters != 5000 {
					t.Errorf("radius = %d, want 5000", req.RadiusMeters)
				}
			},
		},
		{
			name:  "oversized radius caps at the widest tier",
			query: "lat=37.77&lng=-122.41&radius=99999",
			check: func(t *testing.T, req PlacesRequest) {
				if req.RadiusMeters != 10000 {
					t.Errorf("radius = %d, want 10000", req.RadiusMeters)
				}
			},
		},
		{
			name:  "shown ids and force flag",
			query: "lat=37.77&lng=-122.41&force=true&shown=p1,%20p2,",
			check: func(t *testing.T, req PlacesRequest) {
				if !req.ForceRefresh {
					t.Error("force=true not parsed")
				}
				if len(req.ShownIDs) != 2 || req.ShownIDs[0] != "p1" || req.ShownIDs[1] != "p2" {
					t.Errorf("shown = %v, want [p1 p2]", req.ShownIDs)
				}
			},
		},
		{name: "missing lat", query: "lng=-122.41", wantErr: true},
		{name: "bad lng", query: "lat=37.77&lng=west", wantErr: true},
		{name: "lat out of range", query: "lat=91&lng=0", wantErr: true},
		{name: "negative limit", query: "lat=37.77&lng=-122.41&limit=-1", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/places?"+tc.query, nil)
			req, err := ParsePlacesRequest(r)
			if tc.wantErr {
				if err == nil {
					t.Fatal("want error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.check(t, req)
		})
	}
}

func newTestDeps(t *testing.T) (*orchestrator.Orchestrator, *blacklist.Store, *localcache.Store) {
	t.Helper()
	log := discard()
	table := memtable.New()
	local := localcache.New(kv.NewMemory(64, time.Hour), log)
	shared := sharedcache.New(table, log)
	bl := blacklist.New(table, kv.NewMemory(64, time.Hour), log)
	return orchestrator.New(local, shared, nil, bl, log), bl, local
}

func TestHandlePlaces(t *testing.T) {
	orch, _, local := newTestDeps(t)
	local.Put(context.Background(), model.Coordinate{Lat: 37.7749, Lng: -122.4194}, 3000,
		[]model.Place{{ID: "p1", Name: "Nopa"}})

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/places?lat=37.7749&lng=-122.4194&radius=3000", nil)
	HandlePlaces(discard(), orch)(rec, r)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Places []model.Place `json:"places"`
		Count  int           `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Places[0].ID != "p1" {
		t.Fatalf("got %+v, want the cached place", resp)
	}
}

func TestHandlePlacesRejectsBadInput(t *testing.T) {
	orch, _, _ := newTestDeps(t)
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/places?lat=abc&lng=0", nil)
	HandlePlaces(discard(), orch)(rec, r)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleBlacklistRoundTrip(t *testing.T) {
	_, bl, _ := newTestDeps(t)
	log := discard()

	body, _ := json.Marshal(map[string]string{
		"place_id": "p2", "name": "Closed Diner", "reason": "permanently closed",
	})
	rec := httptest.NewRecorder()
	HandleBlacklistReport(log, bl)(rec, httptest.NewRequest(http.MethodPost, "/blacklist", bytes.NewReader(body)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("report status = %d, want 202", rec.Code)
	}

	rec = httptest.NewRecorder()
	HandleBlacklistList(log, bl)(rec, httptest.NewRequest(http.MethodGet, "/blacklist", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var resp struct {
		Entries []model.BlacklistEntry `json:"entries"`
		Count   int                    `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || resp.Entries[0].PlaceID != "p2" {
		t.Fatalf("got %+v, want the reported entry", resp)
	}
}

func TestHandleRecentBuckets(t *testing.T) {
	log := discard()
	shared := sharedcache.New(memtable.New(), log)
	center := model.Coordinate{Lat: 37.7749, Lng: -122.4194}
	if err := shared.Put(context.Background(), center, 3000, []model.Place{{ID: "p1", Name: "Nopa"}}); err != nil {
		t.Fatalf("put: %v", err)
	}

	rec := httptest.NewRecorder()
	HandleRecentBuckets(log, shared)(rec, httptest.NewRequest(http.MethodGet, "/buckets/recent", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Buckets []model.Bucket `json:"buckets"`
		Count   int            `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || len(resp.Buckets) != 1 || resp.Buckets[0].Places[0].ID != "p1" {
		t.Fatalf("got %+v, want the shared bucket", resp)
	}
}

func TestHandleRecentBucketsRejectsBadLimit(t *testing.T) {
	shared := sharedcache.New(memtable.New(), discard())
	rec := httptest.NewRecorder()
	HandleRecentBuckets(discard(), shared)(rec, httptest.NewRequest(http.MethodGet, "/buckets/recent?limit=0", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleBlacklistReportRequiresPlaceID(t *testing.T) {
	_, bl, _ := newTestDeps(t)
	rec := httptest.NewRecorder()
	body := bytes.NewReader([]byte(`{"name":"no id"}`))
	HandleBlacklistReport(discard(), bl)(rec, httptest.NewRequest(http.MethodPost, "/blacklist", body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
