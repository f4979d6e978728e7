// Package postgrest implements the shared table store against a PostgREST
// endpoint (Supabase-compatible). Expected tables:
//
//	shared_buckets(bucket_key text primary key, grid_lat float8,
//	    grid_lng float8, radius int, center_lat float8, center_lng float8,
//	    places jsonb, contributors int, updated_at timestamptz)
//	blacklist(place_id text primary key, name text, reason text,
//	    report_count int, first_reported_at timestamptz,
//	    last_reported_at timestamptz)
package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"

	"github.com/mealradar/placecache/internal/core/model"
	"github.com/mealradar/placecache/internal/observability"
	"github.com/mealradar/placecache/internal/tablestore"
)

const (
	bucketsTable   = "shared_buckets"
	blacklistTable = "blacklist"
)

// Store implements tablestore.Store over PostgREST.
type Store struct {
	client *postgrest.Client
}

// New builds a store for the given endpoint. The anon key is sent both as
// apikey and bearer token, the way Supabase expects.
func New(rawURL, anonKey string) (*Store, error) {
	if rawURL == "" {
		return nil, errors.New("postgrest url is required")
	}
	headers := map[string]string{}
	if anonKey != "" {
		headers["apikey"] = anonKey
		headers["Authorization"] = "Bearer " + anonKey
	}
	client := postgrest.NewClient(rawURL, "public", headers)
	if client.ClientError != nil {
		return nil, fmt.Errorf("postgrest client: %w", client.ClientError)
	}
	return &Store{client: client}, nil
}

func (s *Store) Configured() bool { return true }

type bucketRow struct {
	BucketKey    string          `json:"bucket_key"`
	GridLat      float64         `json:"grid_lat"`
	GridLng      float64         `json:"grid_lng"`
	Radius       int             `json:"radius"`
	CenterLat    float64         `json:"center_lat"`
	CenterLng    float64         `json:"center_lng"`
	Places       json.RawMessage `json:"places"`
	Contributors int             `json:"contributors"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toRow(b *model.Bucket) (*bucketRow, error) {
	places, err := json.Marshal(b.Places)
	if err != nil {
		return nil, fmt.Errorf("encode places: %w", err)
	}
	return &bucketRow{
		BucketKey:    b.Key.String(),
		GridLat:      b.Key.GridLat,
		GridLng:      b.Key.GridLng,
		Radius:       b.Key.Radius,
		CenterLat:    b.Center.Lat,
		CenterLng:    b.Center.Lng,
		Places:       places,
		Contributors: b.Contributors,
		UpdatedAt:    b.UpdatedAt,
	}, nil
}

func fromRow(r bucketRow) (model.Bucket, error) {
	var places []model.Place
	if len(r.Places) > 0 {
		if err := json.Unmarshal(r.Places, &places); err != nil {
			return model.Bucket{}, fmt.Errorf("decode places for %s: %w", r.BucketKey, err)
		}
	}
	return model.Bucket{
		Key:          model.BucketKey{GridLat: r.GridLat, GridLng: r.GridLng, Radius: r.Radius},
		Center:       model.Coordinate{Lat: r.CenterLat, Lng: r.CenterLng},
		Places:       places,
		Contributors: r.Contributors,
		UpdatedAt:    r.UpdatedAt,
	}, nil
}

func (s *Store) GetBucket(_ context.Context, key model.BucketKey) (*model.Bucket, error) {
	data, _, err := s.client.From(bucketsTable).
		Select("*", "", false).
		Eq("grid_lat", formatGrid(key.GridLat)).
		Eq("grid_lng", formatGrid(key.GridLng)).
		Eq("radius", strconv.Itoa(key.Radius)).
		Execute()
	observability.ObserveSharedOp("get_bucket", err)
	if err != nil {
		return nil, fmt.Errorf("postgrest select bucket %s: %w", key, err)
	}

	var rows []bucketRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode bucket rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	b, err := fromRow(rows[0])
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) UpsertBucket(_ context.Context, b *model.Bucket) error {
	row, err := toRow(b)
	if err != nil {
		return err
	}
	_, _, err = s.client.From(bucketsTable).
		Insert(row, true, "bucket_key", "", "").
		Execute()
	observability.ObserveSharedOp("upsert_bucket", err)
	if err != nil {
		return fmt.Errorf("postgrest upsert bucket %s: %w", b.Key, err)
	}
	return nil
}

func (s *Store) DeleteBucket(_ context.Context, key model.BucketKey) error {
	_, _, err := s.client.From(bucketsTable).
		Delete("", "").
		Eq("bucket_key", key.String()).
		Execute()
	observability.ObserveSharedOp("delete_bucket", err)
	if err != nil {
		return fmt.Errorf("postgrest delete bucket %s: %w", key, err)
	}
	return nil
}

func (s *Store) RecentBuckets(_ context.Context, limit int) ([]model.Bucket, error) {
	if limit <= 0 {
		limit = 20
	}
	data, _, err := s.client.From(bucketsTable).
		Select("*", "", false).
		Order("updated_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		Execute()
	observability.ObserveSharedOp("recent_buckets", err)
	if err != nil {
		return nil, fmt.Errorf("postgrest recent buckets: %w", err)
	}

	var rows []bucketRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode bucket rows: %w", err)
	}
	out := make([]model.Bucket, 0, len(rows))
	for _, r := range rows {
		b, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) GetEntry(_ context.Context, id string) (*model.BlacklistEntry, error) {
	data, _, err := s.client.From(blacklistTable).
		Select("*", "", false).
		Eq("place_id", id).
		Execute()
	observability.ObserveSharedOp("get_entry", err)
	if err != nil {
		return nil, fmt.Errorf("postgrest select blacklist %q: %w", id, err)
	}

	var rows []model.BlacklistEntry
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode blacklist rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) InsertEntry(_ context.Context, e *model.BlacklistEntry) error {
	_, _, err := s.client.From(blacklistTable).
		Insert(e, false, "", "", "").
		Execute()
	observability.ObserveSharedOp("insert_entry", err)
	if err != nil {
		if isDuplicateKey(err) {
			return tablestore.ErrConflict
		}
		return fmt.Errorf("postgrest insert blacklist %q: %w", e.PlaceID, err)
	}
	return nil
}

func (s *Store) UpdateEntry(_ context.Context, e *model.BlacklistEntry) error {
	_, _, err := s.client.From(blacklistTable).
		Update(e, "", "").
		Eq("place_id", e.PlaceID).
		Execute()
	observability.ObserveSharedOp("update_entry", err)
	if err != nil {
		return fmt.Errorf("postgrest update blacklist %q: %w", e.PlaceID, err)
	}
	return nil
}

func (s *Store) DeleteEntry(_ context.Context, id string) error {
	_, _, err := s.client.From(blacklistTable).
		Delete("", "").
		Eq("place_id", id).
		Execute()
	observability.ObserveSharedOp("delete_entry", err)
	if err != nil {
		return fmt.Errorf("postgrest delete blacklist %q: %w", id, err)
	}
	return nil
}

func (s *Store) ListEntries(_ context.Context) ([]model.BlacklistEntry, error) {
	data, _, err := s.client.From(blacklistTable).
		Select("*", "", false).
		Execute()
	observability.ObserveSharedOp("list_entries", err)
	if err != nil {
		return nil, fmt.Errorf("postgrest list blacklist: %w", err)
	}

	var rows []model.BlacklistEntry
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode blacklist rows: %w", err)
	}
	return rows, nil
}

// formatGrid must match model.BucketKey.String precision so equality filters
// hit the stored rows.
func formatGrid(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// Postgres unique violations surface as code 23505 in the PostgREST error
// payload.
func isDuplicateKey(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}
