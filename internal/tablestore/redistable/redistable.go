// Package redistable implements the shared table store on Redis. Buckets are
// JSON rows keyed by the bucket key string with a ZSET recency index;
// blacklist entries live in a single hash so first-insert conflicts are
// detectable with HSETNX.
package redistable

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mealradar/placecache/internal/core/model"
	"github.com/mealradar/placecache/internal/observability"
	"github.com/mealradar/placecache/internal/tablestore"
)

const (
	bucketPrefix  = "bucket:"
	bucketIndex   = "buckets:by-updated"
	blacklistHash = "blacklist:entries"
)

type Option func(*redis.Options)

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

// Store implements tablestore.Store on a Redis backend.
type Store struct {
	rdb *redis.Client
}

// New connects and pings the backend. A failed ping is surfaced immediately
// so the caller can decide to run without a shared tier.
func New(ctx context.Context, addr string, opts ...Option) (*Store, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     16,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Configured() bool { return true }

func (s *Store) Close() error {
	if err := s.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

func (s *Store) GetBucket(ctx context.Context, key model.BucketKey) (*model.Bucket, error) {
	raw, err := s.rdb.Get(ctx, bucketPrefix+key.String()).Bytes()
	observability.ObserveSharedOp("get_bucket", ignoreNil(err))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET bucket %s: %w", key, err)
	}

	var b model.Bucket
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode bucket %s: %w", key, err)
	}
	return &b, nil
}

// UpsertBucket writes the bucket row with a single SET. The SET is atomic at
// the row level, so a concurrent writer either sees the old row or the new
// one, never a half-written bucket. The recency index rides along in a
// pipeline; it is advisory and may lag the row under failure.
func (s *Store) UpsertBucket(ctx context.Context, b *model.Bucket) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode bucket %s: %w", b.Key, err)
	}

	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, bucketPrefix+b.Key.String(), raw, 0)
		p.ZAdd(ctx, bucketIndex, redis.Z{
			Score:  float64(b.UpdatedAt.UnixMilli()),
			Member: b.Key.String(),
		})
		return nil
	})
	observability.ObserveSharedOp("upsert_bucket", err)
	if err != nil {
		return fmt.Errorf("redis upsert bucket %s: %w", b.Key, err)
	}
	return nil
}

func (s *Store) DeleteBucket(ctx context.Context, key model.BucketKey) error {
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, bucketPrefix+key.String())
		p.ZRem(ctx, bucketIndex, key.String())
		return nil
	})
	observability.ObserveSharedOp("delete_bucket", err)
	if err != nil {
		return fmt.Errorf("redis delete bucket %s: %w", key, err)
	}
	return nil
}

func (s *Store) RecentBuckets(ctx context.Context, limit int) ([]model.Bucket, error) {
	if limit <= 0 {
		limit = 20
	}
	keys, err := s.rdb.ZRevRange(ctx, bucketIndex, 0, int64(limit-1)).Result()
	observability.ObserveSharedOp("recent_buckets", err)
	if err != nil {
		return nil, fmt.Errorf("redis ZREVRANGE buckets: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = bucketPrefix + k
	}
	vals, err := s.rdb.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis MGET %d buckets: %w", len(full), err)
	}

	out := make([]model.Bucket, 0, len(vals))
	for i, v := range vals {
		if v == nil {
			continue // row deleted after the index read
		}
		str, ok := v.(string)
		if !ok {
			continue
		}
		var b model.Bucket
		if err := json.Unmarshal([]byte(str), &b); err != nil {
			return nil, fmt.Errorf("decode bucket %s: %w", keys[i], err)
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (*model.BlacklistEntry, error) {
	raw, err := s.rdb.HGet(ctx, blacklistHash, id).Bytes()
	observability.ObserveSharedOp("get_entry", ignoreNil(err))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET blacklist %q: %w", id, err)
	}

	var e model.BlacklistEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode blacklist entry %q: %w", id, err)
	}
	return &e, nil
}

// InsertEntry uses HSETNX so two near-simultaneous first reports of the same
// id cannot both create a row: the loser observes ErrConflict and falls
// through to an increment.
func (s *Store) InsertEntry(ctx context.Context, e *model.BlacklistEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode blacklist entry %q: %w", e.PlaceID, err)
	}

	set, err := s.rdb.HSetNX(ctx, blacklistHash, e.PlaceID, raw).Result()
	observability.ObserveSharedOp("insert_entry", err)
	if err != nil {
		return fmt.Errorf("redis HSETNX blacklist %q: %w", e.PlaceID, err)
	}
	if !set {
		return tablestore.ErrConflict
	}
	return nil
}

func (s *Store) UpdateEntry(ctx context.Context, e *model.BlacklistEntry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode blacklist entry %q: %w", e.PlaceID, err)
	}
	err = s.rdb.HSet(ctx, blacklistHash, e.PlaceID, raw).Err()
	observability.ObserveSharedOp("update_entry", err)
	if err != nil {
		return fmt.Errorf("redis HSET blacklist %q: %w", e.PlaceID, err)
	}
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, id string) error {
	err := s.rdb.HDel(ctx, blacklistHash, id).Err()
	observability.ObserveSharedOp("delete_entry", err)
	if err != nil {
		return fmt.Errorf("redis HDEL blacklist %q: %w", id, err)
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context) ([]model.BlacklistEntry, error) {
	rows, err := s.rdb.HGetAll(ctx, blacklistHash).Result()
	observability.ObserveSharedOp("list_entries", err)
	if err != nil {
		return nil, fmt.Errorf("redis HGETALL blacklist: %w", err)
	}

	out := make([]model.BlacklistEntry, 0, len(rows))
	for id, raw := range rows {
		var e model.BlacklistEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode blacklist entry %q: %w", id, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// redis.Nil is an absence signal, not an operational failure.
func ignoreNil(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
