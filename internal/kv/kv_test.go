package kv

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemory(64, time.Minute),
		"sqlite": sq,
	}
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("Get missing = ok=%v err=%v", ok, err)
			}
			if err := s.Set(ctx, "a", []byte("one")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := s.Set(ctx, "a", []byte("two")); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}
			v, ok, err := s.Get(ctx, "a")
			if err != nil || !ok || string(v) != "two" {
				t.Fatalf("Get = %q ok=%v err=%v, want \"two\"", v, ok, err)
			}
			if err := s.Delete(ctx, "a"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, ok, _ := s.Get(ctx, "a"); ok {
				t.Fatalf("key survived delete")
			}
			// deleting again is a no-op
			if err := s.Delete(ctx, "a"); err != nil {
				t.Fatalf("Delete missing: %v", err)
			}
		})
	}
}

func TestStore_KeysPrefix(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, k := range []string{"bl:1", "bl:2", "places:x"} {
				if err := s.Set(ctx, k, []byte("v")); err != nil {
					t.Fatalf("Set %q: %v", k, err)
				}
			}
			got, err := s.Keys(ctx, "bl:")
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			sort.Strings(got)
			if len(got) != 2 || got[0] != "bl:1" || got[1] != "bl:2" {
				t.Fatalf("Keys(bl:) = %v", got)
			}
			all, err := s.Keys(ctx, "")
			if err != nil {
				t.Fatalf("Keys all: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("Keys(\"\") = %v, want 3 keys", all)
			}
		})
	}
}
