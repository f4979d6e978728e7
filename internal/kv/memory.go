package kv

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is an in-process Store bounded by entry count and retention. The
// retention here only caps memory; callers layer their own TTL semantics on
// top of the stored payloads.
type Memory struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemory creates a memory store holding at most maxEntries values for at
// most retention. A zero retention keeps entries until evicted by size.
func NewMemory(maxEntries int, retention time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Memory{lru: expirable.NewLRU[string, []byte](maxEntries, nil, retention)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte) error {
	m.lru.Add(key, val)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	all := m.lru.Keys()
	if prefix == "" {
		return all, nil
	}
	out := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}
