// Package storage is the persistence boundary. Backends only provide
// get/put by key and enumerate-all within a bucket; no transactions beyond
// single-key atomicity are assumed.
package storage

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
)

var ErrNotFound = errors.New("not found")

// KV stores opaque JSON documents grouped in buckets.
type KV interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, value []byte) error
	// List returns every value in bucket ordered by key.
	List(ctx context.Context, bucket string) ([][]byte, error)
}

// MemoryKV keeps documents in process memory.
type MemoryKV struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{buckets: make(map[string]map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.buckets[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(v), nil
}

func (m *MemoryKV) Put(_ context.Context, bucket, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.buckets[bucket] == nil {
		m.buckets[bucket] = make(map[string][]byte)
	}
	m.buckets[bucket][key] = slices.Clone(value)
	return nil
}

func (m *MemoryKV) List(_ context.Context, bucket string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b := m.buckets[bucket]
	keys := slices.Sorted(maps.Keys(b))
	out := make([][]byte, 0, len(keys))
	for _, k := range keys {
		out = append(out, slices.Clone(b[k]))
	}
	return out, nil
}
