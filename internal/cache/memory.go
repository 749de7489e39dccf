package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryEntries = 4096

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is an in-process LRU backend. Expired entries stay resident
// until evicted by capacity pressure, so they remain available as stale
// fallbacks.
type MemoryBackend struct {
	mu  sync.Mutex
	lru *lru.Cache[string, memoryEntry]
}

// NewMemoryBackend creates a memory backend holding up to maxEntries
// entries (defaultMemoryEntries when non-positive).
func NewMemoryBackend(maxEntries int) (*MemoryBackend, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMemoryEntries
	}
	l, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &MemoryBackend{lru: l}, nil
}

func (b *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.lru.Get(key)
	if !ok {
		return nil, false, false, nil
	}
	return entry.value, time.Now().Before(entry.expiresAt), true, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lru.Add(key, memoryEntry{value: value, expiresAt: time.Now().Add(ttl)})
	return nil
}

func (b *MemoryBackend) DeleteByPrefix(_ context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prefix == "" {
		b.lru.Purge()
		return nil
	}
	for _, key := range b.lru.Keys() {
		if strings.HasPrefix(key, prefix) {
			b.lru.Remove(key)
		}
	}
	return nil
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lru.Purge()
	return nil
}
