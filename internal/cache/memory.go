package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for single-node deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	maxSize int

	now func() time.Time
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStoreOptions configures the store.
type MemoryStoreOptions struct {
	// MaxSize bounds the number of entries; oldest-expiring entries are
	// evicted first. Zero means 10000.
	MaxSize int
}

// NewMemoryStore creates an in-memory TTL store.
func NewMemoryStore(opts MemoryStoreOptions) *MemoryStore {
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.value, true, nil
}

// Set implements Store. Non-positive TTLs are ignored.
func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	s.prune()
	return nil
}

// Size returns the current number of entries.
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// prune removes expired entries, then evicts the earliest-expiring entries
// until the store fits maxSize. Caller holds the lock.
func (s *MemoryStore) prune() {
	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}

	for len(s.entries) > s.maxSize {
		var oldestKey string
		var oldest time.Time
		for k, e := range s.entries {
			if oldestKey == "" || e.expiresAt.Before(oldest) {
				oldestKey = k
				oldest = e.expiresAt
			}
		}
		delete(s.entries, oldestKey)
	}
}
