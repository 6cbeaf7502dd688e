package snapshot

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is the snapshot lifetime when none is configured.
const DefaultTTL = 5 * time.Minute

type memoryEntry struct {
	snapshot  Snapshot
	expiresAt time.Time
}

// MemoryCache is an in-process Cache with a fixed TTL.
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryCache creates a cache whose entries live for ttl. A nil clock
// uses time.Now; ttl <= 0 uses DefaultTTL.
func NewMemoryCache(ttl time.Duration, now func() time.Time) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     now,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns a copy of the cached snapshot or ErrCacheMiss. Expired
// entries are removed on read.
func (c *MemoryCache) Get(_ context.Context, dataset string) (*Snapshot, error) {
	c.mu.RLock()
	e, ok := c.entries[dataset]
	c.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if !c.now().Before(e.expiresAt) {
		c.mu.Lock()
		if cur, ok := c.entries[dataset]; ok && cur.expiresAt.Equal(e.expiresAt) {
			delete(c.entries, dataset)
		}
		c.mu.Unlock()
		return nil, ErrCacheMiss
	}
	s := clone(e.snapshot)
	return &s, nil
}

// Set stores a copy of s.
func (c *MemoryCache) Set(_ context.Context, s *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[s.Dataset] = memoryEntry{
		snapshot:  clone(*s),
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

// Invalidate drops a dataset's entry.
func (c *MemoryCache) Invalidate(_ context.Context, dataset string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, dataset)
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// evicted.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func clone(s Snapshot) Snapshot {
	out := s
	out.Sources = make(map[string]int, len(s.Sources))
	for k, v := range s.Sources {
		out.Sources[k] = v
	}
	out.TopIDs = append([]string(nil), s.TopIDs...)
	return out
}
