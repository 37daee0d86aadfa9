package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxEntries bounds the memory backend when no capacity is set.
const DefaultMaxEntries = 256

// Memory is a process-lifetime LRU cache with optional TTL expiration.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
	hits       atomic.Int64
	misses     atomic.Int64
}

type memoryEntry struct {
	data      []byte
	createdAt time.Time
}

// Stats reports cache effectiveness.
type Stats struct {
	Entries    int     `json:"entries"`
	MaxEntries int     `json:"max_entries"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	HitRate    float64 `json:"hit_rate"`
}

// NewMemory creates a Memory cache. A zero ttl never expires entries.
func NewMemory(maxEntries int, ttl time.Duration) *Memory {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Memory{
		entries:    make(map[string]*memoryEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Get implements Cache.
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false, nil
	}
	if c.ttl > 0 && time.Since(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		c.misses.Add(1)
		return nil, false, nil
	}

	c.removeFromOrder(key)
	c.order = append(c.order, key)
	c.hits.Add(1)
	value, err := decode(entry.data)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// Set implements Cache, evicting the least recently used entry at capacity.
func (c *Memory) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &memoryEntry{data: encode(value), createdAt: time.Now()}
	if _, ok := c.entries[key]; ok {
		c.entries[key] = entry
		c.removeFromOrder(key)
		c.order = append(c.order, key)
		return nil
	}
	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = entry
	c.order = append(c.order, key)
	return nil
}

// Delete implements Cache.
func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.removeFromOrder(key)
	return nil
}

// Close implements Cache.
func (c *Memory) Close() error { return nil }

// Stats returns hit and occupancy statistics.
func (c *Memory) Stats() Stats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	hits := c.hits.Load()
	misses := c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = float64(hits) / float64(total)
	}
	return Stats{Entries: entries, MaxEntries: c.maxEntries, Hits: hits, Misses: misses, HitRate: rate}
}

func (c *Memory) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
