package source

import (
	"slices"
	"sync"
	"time"

	"github.com/lvlup-dev/ascent/pkg/clock"
	"github.com/lvlup-dev/ascent/pkg/models"
)

// cacheEntry holds one fetch result with its timestamp for TTL expiration.
type cacheEntry struct {
	docs      []models.Document
	fetchedAt time.Time
}

// Cache is a thread-safe in-memory fetch cache with TTL expiration.
// Expired entries are cleaned up lazily on Get; no background goroutine.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	clk     clock.Clock
}

// NewCache creates a cache with the given TTL.
func NewCache(ttl time.Duration, clk clock.Clock) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		clk:     clk,
	}
}

// Get returns cached documents if present and not expired.
func (c *Cache) Get(key string) ([]models.Document, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}

	if c.clk.Since(entry.fetchedAt) > c.ttl {
		// Expired. Re-check under the write lock: a concurrent Set may have
		// replaced the entry with a fresh one between RUnlock and Lock.
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && c.clk.Since(current.fetchedAt) > c.ttl {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	return slices.Clone(entry.docs), true
}

// Set stores documents under key with the current timestamp.
func (c *Cache) Set(key string, docs []models.Document) {
	c.mu.Lock()
	c.entries[key] = &cacheEntry{
		docs:      slices.Clone(docs),
		fetchedAt: c.clk.Now(),
	}
	c.mu.Unlock()
}
