// ABOUTME: In-memory render cache that wraps a DOT rendering function with blake3-keyed caching.
// ABOUTME: Supports TTL-based expiry, pruning, concurrent access, and manual cache clearing.

package render

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"lukechampine.com/blake3"
)

// RenderFunc is the signature for a DOT rendering function that the cache wraps.
type RenderFunc func(ctx context.Context, dotText string, format string) ([]byte, error)

type cacheEntry struct {
	data      []byte
	createdAt time.Time
}

// RenderCache wraps a DOT rendering function with an in-memory cache keyed by the
// digest of the DOT text and the format. Entries expire after the configured TTL.
type RenderCache struct {
	renderFn RenderFunc
	ttl      time.Duration
	entries  map[string]*cacheEntry
	mu       sync.RWMutex
}

// NewRenderCache creates a RenderCache wrapping the given rendering function.
func NewRenderCache(renderFn RenderFunc, ttl time.Duration) *RenderCache {
	return &RenderCache{
		renderFn: renderFn,
		ttl:      ttl,
		entries:  make(map[string]*cacheEntry),
	}
}

// RenderDOTSource renders DOT text to the specified format, returning cached results
// when available and not expired. Errors are never cached.
func (c *RenderCache) RenderDOTSource(ctx context.Context, dotText string, format string) ([]byte, error) {
	key := cacheKey(dotText, format)

	c.mu.RLock()
	if entry, ok := c.entries[key]; ok && time.Since(entry.createdAt) < c.ttl {
		data := entry.data
		c.mu.RUnlock()
		return data, nil
	}
	c.mu.RUnlock()

	data, err := c.renderFn(ctx, dotText, format)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = &cacheEntry{data: data, createdAt: time.Now()}
	c.mu.Unlock()
	return data, nil
}

// Prune drops expired entries and returns how many were removed.
func (c *RenderCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.entries {
		if time.Since(e.createdAt) >= c.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries currently in the cache (including expired ones).
func (c *RenderCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear removes all entries from the cache.
func (c *RenderCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

func cacheKey(dotText string, format string) string {
	sum := blake3.Sum256([]byte(dotText))
	return hex.EncodeToString(sum[:]) + ":" + format
}
