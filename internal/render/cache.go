package render

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// Cache holds converted renderings keyed by content hash, with TTL eviction.
// Callers must Clone a cached rendering before marking it up.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	ttl     time.Duration
	now     func() time.Time

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

type cacheEntry struct {
	rendering *Rendering
	usedAt    time.Time
}

// NewCache creates a cache whose entries expire ttl after last use.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the rendering for key if present.
func (c *Cache) Get(key string) (*Rendering, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e.usedAt = c.now()
	return e.rendering, true
}

// Put stores a rendering under key.
func (c *Cache) Put(key string, r *Rendering) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &cacheEntry{rendering: r, usedAt: c.now()}
}

// GetOrConvert returns the cached rendering for data or converts and caches it.
func (c *Cache) GetOrConvert(data []byte, filename string, opts Options) (*Rendering, error) {
	key := ContentHashHex(data) + ":" + filename
	if r, ok := c.Get(key); ok {
		return r, nil
	}
	r, err := Convert(data, filename, opts)
	if err != nil {
		return nil, err
	}
	c.Put(key, r)
	return r, nil
}

// Len returns the number of cached renderings.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cleanup removes expired entries.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if now.Sub(e.usedAt) > c.ttl {
			delete(c.entries, key)
		}
	}
}

// Start runs Cleanup on a ticker until Stop or ctx ends.
func (c *Cache) Start(ctx context.Context, interval time.Duration) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// Stop halts the cleanup goroutine.
func (c *Cache) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
