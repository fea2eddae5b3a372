package market

import (
	"sync"
	"time"
)

// QuoteCache is the short-TTL cache contract in front of the feed tiers.
type QuoteCache interface {
	Get(symbol string) (float64, bool)
	SetWithTTL(symbol string, price float64, ttl time.Duration)
}

type cacheEntry struct {
	price     float64
	expiresAt time.Time
}

// MemoryCache is an in-process QuoteCache. Expired entries are overwritten on
// the next write; reads never return them.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-memory quote cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached price for a symbol if the entry is still fresh.
func (c *MemoryCache) Get(symbol string) (float64, bool) {
	c.mu.RLock()
	entry, ok := c.entries[symbol]
	c.mu.RUnlock()

	if !ok || c.now().After(entry.expiresAt) {
		return 0, false
	}
	return entry.price, true
}

// SetWithTTL stores a price for the symbol with the given time to live.
func (c *MemoryCache) SetWithTTL(symbol string, price float64, ttl time.Duration) {
	c.mu.Lock()
	c.entries[symbol] = cacheEntry{price: price, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}
