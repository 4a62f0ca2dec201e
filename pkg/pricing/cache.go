package pricing

import (
	"sync"
	"time"
)

// PriceCache caches hourly prices to reduce API calls. Unknown prices are
// cached too, so repeated misses don't go back to the API.
type PriceCache struct {
	data  map[string]*cacheEntry
	ttl   time.Duration
	mutex sync.RWMutex
	now   func() time.Time
}

type cacheEntry struct {
	price     *float64
	expiresAt time.Time
}

func NewPriceCache(ttl time.Duration) *PriceCache {
	return &PriceCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
		now:  time.Now,
	}
}

func cacheKey(region, instanceType string) string {
	return region + "/" + instanceType
}

// Get reports the cached price and whether a live entry exists
func (c *PriceCache) Get(key string) (*float64, bool) {
	c.mutex.RLock()
	entry, exists := c.data[key]
	c.mutex.RUnlock()

	if !exists {
		return nil, false
	}

	if c.now().After(entry.expiresAt) {
		c.evict(key, entry)
		return nil, false
	}

	return entry.price, true
}

// evict drops key only while it still holds the expired entry, so a Set that
// raced in after the read lock was released survives
func (c *PriceCache) evict(key string, stale *cacheEntry) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if current, ok := c.data[key]; ok && current == stale && c.now().After(current.expiresAt) {
		delete(c.data, key)
	}
}

func (c *PriceCache) Set(key string, price *float64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data[key] = &cacheEntry{
		price:     price,
		expiresAt: c.now().Add(c.ttl),
	}
}

func (c *PriceCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

func (c *PriceCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.data = make(map[string]*cacheEntry)
}
