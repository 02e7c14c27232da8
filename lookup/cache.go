package lookup

import (
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/poiesic/clinrag/core"
)

const (
	// DefaultCacheEntries bounds the number of cached lookup results.
	DefaultCacheEntries = 10000

	// DefaultCacheTTL is how long a cached result stays valid.
	DefaultCacheTTL = 24 * time.Hour
)

// Cache keeps recent lookup results in process memory.
type Cache struct {
	cache *ristretto.Cache[string, core.CodeResult]
	ttl   time.Duration
}

// NewCache creates a cache holding up to maxEntries results for ttl each.
func NewCache(maxEntries int64, ttl time.Duration) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	c, err := ristretto.NewCache(&ristretto.Config[string, core.CodeResult]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{cache: c, ttl: ttl}, nil
}

func cacheKey(system core.CodeSystem, term string) string {
	return string(system) + ":" + strings.ToLower(strings.TrimSpace(term))
}

// Get returns a copy of the cached result for term.
func (c *Cache) Get(system core.CodeSystem, term string) (*core.CodeResult, bool) {
	v, ok := c.cache.Get(cacheKey(system, term))
	if !ok {
		return nil, false
	}
	return &v, true
}

// Set stores result for term. The write is visible to Get on return.
func (c *Cache) Set(system core.CodeSystem, term string, result *core.CodeResult) {
	if result == nil {
		return
	}
	c.cache.SetWithTTL(cacheKey(system, term), *result, 1, c.ttl)
	c.cache.Wait()
}

// Close stops the cache's background goroutines.
func (c *Cache) Close() {
	c.cache.Close()
}
