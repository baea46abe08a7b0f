package permissions

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// ristrettoCache is an alternative decision cache backend for deployments
// with very large key populations, where ristretto's admission policy keeps
// memory bounded without the full-map sweep of ttlCache.
type ristrettoCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func newRistrettoCache(numCounters, maxCost, bufferItems int64, ttl time.Duration) (*ristrettoCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &ristrettoCache{cache: c, ttl: ttl}, nil
}

func (c *ristrettoCache) Get(key string) (bool, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return false, false
	}
	allowed, ok := v.(bool)
	return allowed, ok
}

func (c *ristrettoCache) Set(key string, allowed bool) {
	c.cache.SetWithTTL(key, allowed, 1, c.ttl)
}

func (c *ristrettoCache) Clear() {
	c.cache.Clear()
}

// wait flushes pending writes; ristretto applies sets asynchronously.
func (c *ristrettoCache) wait() {
	c.cache.Wait()
}
