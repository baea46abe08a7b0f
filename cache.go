package permissions

import (
	"strings"
	"sync"
	"time"
)

// cacheKey deterministically identifies one (user, feature, action, context)
// evaluation. The flat string form keeps the key usable by every cache
// backend.
func cacheKey(userID, feature, action string, actx *AccessContext) string {
	parts := []string{userID, feature, action}
	if actx != nil {
		parts = append(parts, actx.ResourceType, actx.ResourceID, actx.TargetUserID, actx.CompanyID, actx.ClientID)
	} else {
		parts = append(parts, "", "", "", "", "")
	}
	return strings.Join(parts, "\x1f")
}

// decisionCache stores boolean decision outcomes under a TTL. Implementations
// must be safe for concurrent use. Only the allowed bit is cached: a hit is
// reported to callers with reason cached_result.
type decisionCache interface {
	Get(key string) (bool, bool)
	Set(key string, allowed bool)
	Clear()
}

type cacheEntry struct {
	allowed   bool
	expiresAt time.Time
}

// ttlCache is the default decision cache: a mutex-guarded map with lazy
// per-read expiry and a full sweep of expired entries whenever the map
// exceeds maxEntries. The sweep runs inline under the write lock; the engine
// owns no background goroutine for it.
type ttlCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
}

func newTTLCache(ttl time.Duration, maxEntries int) *ttlCache {
	return &ttlCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

func (c *ttlCache) Get(key string) (bool, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return false, false
	}
	return entry.allowed, true
}

func (c *ttlCache) Set(key string, allowed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		c.sweepLocked()
	}
	c.entries[key] = cacheEntry{allowed: allowed, expiresAt: time.Now().Add(c.ttl)}
}

// sweepLocked removes every expired entry. Caller holds the write lock.
func (c *ttlCache) sweepLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

func (c *ttlCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		delete(c.entries, k)
	}
}

func (c *ttlCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
