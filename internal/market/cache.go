package market

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a fetched snapshot is reused before refetching.
const DefaultTTL = 300 * time.Second

type cacheEntry struct {
	snap    *Snapshot
	expires time.Time
}

// Cache memoizes snapshots per query key for a fixed window. Loads for the
// same key that overlap share one call to the loader.
type Cache struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]cacheEntry
	group singleflight.Group
}

// NewCache returns a Cache with the given TTL. A non-positive ttl selects
// DefaultTTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cacheEntry),
	}
}

// TTL returns the memoization window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the cached snapshot for key when it has not expired.
func (c *Cache) Get(key string) (*Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok || !c.now().Before(e.expires) {
		return nil, false
	}
	return e.snap, true
}

// Put stores snap under key. The entry expires TTL after the snapshot's fetch
// time, so a snapshot restored from storage keeps its original deadline.
func (c *Cache) Put(key string, snap *Snapshot) {
	fetched := snap.FetchedAt
	if fetched.IsZero() {
		fetched = c.now()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheEntry{snap: snap, expires: fetched.Add(c.ttl)}
}

// Expires returns when the entry for key runs out, or the zero time when
// nothing is cached.
func (c *Cache) Expires(key string) time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items[key].expires
}

// Invalidate drops the entry for key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Load returns the cached snapshot for key or calls load once, caching a
// successful result. Errors are never cached.
func (c *Cache) Load(key string, load func() (*Snapshot, error)) (*Snapshot, bool, error) {
	if snap, ok := c.Get(key); ok {
		return snap, true, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if snap, ok := c.Get(key); ok {
			return snap, nil
		}
		snap, err := load()
		if err != nil {
			return nil, err
		}
		c.Put(key, snap)
		return snap, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Snapshot), false, nil
}
