package versionstore

import (
	"sync"
	"time"

	"github.com/prepline/prepline/pkg/lineage"
)

// typeEntry holds a cached data type mapping with its expiration time.
type typeEntry struct {
	types      lineage.DataTypes
	expiresAt  time.Time
	insertedAt time.Time
}

// typeCache is a small TTL cache of version id → data type mapping, used to
// resolve inheritance during creation without refetching a parent that was
// already looked up. Data type mappings are immutable after creation, so a
// hit can never be stale; the TTL only bounds memory held for dead tasks.
// When the cache reaches maxSize, the oldest entry (by insertion time) is
// evicted. Expired entries are lazily evicted on Get.
type typeCache struct {
	mu      sync.Mutex
	items   map[int64]*typeEntry
	maxSize int
	ttl     time.Duration
}

func newTypeCache(maxSize int, ttl time.Duration) *typeCache {
	if maxSize < 1 {
		maxSize = 1
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &typeCache{
		items:   make(map[int64]*typeEntry, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// get retrieves a cached mapping. Returns (nil, false) if the id is missing
// or expired.
func (c *typeCache) get(id int64) (lineage.DataTypes, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.items, id)
		return nil, false
	}
	return e.types, true
}

// set stores a mapping, evicting the oldest entry when at capacity.
func (c *typeCache) set(id int64, types lineage.DataTypes) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if _, ok := c.items[id]; !ok && len(c.items) >= c.maxSize {
		c.evictOldest()
	}
	c.items[id] = &typeEntry{
		types:      types,
		expiresAt:  now.Add(c.ttl),
		insertedAt: now,
	}
}

// reset drops all entries. Called on every snapshot refresh.
func (c *typeCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[int64]*typeEntry, c.maxSize)
}

func (c *typeCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// evictOldest removes the entry with the oldest insertedAt timestamp.
// Must be called with c.mu held.
func (c *typeCache) evictOldest() {
	var oldestID int64
	var oldestTime time.Time
	first := true

	for id, e := range c.items {
		if first || e.insertedAt.Before(oldestTime) {
			oldestID = id
			oldestTime = e.insertedAt
			first = false
		}
	}
	if !first {
		delete(c.items, oldestID)
	}
}
