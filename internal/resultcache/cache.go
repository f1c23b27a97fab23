// Package resultcache provides a content-addressed cache for completed
// pipeline results with single-flight coordination.
//
// GetOrCompute guarantees that for any given key at most one execution of
// the compute function is ever in flight, no matter how many callers arrive
// concurrently with the same fingerprint; the duplicates block until the
// leader publishes its outcome and then all observe the same result or the
// same failure. Failures are never stored, so the next request after a
// failed computation retries from scratch.
//
// Completed results are retained in a bounded LRU with a TTL. Eviction
// policy is deliberately explicit (capacity + age) rather than unbounded:
// the cache exists to absorb bursts of identical requests, not to archive
// them.
package resultcache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Stats is a snapshot of cache counters.
type Stats struct {
	// Hits counts lookups served from a completed entry.
	Hits uint64 `json:"hit_count"`

	// Misses counts lookups that ran (or joined) a computation.
	Misses uint64 `json:"miss_count"`

	// Entries is the current number of retained results.
	Entries int `json:"entry_count"`
}

// entry is one retained result.
type entry[V any] struct {
	key     string
	value   V
	created time.Time

	// prev/next link the LRU list, most recent at head.
	prev, next *entry[V]
}

// Cache is a single-flight LRU result cache. The zero value is not usable;
// construct with [New]. Safe for concurrent use.
type Cache[V any] struct {
	maxEntries int
	ttl        time.Duration

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry[V]
	head    *entry[V] // most recently used
	tail    *entry[V] // least recently used
	hits    uint64
	misses  uint64

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a Cache holding at most maxEntries completed results for at
// most ttl each. maxEntries <= 0 disables retention (every call computes,
// but single-flight coordination still applies); ttl <= 0 means entries
// never expire by age.
func New[V any](maxEntries int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		maxEntries: maxEntries,
		ttl:        ttl,
		entries:    make(map[string]*entry[V]),
		now:        time.Now,
	}
}

// GetOrCompute returns the cached value for key, or runs compute to produce
// it. The returned bool reports whether the value came from the cache.
//
// Concurrent callers with the same key share a single compute execution and
// its outcome. A compute failure is returned to every waiting caller and
// leaves no entry behind.
func (c *Cache[V]) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (V, error)) (V, bool, error) {
	if v, ok := c.lookup(key); ok {
		return v, true, nil
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under single-flight: a racing leader may have just
		// published this key.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	return v.(V), false, nil
}

// lookup returns the live entry for key, promoting it to most recently used.
// Expired entries are removed on sight.
func (c *Cache[V]) lookup(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && c.now().Sub(e.created) > c.ttl {
		c.remove(e)
		return zero, false
	}
	c.moveToFront(e)
	c.hits++
	return e.value, true
}

// store publishes a completed value for key, evicting the least recently
// used entry if the cache is full.
func (c *Cache[V]) store(key string, v V) {
	if c.maxEntries <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = v
		e.created = c.now()
		c.moveToFront(e)
		return
	}

	e := &entry[V]{key: key, value: v, created: c.now()}
	c.entries[key] = e
	c.pushFront(e)

	for len(c.entries) > c.maxEntries {
		c.remove(c.tail)
	}
}

// Stats returns a snapshot of the cache counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Entries: len(c.entries)}
}

// Cleanup removes every expired entry immediately instead of waiting for a
// lookup to trip over it, returning the number removed. A no-op when the
// cache has no TTL.
func (c *Cache[V]) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ttl <= 0 {
		return 0
	}
	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for e := c.tail; e != nil; {
		prev := e.prev
		if e.created.Before(cutoff) {
			c.remove(e)
			removed++
		}
		e = prev
	}
	return removed
}

// Clear evicts all entries. Counters are preserved; in-flight computations
// are unaffected and will publish into the emptied cache.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[V])
	c.head, c.tail = nil, nil
}

// ─── LRU list management (c.mu must be held) ─────────────────────────────────

func (c *Cache[V]) pushFront(e *entry[V]) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache[V]) moveToFront(e *entry[V]) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.pushFront(e)
}

func (c *Cache[V]) remove(e *entry[V]) {
	if e == nil {
		return
	}
	c.unlink(e)
	delete(c.entries, e.key)
}

func (c *Cache[V]) unlink(e *entry[V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = nil, nil
}
