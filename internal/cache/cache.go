// Package cache provides a bounded, TTL-based memoization cache used to
// avoid recomputing read-heavy aggregate queries. Expired entries are
// swept lazily on access; at capacity the least-recently-accessed entry
// is evicted.
//
// Cache is not safe for concurrent use. ConcurrentCache has identical
// semantics behind its own lock; the two variants share no state.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Defaults applied by New when zero values are given.
const (
	DefaultMaxSize = 1000
	DefaultTTL     = time.Hour
)

type entry struct {
	key     string
	value   any
	expires time.Time
}

// Cache is a TTL + LRU memoization cache for a single goroutine.
type Cache struct {
	maxSize    int
	defaultTTL time.Duration

	entries map[string]*list.Element
	// order tracks access recency, most recent at the front.
	order *list.List

	now func() time.Time // swapped in tests
}

// New creates a cache holding at most maxSize entries, each living for
// defaultTTL unless a Set overrides it.
func New(maxSize int, defaultTTL time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}

	return &Cache{
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		now:        time.Now,
	}
}

// Get returns the cached value for key, or false when absent or expired.
// A hit refreshes the entry's recency.
func (c *Cache) Get(key string) (any, bool) {
	c.sweep()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	e := el.Value.(*entry)
	if c.now().After(e.expires) {
		c.remove(el)
		return nil, false
	}

	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl uses the
// default. At capacity the least-recently-accessed entry is evicted
// first.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.sweep()

	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	expires := c.now().Add(ttl)

	if el, ok := c.entries[key]; ok {
		e := el.Value.(*entry)
		e.value = value
		e.expires = expires
		c.order.MoveToFront(el)
		return
	}

	if len(c.entries) >= c.maxSize {
		if back := c.order.Back(); back != nil {
			c.remove(back)
		}
	}

	el := c.order.PushFront(&entry{key: key, value: value, expires: expires})
	c.entries[key] = el
}

// Delete removes key, reporting whether it was present.
func (c *Cache) Delete(key string) bool {
	el, ok := c.entries[key]
	if !ok {
		return false
	}
	c.remove(el)
	return true
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.sweep()
	return len(c.entries)
}

// sweep drops expired entries.
func (c *Cache) sweep() {
	now := c.now()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if e := el.Value.(*entry); now.After(e.expires) {
			c.remove(el)
		}
		el = prev
	}
}

func (c *Cache) remove(el *list.Element) {
	e := el.Value.(*entry)
	c.order.Remove(el)
	delete(c.entries, e.key)
}

// ConcurrentCache is a Cache safe for concurrent use. It owns its lock
// and its own entry map.
type ConcurrentCache struct {
	mu    sync.Mutex
	inner *Cache
}

// NewConcurrent creates a concurrency-safe cache with the same
// semantics as New.
func NewConcurrent(maxSize int, defaultTTL time.Duration) *ConcurrentCache {
	return &ConcurrentCache{inner: New(maxSize, defaultTTL)}
}

// Get returns the cached value for key, or false when absent or expired.
func (c *ConcurrentCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Get(key)
}

// Set stores value under key for ttl.
func (c *ConcurrentCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Set(key, value, ttl)
}

// Delete removes key, reporting whether it was present.
func (c *ConcurrentCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Delete(key)
}

// Clear removes all entries.
func (c *ConcurrentCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Clear()
}

// Len returns the number of live entries.
func (c *ConcurrentCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}
