// Package lookupcache holds the most recent lookup result per domain for a
// bounded time. Eviction at capacity is by insertion order, not recency of
// use.
package lookupcache

import (
	"container/list"
	"sync"
	"time"

	"github.com/siteray/siteray-agent/models"
)

const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 100
)

// Entry is one cached lookup and the time it was stored.
type Entry struct {
	Data      models.LookupResponse
	Timestamp time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element // value: *item
	order   *list.List               // front = oldest inserted
}

type item struct {
	domain string
	entry  Entry
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New returns an empty cache. Non-positive arguments fall back to the
// defaults.
func New(ttl time.Duration, maxEntries int, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c := &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached lookup for domain. An entry older than the TTL is
// removed and reported as missing.
func (c *Cache) Get(domain string) (*models.LookupResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[domain]
	if !ok {
		return nil, false
	}
	it := el.Value.(*item)
	if c.now().Sub(it.entry.Timestamp) > c.ttl {
		c.removeElement(el)
		return nil, false
	}
	data := it.entry.Data
	return &data, true
}

// Set stores data for domain. A new domain inserted at capacity evicts the
// oldest-inserted entry first. Re-setting an existing domain refreshes its
// value and timestamp but keeps its place in the eviction order.
func (c *Cache) Set(domain string, data models.LookupResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := Entry{Data: data, Timestamp: c.now()}
	if el, ok := c.entries[domain]; ok {
		el.Value.(*item).entry = entry
		return
	}
	if c.order.Len() >= c.maxEntries {
		if oldest := c.order.Front(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	c.entries[domain] = c.order.PushBack(&item{domain: domain, entry: entry})
}

// Invalidate removes domain so the next lookup refetches it.
func (c *Cache) Invalidate(domain string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[domain]; ok {
		c.removeElement(el)
	}
}

// Clear empties the cache.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*item).domain)
}
