// Package cache memoizes external lookups such as embeddings.
// The cache is advisory: callers must behave correctly on any miss.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"
)

// Entry is a cached value and the time it was written
type Entry[V any] struct {
	key       string
	Value     V
	Timestamp time.Time
}

// LRU is a size-bounded, TTL-expiring, least-recently-used cache.
// Concurrent writers to the same key are last-writer-wins.
type LRU[V any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	order   *list.List // front = least recently used
	items   map[string]*list.Element
	now     func() time.Time
}

// NewLRU creates a cache holding at most maxSize entries for ttl each.
// A non-positive ttl disables expiry.
func NewLRU[V any](maxSize int, ttl time.Duration) *LRU[V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &LRU[V]{
		maxSize: maxSize,
		ttl:     ttl,
		order:   list.New(),
		items:   make(map[string]*list.Element),
		now:     time.Now,
	}
}

// Get returns the value for key. Misses and expired entries return false;
// expired entries are removed. Hits become the most recently used entry.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}

	entry := el.Value.(*Entry[V])
	if c.expired(entry) {
		c.removeElement(el)
		return zero, false
	}

	c.order.MoveToBack(el)
	return entry.Value, true
}

// Set stores value under key, refreshing its recency. At capacity the least
// recently used entry is evicted first.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
	if len(c.items) >= c.maxSize {
		if oldest := c.order.Front(); oldest != nil {
			c.removeElement(oldest)
		}
	}

	entry := &Entry[V]{key: key, Value: value, Timestamp: c.now()}
	c.items[key] = c.order.PushBack(entry)
}

// Delete removes key if present
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Len returns the number of entries, including expired ones not yet observed
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Clear removes every entry
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order.Init()
	c.items = make(map[string]*list.Element)
}

func (c *LRU[V]) expired(e *Entry[V]) bool {
	return c.ttl > 0 && c.now().Sub(e.Timestamp) > c.ttl
}

func (c *LRU[V]) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*Entry[V]).key)
}

// Key derives a fixed-length cache key from its parts
func Key(parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h[:])
}
