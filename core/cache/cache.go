// Package cache provides a thread-safe LRU cache bounded by entry count,
// total byte size, and entry age. The API uses it to answer repeated
// conversions of the same input without converting again.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Stats contains cache statistics.
type Stats struct {
	Hits       int64 `json:"hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
	Size       int   `json:"size"`
	MaxSize    int   `json:"max_size"`
	TotalBytes int64 `json:"total_bytes"`
	MaxBytes   int64 `json:"max_bytes"`
}

// Config contains cache configuration options.
type Config struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int

	// MaxBytes bounds the summed size of all entries (0 = unlimited).
	// Values larger than MaxBytes are never stored.
	MaxBytes int64

	// TTL is the time-to-live for entries (0 = no expiration).
	TTL time.Duration
}

// DefaultConfig returns 256 entries and 64 MiB without expiry.
func DefaultConfig() Config {
	return Config{
		MaxSize:  256,
		MaxBytes: 64 << 20,
	}
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	size      int64
	expiresAt time.Time
}

// LRU is a least-recently-used cache. The zero value is not usable; create
// one with New.
type LRU[K comparable, V any] struct {
	mu        sync.Mutex
	config    Config
	sizeOf    func(V) int64
	entries   map[K]*list.Element
	evictList *list.List
	bytes     int64
	stats     Stats

	now func() time.Time
}

// New creates an LRU cache. sizeOf reports the size of a value for the
// byte bound; nil counts every value as zero bytes.
func New[K comparable, V any](config Config, sizeOf func(V) int64) *LRU[K, V] {
	if config.MaxSize < 0 {
		config.MaxSize = 0
	}
	if config.MaxBytes < 0 {
		config.MaxBytes = 0
	}
	if sizeOf == nil {
		sizeOf = func(V) int64 { return 0 }
	}
	return &LRU[K, V]{
		config:    config,
		sizeOf:    sizeOf,
		entries:   make(map[K]*list.Element),
		evictList: list.New(),
		now:       time.Now,
	}
}

// Get retrieves a value and marks it most recently used. Expired entries
// are removed and reported as misses.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}

	ent := elem.Value.(*entry[K, V])
	if !ent.expiresAt.IsZero() && c.now().After(ent.expiresAt) {
		c.removeElement(elem)
		c.stats.Misses++
		return zero, false
	}

	c.evictList.MoveToFront(elem)
	c.stats.Hits++
	return ent.value, true
}

// Put stores a value, evicting least recently used entries until both
// bounds hold. It reports whether the value was stored.
func (c *LRU[K, V]) Put(key K, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.sizeOf(value)
	if c.config.MaxBytes > 0 && size > c.config.MaxBytes {
		if elem, ok := c.entries[key]; ok {
			c.removeElement(elem)
		}
		return false
	}

	var expiresAt time.Time
	if c.config.TTL > 0 {
		expiresAt = c.now().Add(c.config.TTL)
	}

	if elem, ok := c.entries[key]; ok {
		ent := elem.Value.(*entry[K, V])
		c.bytes += size - ent.size
		ent.value, ent.size, ent.expiresAt = value, size, expiresAt
		c.evictList.MoveToFront(elem)
	} else {
		ent := &entry[K, V]{key: key, value: value, size: size, expiresAt: expiresAt}
		c.entries[key] = c.evictList.PushFront(ent)
		c.bytes += size
	}

	for c.overLimit() {
		c.removeElement(c.evictList.Back())
		c.stats.Evictions++
	}
	return true
}

func (c *LRU[K, V]) overLimit() bool {
	if c.evictList.Len() <= 1 {
		return false
	}
	if c.config.MaxSize > 0 && c.evictList.Len() > c.config.MaxSize {
		return true
	}
	return c.config.MaxBytes > 0 && c.bytes > c.config.MaxBytes
}

// Remove removes a value from the cache.
func (c *LRU[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
}

// Clear removes all entries. Statistics are kept.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*list.Element)
	c.evictList.Init()
	c.bytes = 0
}

// Len returns the number of entries in the cache.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Stats returns cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.evictList.Len()
	stats.MaxSize = c.config.MaxSize
	stats.TotalBytes = c.bytes
	stats.MaxBytes = c.config.MaxBytes
	return stats
}

func (c *LRU[K, V]) removeElement(elem *list.Element) {
	ent := c.evictList.Remove(elem).(*entry[K, V])
	delete(c.entries, ent.key)
	c.bytes -= ent.size
}
