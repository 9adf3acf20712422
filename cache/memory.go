// Package cache provides the on-disk content cache shared by package
// downloads, value-set expansion and snapshot generation, plus a small
// in-memory LRU that can front it.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
)

// Memory is a generic thread-safe LRU cache with built-in metrics.
type Memory[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]*list.Element
	order    *list.List
	capacity int

	hits   atomic.Uint64
	misses atomic.Uint64
	evicts atomic.Uint64
	sets   atomic.Uint64
}

type memoryEntry[K comparable, V any] struct {
	key   K
	value V
}

// NewMemory creates a Memory cache with the specified capacity.
// When the cache is full, the least recently used item is evicted.
func NewMemory[K comparable, V any](capacity int) *Memory[K, V] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Memory[K, V]{
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		capacity: capacity,
	}
}

// Get retrieves a value and moves it to the front of the LRU list.
func (c *Memory[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	c.hits.Add(1)
	c.order.MoveToFront(element)
	return element.Value.(*memoryEntry[K, V]).value, true
}

// Set adds or updates a value, evicting the least recently used item when full.
func (c *Memory[K, V]) Set(key K, value V) {
	c.sets.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		element.Value.(*memoryEntry[K, V]).value = value
		c.order.MoveToFront(element)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictOldest()
	}

	c.items[key] = c.order.PushFront(&memoryEntry[K, V]{key: key, value: value})
}

// evictOldest must be called with mu held.
func (c *Memory[K, V]) evictOldest() {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}

	delete(c.items, oldest.Value.(*memoryEntry[K, V]).key)
	c.order.Remove(oldest)
	c.evicts.Add(1)
}

// Delete removes an item from the cache.
func (c *Memory[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		delete(c.items, key)
		c.order.Remove(element)
	}
}

// Len returns the current number of items in the cache.
func (c *Memory[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// MemoryStats holds cache statistics.
type MemoryStats struct {
	Size     int
	Capacity int
	Hits     uint64
	Misses   uint64
	Evicts   uint64
	Sets     uint64
	HitRate  float64
}

// Stats returns cache statistics.
func (c *Memory[K, V]) Stats() MemoryStats {
	size := c.Len()

	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses

	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return MemoryStats{
		Size:     size,
		Capacity: c.capacity,
		Hits:     hits,
		Misses:   misses,
		Evicts:   c.evicts.Load(),
		Sets:     c.sets.Load(),
		HitRate:  hitRate,
	}
}
