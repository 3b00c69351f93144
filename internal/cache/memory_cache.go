package cache

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrInvalidCapacity is returned when a cache is constructed with a capacity below 1.
var ErrInvalidCapacity = errors.New("cache capacity must be positive")

type entry[V any] struct {
	key        string
	value      V
	accessedAt time.Time
}

// MemoryCache implements in-memory LRU cache
// The front of lruList is the most recently used entry, the back the least.
type MemoryCache[V any] struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lruList *list.List
	now     func() time.Time
	metrics Metrics
}

// NewMemoryCache creates a new in-memory LRU cache
func NewMemoryCache[V any](maxSize int, opts ...Option) (*MemoryCache[V], error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, maxSize)
	}

	o := newOptions(opts)
	return &MemoryCache[V]{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lruList: list.New(),
		now:     o.now,
		metrics: o.metrics,
	}, nil
}

// Get returns the cached value and marks it as most recently used.
// A miss has no side effect on the cache contents.
func (c *MemoryCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.metrics.Miss()
		var zero V
		return zero, false
	}

	ent := elem.Value.(*entry[V])
	ent.accessedAt = c.now()
	c.lruList.MoveToFront(elem)
	c.metrics.Hit()
	return ent.value, true
}

// Put inserts or updates key. Inserting a new key into a full cache evicts
// the least recently used entry first.
func (c *MemoryCache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		ent := elem.Value.(*entry[V])
		ent.value = value
		ent.accessedAt = c.now()
		c.lruList.MoveToFront(elem)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictOldest()
		c.metrics.Eviction()
	}

	ent := &entry[V]{key: key, value: value, accessedAt: c.now()}
	c.items[key] = c.lruList.PushFront(ent)
}

func (c *MemoryCache[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return false
	}
	delete(c.items, key)
	c.lruList.Remove(elem)
	return true
}

func (c *MemoryCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.lruList = list.New()
}

func (c *MemoryCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lruList.Len()
}

func (c *MemoryCache[V]) Capacity() int {
	return c.maxSize
}

// Keys returns the cached keys from least to most recently used.
func (c *MemoryCache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.lruList.Len())
	for elem := c.lruList.Back(); elem != nil; elem = elem.Prev() {
		keys = append(keys, elem.Value.(*entry[V]).key)
	}
	return keys
}

// Entries returns a copy of the cache contents from least to most recently used.
func (c *MemoryCache[V]) Entries() []Entry[V] {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.entriesLocked()
}

func (c *MemoryCache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.lruList.Len()
	stats := Stats{
		Size:        size,
		Capacity:    c.maxSize,
		Utilization: float64(size) / float64(c.maxSize),
	}
	if size == 0 {
		return stats
	}

	// Restored entries keep their persisted timestamps, so the back of the
	// list is not guaranteed to hold the oldest one.
	var oldest time.Time
	for elem := c.lruList.Front(); elem != nil; elem = elem.Next() {
		at := elem.Value.(*entry[V]).accessedAt
		if oldest.IsZero() || at.Before(oldest) {
			oldest = at
		}
	}
	stats.OldestItemAge = c.now().Sub(oldest)
	return stats
}

// restore appends entries ordered from least to most recently used, keeping
// their timestamps, then trims from the least recently used end down to
// capacity. It returns the number of entries trimmed.
func (c *MemoryCache[V]) restore(entries []Entry[V]) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range entries {
		if elem, ok := c.items[e.Key]; ok {
			delete(c.items, e.Key)
			c.lruList.Remove(elem)
		}
		ent := &entry[V]{key: e.Key, value: e.Value, accessedAt: e.AccessedAt}
		c.items[e.Key] = c.lruList.PushFront(ent)
	}

	trimmed := 0
	for c.lruList.Len() > c.maxSize {
		c.evictOldest()
		trimmed++
	}
	return trimmed
}

func (c *MemoryCache[V]) entriesLocked() []Entry[V] {
	entries := make([]Entry[V], 0, c.lruList.Len())
	for elem := c.lruList.Back(); elem != nil; elem = elem.Prev() {
		ent := elem.Value.(*entry[V])
		entries = append(entries, Entry[V]{Key: ent.key, Value: ent.value, AccessedAt: ent.accessedAt})
	}
	return entries
}

func (c *MemoryCache[V]) evictOldest() {
	oldest := c.lruList.Back()
	if oldest == nil {
		return
	}
	delete(c.items, oldest.Value.(*entry[V]).key)
	c.lruList.Remove(oldest)
}
