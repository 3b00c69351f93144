package cache

import "time"

// Cache is a keyed store of domain values with LRU eviction.
type Cache[V any] interface {
	Get(key string) (V, bool)
	Put(key string, value V)
	Remove(key string) bool
	Clear()
	Stats() Stats
}

// Stats describes the occupancy of a cache.
type Stats struct {
	Size        int
	Capacity    int
	Utilization float64
	// OldestItemAge is only meaningful when Size > 0.
	OldestItemAge time.Duration
}

// Entry is a point-in-time copy of a cached item.
type Entry[V any] struct {
	Key        string
	Value      V
	AccessedAt time.Time
}
