package cache

// NoopCache stores nothing. Every Get is a miss.
type NoopCache[V any] struct{}

func NewNoopCache[V any]() *NoopCache[V] {
	return &NoopCache[V]{}
}

func (c *NoopCache[V]) Get(key string) (V, bool) {
	var zero V
	return zero, false
}

func (c *NoopCache[V]) Put(key string, value V) {
}

func (c *NoopCache[V]) Remove(key string) bool {
	return false
}

func (c *NoopCache[V]) Clear() {
}

func (c *NoopCache[V]) Stats() Stats {
	return Stats{}
}
