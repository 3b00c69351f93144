package cache

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type countingMetrics struct {
	hits, misses, evictions, persistFailures int
}

func (m *countingMetrics) Hit()            { m.hits++ }
func (m *countingMetrics) Miss()           { m.misses++ }
func (m *countingMetrics) Eviction()       { m.evictions++ }
func (m *countingMetrics) PersistFailure() { m.persistFailures++ }

func TestNewMemoryCache_InvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1, -100} {
		c, err := NewMemoryCache[string](capacity)
		assert.Nil(t, c)
		assert.ErrorIs(t, err, ErrInvalidCapacity)
	}
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewMemoryCache[string](2)
	require.NoError(t, err)

	c.Put("k1", "v1")
	c.Put("k2", "v2")
	c.Put("k3", "v3")

	_, ok := c.Get("k1")
	assert.False(t, ok, "k1 should have been evicted")

	v, ok := c.Get("k2")
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	v, ok = c.Get("k3")
	assert.True(t, ok)
	assert.Equal(t, "v3", v)

	// k3 was read last, so promote k2 and insert k4 to push k3 out.
	_, ok = c.Get("k2")
	require.True(t, ok)
	c.Put("k4", "v4")

	_, ok = c.Get("k3")
	assert.False(t, ok, "k3 should have been evicted")
	_, ok = c.Get("k2")
	assert.True(t, ok)
	_, ok = c.Get("k4")
	assert.True(t, ok)
}

func TestMemoryCache_PutExistingKeyUpdatesInPlace(t *testing.T) {
	c, err := NewMemoryCache[int](2)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("a", 10)

	assert.Equal(t, 2, c.Len())
	assert.Equal(t, []string{"b", "a"}, c.Keys())

	c.Put("c", 3)
	_, ok := c.Get("b")
	assert.False(t, ok, "b was least recently used after a was updated")

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 10, v)
}

func TestMemoryCache_MissHasNoSideEffect(t *testing.T) {
	c, err := NewMemoryCache[int](3)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	before := c.Keys()

	_, ok := c.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, before, c.Keys())
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCache_RemoveAndClear(t *testing.T) {
	c, err := NewMemoryCache[int](3)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Equal(t, []string{"b"}, c.Keys())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok)
}

func TestMemoryCache_SizeNeverExceedsCapacity(t *testing.T) {
	const capacity = 7
	c, err := NewMemoryCache[int](capacity)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		key := fmt.Sprintf("k%d", rng.Intn(25))
		if rng.Intn(3) == 0 {
			c.Get(key)
		} else {
			c.Put(key, i)
		}
		require.LessOrEqual(t, c.Len(), capacity)
	}
}

func TestMemoryCache_Stats(t *testing.T) {
	clock := newFakeClock()
	c, err := NewMemoryCache[string](4, WithClock(clock.Now))
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, 4, stats.Capacity)
	assert.Equal(t, 0.0, stats.Utilization)

	c.Put("a", "1")
	clock.Advance(10 * time.Second)
	c.Put("b", "2")
	clock.Advance(5 * time.Second)

	stats = c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.InDelta(t, 0.5, stats.Utilization, 1e-9)
	assert.Equal(t, 15*time.Second, stats.OldestItemAge)

	// Reading a refreshes its timestamp; b becomes the oldest.
	c.Get("a")
	stats = c.Stats()
	assert.Equal(t, 5*time.Second, stats.OldestItemAge)
}

func TestMemoryCache_Metrics(t *testing.T) {
	m := &countingMetrics{}
	c, err := NewMemoryCache[int](1, WithMetrics(m))
	require.NoError(t, err)

	c.Put("a", 1)
	c.Get("a")
	c.Get("b")
	c.Put("b", 2)

	assert.Equal(t, 1, m.hits)
	assert.Equal(t, 1, m.misses)
	assert.Equal(t, 1, m.evictions)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	c, err := NewMemoryCache[int](16)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", (g*31+i)%40)
				c.Put(key, i)
				c.Get(key)
				if i%7 == 0 {
					c.Remove(key)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 16)
	assert.Len(t, c.Keys(), c.Len())
}

func TestMemoryCache_RestoreTrimsFromLeastRecentEnd(t *testing.T) {
	c, err := NewMemoryCache[int](2)
	require.NoError(t, err)

	at := time.Unix(100, 0)
	trimmed := c.restore([]Entry[int]{
		{Key: "a", Value: 1, AccessedAt: at},
		{Key: "b", Value: 2, AccessedAt: at},
		{Key: "c", Value: 3, AccessedAt: at},
	})

	assert.Equal(t, 1, trimmed)
	assert.Equal(t, []string{"b", "c"}, c.Keys())
	for _, e := range c.Entries() {
		assert.True(t, e.AccessedAt.Equal(at))
	}
}
