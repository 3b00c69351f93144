package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tripplanner/internal/cache"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCacheRecorder_CountsPerCache(t *testing.T) {
	m := New()

	c, err := cache.NewMemoryCache[int](1, cache.WithMetrics(m.Cache("trips")))
	require.NoError(t, err)
	c.Put("a", 1)
	c.Get("a")
	c.Get("a")
	c.Get("missing")
	c.Put("b", 2)

	m.Cache("locations").PersistFailure()

	body := scrape(t, m)
	assert.Contains(t, body, `tripplanner_cache_hits_total{cache="trips"} 2`)
	assert.Contains(t, body, `tripplanner_cache_misses_total{cache="trips"} 1`)
	assert.Contains(t, body, `tripplanner_cache_evictions_total{cache="trips"} 1`)
	assert.Contains(t, body, `tripplanner_cache_persist_failures_total{cache="locations"} 1`)
}

func TestOptimizationDone(t *testing.T) {
	m := New()
	m.OptimizationDone(3*time.Millisecond, 4, nil)
	m.OptimizationDone(time.Millisecond, 1, errors.New("too few"))

	body := scrape(t, m)
	assert.Contains(t, body, `tripplanner_route_optimizations_total{result="ok"} 1`)
	assert.Contains(t, body, `tripplanner_route_optimizations_total{result="error"} 1`)
	assert.Contains(t, body, `tripplanner_route_optimization_stops_count 1`)
	assert.Contains(t, body, `tripplanner_route_optimization_duration_seconds_count 1`)
	assert.Contains(t, body, "go_goroutines")
}
