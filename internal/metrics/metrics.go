// Package metrics exposes the trip planner's Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tripplanner"

// Metrics holds every collector of the process on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	cacheHits            *prometheus.CounterVec
	cacheMisses          *prometheus.CounterVec
	cacheEvictions       *prometheus.CounterVec
	cachePersistFailures *prometheus.CounterVec

	optimizationsTotal   *prometheus.CounterVec
	optimizationDuration prometheus.Histogram
	optimizationStops    prometheus.Histogram
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Cache lookups that found the key",
		}, []string{"cache"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache lookups that did not find the key",
		}, []string{"cache"}),
		cacheEvictions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Least recently used entries dropped to make room",
		}, []string{"cache"}),
		cachePersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_persist_failures_total",
			Help:      "Snapshot reads or writes that failed",
		}, []string{"cache"}),

		optimizationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_optimizations_total",
			Help:      "Route optimizations by result",
		}, []string{"result"}),
		optimizationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_optimization_duration_seconds",
			Help:      "Route optimization latency in seconds",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
		optimizationStops: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "route_optimization_stops",
			Help:      "Number of stops per optimized route",
			Buckets:   []float64{2, 5, 10, 25, 50, 100, 250},
		}),
	}
}

// Cache returns a recorder for the cache with the given name. It satisfies
// cache.Metrics.
func (m *Metrics) Cache(name string) *CacheRecorder {
	return &CacheRecorder{
		hits:            m.cacheHits.WithLabelValues(name),
		misses:          m.cacheMisses.WithLabelValues(name),
		evictions:       m.cacheEvictions.WithLabelValues(name),
		persistFailures: m.cachePersistFailures.WithLabelValues(name),
	}
}

// OptimizationDone records a finished route optimization. It satisfies
// trip.Observer.
func (m *Metrics) OptimizationDone(duration time.Duration, stops int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.optimizationsTotal.WithLabelValues(result).Inc()
	if err == nil {
		m.optimizationDuration.Observe(duration.Seconds())
		m.optimizationStops.Observe(float64(stops))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

type CacheRecorder struct {
	hits            prometheus.Counter
	misses          prometheus.Counter
	evictions       prometheus.Counter
	persistFailures prometheus.Counter
}

func (r *CacheRecorder) Hit()            { r.hits.Inc() }
func (r *CacheRecorder) Miss()           { r.misses.Inc() }
func (r *CacheRecorder) Eviction()       { r.evictions.Inc() }
func (r *CacheRecorder) PersistFailure() { r.persistFailures.Inc() }
