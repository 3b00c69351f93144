package cache

import "time"

type options struct {
	now     func() time.Time
	metrics Metrics
}

// Option configures a cache at construction time.
type Option func(*options)

// WithClock replaces time.Now as the source of entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics reports hits, misses, evictions and persistence failures to m.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		if m != nil {
			o.metrics = m
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		now:     time.Now,
		metrics: NoopMetrics{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
