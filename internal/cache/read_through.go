package cache

import "context"

// Loader fetches a value from the backing store.
type Loader[A, V any] func(ctx context.Context, arg A) (V, error)

// ReadThrough wraps load so that results are served from c when present and
// stored in c after a successful load. key derives the cache key from the
// loader argument. Failed loads are not cached.
//
// The lookup and the fill are separate cache calls; two concurrent misses on
// the same key both reach load.
func ReadThrough[A, V any](c Cache[V], key func(A) string, load Loader[A, V]) Loader[A, V] {
	return func(ctx context.Context, arg A) (V, error) {
		k := key(arg)
		if v, ok := c.Get(k); ok {
			return v, nil
		}

		v, err := load(ctx, arg)
		if err != nil {
			var zero V
			return zero, err
		}
		c.Put(k, v)
		return v, nil
	}
}
