package cache

import (
	"fmt"

	"go.uber.org/zap"
)

// NewCache creates a cache instance based on the cache type
func NewCache[V any](cacheType string, capacity int, path string, codec Codec[V], log *zap.Logger, opts ...Option) (Cache[V], error) {
	switch cacheType {
	case "memory":
		log.Info("Using memory cache", zap.Int("capacity", capacity))
		c, err := NewMemoryCache[V](capacity, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "file":
		log.Info("Using file cache", zap.Int("capacity", capacity), zap.String("path", path))
		c, err := NewFileCache(capacity, path, codec, log, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "disabled":
		log.Info("Cache disabled")
		return NewNoopCache[V](), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s (supported: memory, file, disabled)", cacheType)
	}
}
