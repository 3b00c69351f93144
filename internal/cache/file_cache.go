package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// FileCache is a MemoryCache whose contents are mirrored to a JSON snapshot
// file after every mutation. The in-memory state is authoritative: snapshot
// failures are logged and never fail or undo the operation that caused them.
type FileCache[V any] struct {
	// mu serializes a mutation with the snapshot rewrite that follows it.
	mu      sync.Mutex
	mem     *MemoryCache[V]
	path    string
	codec   Codec[V]
	logger  *zap.Logger
	metrics Metrics
}

// NewFileCache creates a persisted LRU cache and restores it from path when
// a snapshot exists. An unreadable or malformed snapshot yields an empty cache.
func NewFileCache[V any](maxSize int, path string, codec Codec[V], logger *zap.Logger, opts ...Option) (*FileCache[V], error) {
	if !codec.valid() {
		return nil, ErrMissingCodec
	}
	mem, err := NewMemoryCache[V](maxSize, opts...)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &FileCache[V]{
		mem:     mem,
		path:    path,
		codec:   codec,
		logger:  logger,
		metrics: mem.metrics,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		c.metrics.PersistFailure()
		c.logger.Warn("Failed to create cache directory", zap.String("path", path), zap.Error(err))
	}
	c.load()

	return c, nil
}

func (c *FileCache[V]) load() {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.metrics.PersistFailure()
			c.logger.Warn("Failed to read cache snapshot, starting empty", zap.String("path", c.path), zap.Error(err))
		}
		return
	}

	entries, err := decodeSnapshot(data, c.codec)
	if err != nil {
		c.metrics.PersistFailure()
		c.logger.Warn("Failed to parse cache snapshot, starting empty", zap.String("path", c.path), zap.Error(err))
		return
	}

	trimmed := c.mem.restore(entries)
	c.logger.Debug("Loaded cache snapshot",
		zap.String("path", c.path),
		zap.Int("entries", c.mem.Len()),
		zap.Int("trimmed", trimmed),
	)
}

// Get does not rewrite the snapshot; recency changes made by reads are
// persisted with the next mutation.
func (c *FileCache[V]) Get(key string) (V, bool) {
	return c.mem.Get(key)
}

func (c *FileCache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mem.Put(key, value)
	c.persist()
}

// Remove rewrites the snapshot only when key was present.
func (c *FileCache[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.mem.Remove(key)
	if removed {
		c.persist()
	}
	return removed
}

func (c *FileCache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mem.Clear()
	c.persist()
}

func (c *FileCache[V]) Stats() Stats {
	return c.mem.Stats()
}

func (c *FileCache[V]) Len() int {
	return c.mem.Len()
}

func (c *FileCache[V]) Capacity() int {
	return c.mem.Capacity()
}

// Keys returns the cached keys from least to most recently used.
func (c *FileCache[V]) Keys() []string {
	return c.mem.Keys()
}

// Entries returns copies of the cached items from least to most recently
// used without touching their timestamps.
func (c *FileCache[V]) Entries() []Entry[V] {
	return c.mem.Entries()
}

func (c *FileCache[V]) Path() string {
	return c.path
}

// Flush rewrites the snapshot and, unlike mutations, reports the failure.
func (c *FileCache[V]) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.writeSnapshot()
}

func (c *FileCache[V]) persist() {
	if err := c.writeSnapshot(); err != nil {
		c.metrics.PersistFailure()
		c.logger.Error("Failed to write cache snapshot", zap.String("path", c.path), zap.Error(err))
	}
}

func (c *FileCache[V]) writeSnapshot() error {
	data, err := encodeSnapshot(c.mem.Entries(), c.codec)
	if err != nil {
		return err
	}

	// Write atomically
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
