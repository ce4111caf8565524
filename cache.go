package dbx

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

// Cache is a keyed time-to-live store with get-or-compute semantics.
// Concurrent GetOrCompute calls for the same key share one computation.
// A Cache is owned by whoever creates it and is released with Close.
type Cache struct {
	store *ristretto.Cache[string, any]
	group singleflight.Group
	// gen invalidates computations that started before the last Clear.
	gen atomic.Uint64
}

// CacheOption configures a Cache.
type CacheOption func(*ristretto.Config[string, any])

// WithCacheCapacity bounds the number of entries kept by the cache.
func WithCacheCapacity(n int64) CacheOption {
	return func(c *ristretto.Config[string, any]) {
		c.MaxCost = n
		c.NumCounters = n * 10
	}
}

// NewCache creates an in-memory TTL cache.
func NewCache(opts ...CacheOption) (*Cache, error) {
	cfg := &ristretto.Config[string, any]{
		NumCounters: 1e4,
		MaxCost:     1e3,
		BufferItems: 64,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	store, err := ristretto.NewCache(cfg)
	if err != nil {
		return nil, fmt.Errorf("dbx: create cache: %w", err)
	}
	return &Cache{store: store}, nil
}

// Get returns the value stored under key, if any.
func (c *Cache) Get(key string) (any, bool) {
	return c.store.Get(key)
}

// Set stores value under key. A zero ttl keeps the entry until evicted.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.store.SetWithTTL(key, value, 1, ttl)
	c.store.Wait()
}

// Delete removes the entry stored under key.
func (c *Cache) Delete(key string) {
	c.store.Del(key)
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.gen.Add(1)
	c.store.Clear()
}

// Close releases the cache resources. The cache must not be used afterwards.
func (c *Cache) Close() {
	c.store.Close()
}

// GetOrCompute returns the cached value for key or calls compute and stores
// its result for ttl. At most one compute call is in flight per key; callers
// arriving meanwhile receive the same result. Errors are not cached.
func (c *Cache) GetOrCompute(key string, ttl time.Duration, compute func() (any, error)) (any, error) {
	if v, ok := c.store.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.store.Get(key); ok {
			return v, nil
		}
		gen := c.gen.Load()
		v, err := compute()
		if err != nil {
			return nil, err
		}
		if gen == c.gen.Load() {
			c.Set(key, v, ttl)
		}
		return v, nil
	})
	return v, err
}

// GetOrCompute is the typed form of Cache.GetOrCompute.
func GetOrCompute[V any](c *Cache, key string, ttl time.Duration, compute func() (V, error)) (V, error) {
	v, err := c.GetOrCompute(key, ttl, func() (any, error) {
		return compute()
	})
	if err != nil {
		var zero V
		return zero, err
	}
	typed, ok := v.(V)
	if !ok {
		var zero V
		return zero, fmt.Errorf("dbx: cache entry %q holds %T", key, v)
	}
	return typed, nil
}
