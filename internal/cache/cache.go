package cache

import (
	"context"
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache is a TTL map safe for concurrent use.
type Cache[K comparable, V any] struct {
	items sync.Map
	now   func() time.Time
}

func New[K comparable, V any]() *Cache[K, V] {
	return &Cache[K, V]{now: time.Now}
}

func (c *Cache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.items.Store(key, entry[V]{value: value, expires: c.now().Add(ttl)})
}

// Get returns false when the key is absent or expired.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	raw, ok := c.items.Load(key)
	if !ok {
		return zero, false
	}

	e := raw.(entry[V])
	if c.now().After(e.expires) {
		c.items.Delete(key)
		return zero, false
	}
	return e.value, true
}

// GetOrLoad returns the cached value or calls load and caches its result.
// Errors are not cached.
func (c *Cache[K, V]) GetOrLoad(key K, ttl time.Duration, load func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

func (c *Cache[K, V]) Delete(key K) {
	c.items.Delete(key)
}

// Cleanup removes expired entries.
func (c *Cache[K, V]) Cleanup() {
	now := c.now()
	c.items.Range(func(key, value any) bool {
		if now.After(value.(entry[V]).expires) {
			c.items.Delete(key)
		}
		return true
	})
}

// Janitor runs Cleanup every interval until ctx is done.
func (c *Cache[K, V]) Janitor(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			c.Cleanup()
		}
	}
}
