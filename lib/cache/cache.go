// Package cache implements a TTL key/value store used by the gateway to keep
// short-lived upstream results. Entries expire individually; a background
// sweeper reclaims memory but is not needed for correctness as expired
// entries are never returned.
package cache

import (
	"sync"
	"time"
)

// entry holds a cached value and its expiry instant.
type entry struct {
	value     interface{}
	expiresAt time.Time
}

// Cache is a concurrency-safe TTL store. The zero value is not usable, use New.
type Cache struct {
	mu  sync.RWMutex
	m   map[string]entry
	ttl time.Duration // default TTL applied by Set

	done     chan struct{}
	stopOnce sync.Once
}

// New returns a started cache with the given default TTL. If sweep is greater
// than zero, a janitor goroutine evicts expired entries every sweep interval
// until Stop is called.
func New(ttl, sweep time.Duration) *Cache {
	c := &Cache{
		m:    make(map[string]entry),
		ttl:  ttl,
		done: make(chan struct{}),
	}
	if sweep > 0 {
		go c.janitor(sweep)
	}

	return c
}

// Set stores value under key with the default TTL, overwriting any previous
// entry.
func (c *Cache) Set(key string, value interface{}) {
	c.SetTTL(key, value, c.ttl)
}

// SetTTL stores value under key with an explicit TTL.
func (c *Cache) SetTTL(key string, value interface{}, ttl time.Duration) {
	c.mu.Lock()
	c.m[key] = entry{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// Get returns the live value for key. The second return is false when the key
// is absent or its entry has expired.
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	e, ok := c.m[key]
	c.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}

	return e.value, true
}

// Del removes key from the cache.
func (c *Cache) Del(key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

// Len returns the number of entries held, expired ones included until swept.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.m)
}

// Stop terminates the janitor goroutine. Safe to call more than once; the cache remains usable.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

func (c *Cache) janitor(sweep time.Duration) {
	t := time.NewTicker(sweep)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			now := time.Now()

			c.mu.Lock()
			for k, e := range c.m {
				if now.After(e.expiresAt) {
					delete(c.m, k)
				}
			}
			c.mu.Unlock()
		case <-c.done:
			return
		}
	}
}
