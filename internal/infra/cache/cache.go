// Package cache keeps short-lived copies of upstream aviation answers
// (airport lookups, route flight times) so repeated quotes for the same
// route do not spend rate-limited API calls.
package cache

import (
	"strings"
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// TTL is a concurrency-safe map whose entries expire after a fixed TTL.
// Keys are case-insensitive.
type TTL[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
	ttl   time.Duration
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// New creates a cache and starts its sweeper. Call Close to stop it.
func New[T any](ttl time.Duration) *TTL[T] {
	c := &TTL[T]{
		items: make(map[string]entry[T]),
		ttl:   ttl,
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go c.sweep()
	return c
}

func normalize(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// Get returns the value for key unless it is missing or expired.
func (c *TTL[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.items[normalize(key)]
	if !ok || c.now().After(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores value under key for the cache TTL.
func (c *TTL[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[normalize(key)] = entry[T]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// Delete drops key.
func (c *TTL[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, normalize(key))
}

// Len counts stored entries, expired ones included until the next sweep.
func (c *TTL[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the sweeper. The cache stays usable.
func (c *TTL[T]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *TTL[T]) sweep() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *TTL[T]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
		}
	}
}
