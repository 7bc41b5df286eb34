// Package memory holds per-user bot state in process memory when Redis is off.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/prn-tf/owl-middleware/internal/repository"
)

// Cache is a map-backed repository.Cache. Values are copied in and out.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]entry
	done     chan struct{}
	stopOnce sync.Once
}

type entry struct {
	value []byte
	// expires is zero for entries without a TTL.
	expires time.Time
}

func (e entry) live(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

func newEntry(value []byte, ttl time.Duration) entry {
	e := entry{value: slices.Clone(value)}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	return e
}

// NewCache creates a cache that drops expired entries every interval.
func NewCache(interval time.Duration) *Cache {
	if interval <= 0 {
		interval = time.Minute
	}
	c := &Cache{
		entries: make(map[string]entry),
		done:    make(chan struct{}),
	}
	go c.run(interval)
	return c
}

func (c *Cache) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, e := range c.entries {
		if !e.live(now) {
			delete(c.entries, key)
		}
	}
}

// Stop ends the sweep goroutine.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// lookup returns the live entry for key.
func (c *Cache) lookup(key string) (entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || !e.live(time.Now()) {
		return entry{}, false
	}
	return e, true
}

// Get returns a copy of the value under key, or ErrCacheMiss.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	e, ok := c.lookup(key)
	if !ok {
		return nil, repository.ErrCacheMiss
	}
	return slices.Clone(e.value), nil
}

// Set stores a copy of value. A zero ttl keeps it until deleted.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	c.entries[key] = newEntry(value, ttl)
	c.mu.Unlock()
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Keys returns the sorted live keys starting with prefix.
func (c *Cache) Keys(_ context.Context, prefix string) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	var keys []string
	for key, e := range c.entries {
		if strings.HasPrefix(key, prefix) && e.live(now) {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

var _ repository.Cache = (*Cache)(nil)
