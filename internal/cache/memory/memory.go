// Package memory provides the in-process cache driver.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/cache"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/clock"
)

// Options are the driver settings accepted from configuration.
type Options struct {
	DefaultTTL      time.Duration `mapstructure:"default_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

func init() {
	cache.Register("memory", func(opts map[string]any, _ *slog.Logger) (cache.CacheWithCounter, error) {
		o := Options{DefaultTTL: 15 * time.Minute, CleanupInterval: 5 * time.Minute}
		if err := cache.DecodeOptions(opts, &o); err != nil {
			return nil, err
		}
		return New(o.DefaultTTL, o.CleanupInterval), nil
	})
}

type item struct {
	value     []byte
	expiresAt time.Time
}

type counterItem struct {
	value     int64
	expiresAt time.Time
}

// Cache is an in-memory cache with lazy expiry and an optional cleanup loop.
type Cache struct {
	mu         sync.Mutex
	items      map[string]*item
	counters   map[string]*counterItem
	defaultTTL time.Duration
	now        clock.NowFunc
	stopClean  chan struct{}
	closeOnce  sync.Once
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces the wall clock, for tests.
func WithClock(now clock.NowFunc) Option {
	return func(c *Cache) { c.now = clock.OrSystem(now) }
}

// New creates an in-memory cache. A cleanupInterval of 0 disables the cleanup goroutine.
func New(defaultTTL, cleanupInterval time.Duration, opts ...Option) *Cache {
	c := &Cache{
		items:      make(map[string]*item),
		counters:   make(map[string]*counterItem),
		defaultTTL: defaultTTL,
		now:        time.Now,
		stopClean:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stopClean:
			return
		}
	}
}

func (c *Cache) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, v := range c.items {
		if !now.Before(v.expiresAt) {
			delete(c.items, k)
		}
	}
	for k, v := range c.counters {
		if !now.Before(v.expiresAt) {
			delete(c.counters, k)
		}
	}
}

func (c *Cache) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// Get retrieves a copy of the value stored under key.
func (c *Cache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	if !c.now().Before(it.expiresAt) {
		delete(c.items, key)
		return nil, cache.ErrExpired
	}
	return append([]byte(nil), it.value...), nil
}

// Set stores a copy of value.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	v := append([]byte(nil), value...)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = &item{value: v, expiresAt: c.now().Add(c.ttl(ttl))}
	return nil
}

// Take returns and removes the value under key.
func (c *Cache) Take(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	if !ok {
		return nil, cache.ErrNotFound
	}
	delete(c.items, key)
	if !c.now().Before(it.expiresAt) {
		return nil, cache.ErrExpired
	}
	return it.value, nil
}

// Delete removes a key.
func (c *Cache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	return nil
}

// Exists checks if a key exists and is not expired.
func (c *Cache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.items[key]
	return ok && c.now().Before(it.expiresAt), nil
}

// Increment adds delta to a counter and returns the new value and reset time.
func (c *Cache) Increment(_ context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	counter, ok := c.counters[key]
	if !ok || !now.Before(counter.expiresAt) {
		counter = &counterItem{expiresAt: now.Add(c.ttl(ttl))}
		c.counters[key] = counter
	}
	counter.value += delta
	return counter.value, counter.expiresAt, nil
}

// GetCount returns the current counter value.
func (c *Cache) GetCount(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	counter, ok := c.counters[key]
	if !ok || !c.now().Before(counter.expiresAt) {
		return 0, nil
	}
	return counter.value, nil
}

// Reset drops a counter.
func (c *Cache) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.counters, key)
	return nil
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stopClean) })
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)
