// Package cache provides TTL key/value storage and windowed counters shared by
// the OAuth handshake store and the rate limiter.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
)

var (
	ErrNotFound = errors.New("key not found")
	ErrExpired  = errors.New("key expired")
)

// Cache provides TTL-based key-value storage.
type Cache interface {
	// Get retrieves a value by key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. If TTL is 0, use default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Take atomically reads and removes a key. Two concurrent Takes of the
	// same key never both succeed.
	Take(ctx context.Context, key string) ([]byte, error)

	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists and is not expired.
	Exists(ctx context.Context, key string) (bool, error)

	Close() error
}

// Counter provides fixed-window counters.
type Counter interface {
	// Increment adds delta and returns the new value and the instant the
	// window resets. A missing or expired key starts a new window of length ttl.
	Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error)

	// GetCount returns the current value, 0 if not found.
	GetCount(ctx context.Context, key string) (int64, error)

	Reset(ctx context.Context, key string) error
}

// CacheWithCounter combines Cache and Counter.
type CacheWithCounter interface {
	Cache
	Counter
}

// Factory builds a driver from its free-form options table.
type Factory func(opts map[string]any, logger *slog.Logger) (CacheWithCounter, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register makes a driver available by name. Called from driver init functions.
func Register(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = f
}

// Open creates a driver instance by name.
func Open(name string, opts map[string]any, logger *slog.Logger) (CacheWithCounter, error) {
	driversMu.RLock()
	f, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown cache driver %q (available: %v)", name, Drivers())
	}
	return f(opts, logger)
}

// Drivers lists the registered driver names.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeOptions decodes a driver options table into out. Durations may be
// given as strings ("5m") and numbers may arrive as strings from the environment.
func DecodeOptions(opts map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(opts); err != nil {
		return fmt.Errorf("invalid cache options: %w", err)
	}
	return nil
}
