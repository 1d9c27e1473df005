// Package valkeycache provides a cache driver backed by a Valkey (or Redis) server,
// for deployments where handshakes and rate limits must be shared between
// processes or survive a restart.
package valkeycache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/cache"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/logutil"
)

// Config holds connection settings.
type Config struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
}

// DefaultConfig returns defaults for a local server.
func DefaultConfig() Config {
	return Config{
		Addr:        "localhost:6379",
		DialTimeout: 5 * time.Second,
		KeyPrefix:   "calagent:",
		DefaultTTL:  15 * time.Minute,
	}
}

func init() {
	cache.Register("valkey", func(opts map[string]any, logger *slog.Logger) (cache.CacheWithCounter, error) {
		cfg := DefaultConfig()
		if err := cache.DecodeOptions(opts, &cfg); err != nil {
			return nil, err
		}
		return New(cfg, logger)
	})
}

// incrScript increments a counter and starts its window when the key has no expiry.
var incrScript = valkey.NewLuaScript(`
local v = redis.call('INCRBY', KEYS[1], ARGV[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {v, redis.call('PTTL', KEYS[1])}
`)

// Cache talks to the server through a valkey-go client.
type Cache struct {
	client     valkey.Client
	prefix     string
	defaultTTL time.Duration
	logger     *slog.Logger
}

// New connects to the server described by cfg.
func New(cfg Config, logger *slog.Logger) (*Cache, error) {
	logger = logutil.NoopIfNil(logger)
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{cfg.Addr},
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		Dialer:       net.Dialer{Timeout: cfg.DialTimeout},
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", cfg.Addr, err)
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	logger.Info("Connected to valkey cache", "addr", cfg.Addr, "db", cfg.DB)
	return &Cache{client: client, prefix: cfg.KeyPrefix, defaultTTL: cfg.DefaultTTL, logger: logger}, nil
}

func (c *Cache) key(k string) string { return c.prefix + k }

func (c *Cache) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(c.key(key)).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("valkey get: %w", err)
	}
	return b, nil
}

// Set stores a value with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	cmd := c.client.B().Set().Key(c.key(key)).Value(valkey.BinaryString(value)).
		PxMilliseconds(c.ttl(ttl).Milliseconds()).Build()
	if err := c.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey set: %w", err)
	}
	return nil
}

// Take reads and removes a key with GETDEL.
func (c *Cache) Take(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Do(ctx, c.client.B().Getdel().Key(c.key(key)).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("valkey getdel: %w", err)
	}
	return b, nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Do(ctx, c.client.B().Del().Key(c.key(key)).Build()).Error(); err != nil {
		return fmt.Errorf("valkey del: %w", err)
	}
	return nil
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Do(ctx, c.client.B().Exists().Key(c.key(key)).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("valkey exists: %w", err)
	}
	return n > 0, nil
}

// Increment adds delta to a counter in a single round trip.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	ms := c.ttl(ttl).Milliseconds()
	res, err := incrScript.Exec(ctx, c.client, []string{c.key(key)},
		[]string{strconv.FormatInt(delta, 10), strconv.FormatInt(ms, 10)}).ToArray()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("valkey incr: %w", err)
	}
	if len(res) != 2 {
		return 0, time.Time{}, errors.New("valkey incr: unexpected reply")
	}
	v, err := res[0].AsInt64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("valkey incr: %w", err)
	}
	pttl, err := res[1].AsInt64()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("valkey incr ttl: %w", err)
	}
	return v, time.Now().Add(time.Duration(pttl) * time.Millisecond), nil
}

// GetCount returns the current counter value.
func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	n, err := c.client.Do(ctx, c.client.B().Get().Key(c.key(key)).Build()).AsInt64()
	if valkey.IsValkeyNil(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("valkey get count: %w", err)
	}
	return n, nil
}

// Reset drops a counter.
func (c *Cache) Reset(ctx context.Context, key string) error {
	return c.Delete(ctx, key)
}

// Close releases the client.
func (c *Cache) Close() error {
	c.client.Close()
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)
