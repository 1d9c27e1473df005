// Package ratelimit bounds calls per logical key with fixed-window counters
// kept in the cache subsystem.
package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/cache"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/logutil"
)

// Config defines rate limiting parameters.
type Config struct {
	// Requests is the maximum number of admitted calls per window.
	Requests int64

	// Window is the length of one counting window.
	Window time.Duration

	// KeyPrefix is prepended to all rate limit keys.
	KeyPrefix string
}

// DefaultConfig returns the limits applied to calendar operations.
func DefaultConfig() Config {
	return Config{
		Requests:  10,
		Window:    time.Minute,
		KeyPrefix: "ratelimit:",
	}
}

// Limiter is a non-blocking admission check. It never queues callers.
type Limiter struct {
	counter cache.Counter
	config  Config
	logger  *slog.Logger
}

// New creates a limiter. Zero fields of cfg take their defaults.
func New(c cache.Counter, cfg Config, logger *slog.Logger) *Limiter {
	def := DefaultConfig()
	if cfg.Requests <= 0 {
		cfg.Requests = def.Requests
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	return &Limiter{counter: c, config: cfg, logger: logutil.NoopIfNil(logger)}
}

// Key builds the conventional "<operation>:<identity>" key.
func Key(op, identity string) string {
	return op + ":" + identity
}

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int64
	ResetAt   time.Time
}

// Take counts one call against key. The increment and the comparison with the
// quota happen on the value returned by a single atomic counter update, so
// concurrent callers can never be admitted beyond the quota.
func (l *Limiter) Take(ctx context.Context, key string) (*Result, error) {
	count, resetAt, err := l.counter.Increment(ctx, l.config.KeyPrefix+key, 1, l.config.Window)
	if err != nil {
		return nil, err
	}
	return l.result(count, count <= l.config.Requests, resetAt), nil
}

// Allow reports whether a call for key is admitted. A counter backend failure
// denies the call.
func (l *Limiter) Allow(ctx context.Context, key string) bool {
	res, err := l.Take(ctx, key)
	if err != nil {
		l.logger.Error("Rate limit check failed, denying", "key", key, "error", err)
		return false
	}
	if !res.Allowed {
		l.logger.Debug("Rate limit exceeded", "key", key, "resetAt", res.ResetAt)
	}
	return res.Allowed
}

// Check reports the state for key without counting a call.
func (l *Limiter) Check(ctx context.Context, key string) (*Result, error) {
	count, err := l.counter.GetCount(ctx, l.config.KeyPrefix+key)
	if err != nil {
		return nil, err
	}
	return l.result(count, count < l.config.Requests, time.Time{}), nil
}

// Reset clears the counter for key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.counter.Reset(ctx, l.config.KeyPrefix+key)
}

func (l *Limiter) result(count int64, allowed bool, resetAt time.Time) *Result {
	remaining := l.config.Requests - count
	if remaining < 0 {
		remaining = 0
	}
	return &Result{Allowed: allowed, Remaining: remaining, ResetAt: resetAt}
}
