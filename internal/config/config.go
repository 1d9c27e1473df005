// Package config loads the agent configuration from defaults, an optional
// TOML file and the environment.
package config

import (
	"time"
)

// Provider names.
const (
	ProviderGoogle = "google"
	ProviderCalDAV = "caldav"
)

// Config is the resolved configuration.
type Config struct {
	HTTPAddr        string
	PublicURL       string
	DBPath          string
	DefaultTimezone string
	LogLevel        string

	Provider string
	Google   GoogleConfig
	CalDAV   CalDAVConfig

	// EncryptionKey is the base64 form of the 32-byte credential sealing key.
	EncryptionKey string

	RateLimit    RateLimitConfig
	HandshakeTTL time.Duration
	Reminders    ReminderConfig
	Cache        CacheConfig
}

// GoogleConfig holds the OAuth client of the Google provider.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// CalDAVConfig points at a CalDAV server.
type CalDAVConfig struct {
	Endpoint string
}

// RateLimitConfig bounds provider calls per user.
type RateLimitConfig struct {
	Requests int64
	Window   time.Duration
}

// ReminderConfig tunes the dispatcher.
type ReminderConfig struct {
	Interval time.Duration
	// MaxRetries of 0 disables dead-lettering.
	MaxRetries int
	WebhookURL string
}

// CacheConfig selects the shared TTL store used for handshakes and rate limits.
type CacheConfig struct {
	Driver string
	// Drivers holds free-form options per driver name.
	Drivers map[string]map[string]any
}

// DriverOptions returns the options table of the selected driver.
func (c CacheConfig) DriverOptions() map[string]any {
	if opts, ok := c.Drivers[c.Driver]; ok {
		return opts
	}
	return map[string]any{}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		PublicURL:       "http://localhost:8080",
		DBPath:          "data/calendar-agent.db",
		DefaultTimezone: "UTC",
		LogLevel:        "info",
		Provider:        ProviderGoogle,
		RateLimit: RateLimitConfig{
			Requests: 10,
			Window:   time.Minute,
		},
		HandshakeTTL: 5 * time.Minute,
		Reminders: ReminderConfig{
			Interval:   60 * time.Second,
			MaxRetries: 5,
		},
		Cache: CacheConfig{
			Driver:  "memory",
			Drivers: map[string]map[string]any{},
		},
	}
}

// Redacted returns a copy that is safe to log.
func (c *Config) Redacted() Config {
	out := *c
	out.Google.ClientSecret = redact(out.Google.ClientSecret)
	out.EncryptionKey = redact(out.EncryptionKey)
	out.Cache.Drivers = make(map[string]map[string]any, len(c.Cache.Drivers))
	for name, opts := range c.Cache.Drivers {
		cp := make(map[string]any, len(opts))
		for k, v := range opts {
			if k == "password" {
				if s, ok := v.(string); ok {
					v = redact(s)
				}
			}
			cp[k] = v
		}
		out.Cache.Drivers[name] = cp
	}
	return out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}
