package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/oauthstate"
)

// LoaderOptions controls how configuration is loaded.
type LoaderOptions struct {
	// ConfigPath is an optional TOML file. A missing or invalid file fails the load.
	ConfigPath string

	// EnvFiles are loaded into the process environment before it is read.
	// Missing files are ignored; variables already set win.
	EnvFiles []string

	// Getenv reads the environment. Nil means os.Getenv.
	Getenv func(string) string

	// Logger receives warnings such as unknown TOML keys. Nil means slog.Default().
	Logger *slog.Logger
}

type fileConfig struct {
	HTTPAddr        string `toml:"http_addr"`
	PublicURL       string `toml:"public_url"`
	DBPath          string `toml:"db_path"`
	DefaultTimezone string `toml:"default_timezone"`
	LogLevel        string `toml:"log_level"`
	Provider        string `toml:"provider"`
	EncryptionKey   string `toml:"encryption_key"`
	HandshakeTTL    string `toml:"handshake_ttl"`

	Google *struct {
		ClientID     string `toml:"client_id"`
		ClientSecret string `toml:"client_secret"`
		RedirectURL  string `toml:"redirect_url"`
	} `toml:"google"`
	CalDAV *struct {
		Endpoint string `toml:"endpoint"`
	} `toml:"caldav"`
	RateLimit *struct {
		Requests int64  `toml:"requests"`
		Window   string `toml:"window"`
	} `toml:"rate_limit"`
	Reminders *struct {
		Interval   string `toml:"interval"`
		MaxRetries *int   `toml:"max_retries"`
		WebhookURL string `toml:"webhook_url"`
	} `toml:"reminders"`
	Cache *struct {
		Driver  string                    `toml:"driver"`
		Drivers map[string]map[string]any `toml:"drivers"`
	} `toml:"cache"`
}

// Load resolves the configuration with the following precedence:
//  1. built-in defaults
//  2. the TOML file, if ConfigPath is set
//  3. environment variables (after loading EnvFiles)
//
// Every invalid value is reported in a single joined error.
func Load(opts LoaderOptions) (*Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := Default()
	var errs []error

	if opts.ConfigPath != "" {
		var fc fileConfig
		md, err := toml.DecodeFile(opts.ConfigPath, &fc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", opts.ConfigPath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				if strings.HasPrefix(k.String(), "cache.drivers.") {
					continue
				}
				keys = append(keys, k.String())
			}
			if len(keys) > 0 {
				logger.Warn("Config file contains unknown keys", "path", opts.ConfigPath, "keys", keys)
			}
		}
		errs = append(errs, overlayFile(cfg, &fc)...)
	}

	for _, f := range opts.EnvFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	errs = append(errs, overlayEnv(cfg, getenv)...)
	errs = append(errs, validate(cfg)...)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func overlayFile(cfg *Config, fc *fileConfig) []error {
	var errs []error
	setString(&cfg.HTTPAddr, fc.HTTPAddr)
	setString(&cfg.PublicURL, fc.PublicURL)
	setString(&cfg.DBPath, fc.DBPath)
	setString(&cfg.DefaultTimezone, fc.DefaultTimezone)
	setString(&cfg.LogLevel, fc.LogLevel)
	setString(&cfg.Provider, fc.Provider)
	setString(&cfg.EncryptionKey, fc.EncryptionKey)
	errs = appendErr(errs, setDuration(&cfg.HandshakeTTL, "handshake_ttl", fc.HandshakeTTL))

	if g := fc.Google; g != nil {
		setString(&cfg.Google.ClientID, g.ClientID)
		setString(&cfg.Google.ClientSecret, g.ClientSecret)
		setString(&cfg.Google.RedirectURL, g.RedirectURL)
	}
	if c := fc.CalDAV; c != nil {
		setString(&cfg.CalDAV.Endpoint, c.Endpoint)
	}
	if r := fc.RateLimit; r != nil {
		if r.Requests != 0 {
			cfg.RateLimit.Requests = r.Requests
		}
		errs = appendErr(errs, setDuration(&cfg.RateLimit.Window, "rate_limit.window", r.Window))
	}
	if r := fc.Reminders; r != nil {
		errs = appendErr(errs, setDuration(&cfg.Reminders.Interval, "reminders.interval", r.Interval))
		if r.MaxRetries != nil {
			cfg.Reminders.MaxRetries = *r.MaxRetries
		}
		setString(&cfg.Reminders.WebhookURL, r.WebhookURL)
	}
	if c := fc.Cache; c != nil {
		setString(&cfg.Cache.Driver, c.Driver)
		for name, opts := range c.Drivers {
			cfg.Cache.Drivers[name] = opts
		}
	}
	return errs
}

func overlayEnv(cfg *Config, getenv func(string) string) []error {
	var errs []error
	setString(&cfg.HTTPAddr, getenv("CALAGENT_HTTP_ADDR"))
	setString(&cfg.PublicURL, getenv("CALAGENT_PUBLIC_URL"))
	setString(&cfg.DBPath, getenv("CALAGENT_DB_PATH"))
	setString(&cfg.DefaultTimezone, getenv("CALAGENT_DEFAULT_TZ"))
	setString(&cfg.LogLevel, getenv("LOG_LEVEL"))
	setString(&cfg.Provider, getenv("CALAGENT_PROVIDER"))
	setString(&cfg.Google.ClientID, getenv("GOOGLE_CLIENT_ID"))
	setString(&cfg.Google.ClientSecret, getenv("GOOGLE_CLIENT_SECRET"))
	setString(&cfg.Google.RedirectURL, getenv("GOOGLE_REDIRECT_URL"))
	setString(&cfg.CalDAV.Endpoint, getenv("CALDAV_ENDPOINT"))
	setString(&cfg.EncryptionKey, getenv("CALAGENT_ENCRYPTION_KEY"))
	setString(&cfg.Reminders.WebhookURL, getenv("CALAGENT_WEBHOOK_URL"))
	setString(&cfg.Cache.Driver, getenv("CALAGENT_CACHE_DRIVER"))

	if v := getenv("CALAGENT_RATE_LIMIT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("CALAGENT_RATE_LIMIT: %q is not an integer", v))
		} else {
			cfg.RateLimit.Requests = n
		}
	}
	if v := getenv("CALAGENT_REMINDER_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("CALAGENT_REMINDER_MAX_RETRIES: %q is not an integer", v))
		} else {
			cfg.Reminders.MaxRetries = n
		}
	}
	errs = appendErr(errs, setDuration(&cfg.RateLimit.Window, "CALAGENT_RATE_WINDOW", getenv("CALAGENT_RATE_WINDOW")))
	errs = appendErr(errs, setDuration(&cfg.HandshakeTTL, "CALAGENT_HANDSHAKE_TTL", getenv("CALAGENT_HANDSHAKE_TTL")))
	errs = appendErr(errs, setDuration(&cfg.Reminders.Interval, "CALAGENT_REMINDER_INTERVAL", getenv("CALAGENT_REMINDER_INTERVAL")))
	return errs
}

func validate(cfg *Config) []error {
	var errs []error
	switch cfg.Provider {
	case ProviderGoogle, ProviderCalDAV:
	default:
		errs = append(errs, fmt.Errorf("provider: %q must be one of google, caldav", cfg.Provider))
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level: %q must be one of debug, info, warn, error", cfg.LogLevel))
	}
	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("default timezone: %q is not a known zone", cfg.DefaultTimezone))
	}
	if u, err := url.Parse(cfg.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("public url: %q must be an absolute URL", cfg.PublicURL))
	}
	if cfg.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if cfg.RateLimit.Requests < 1 {
		errs = append(errs, fmt.Errorf("rate limit: %d must be at least 1", cfg.RateLimit.Requests))
	}
	if cfg.RateLimit.Window <= 0 || cfg.HandshakeTTL <= 0 || cfg.Reminders.Interval <= 0 {
		errs = append(errs, errors.New("rate window, handshake ttl and reminder interval must be positive"))
	}
	if cfg.Reminders.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("reminder max retries: %d must not be negative", cfg.Reminders.MaxRetries))
	}
	if cfg.EncryptionKey != "" {
		if _, err := oauthstate.ParseKey(cfg.EncryptionKey); err != nil {
			errs = append(errs, fmt.Errorf("encryption key: %w", err))
		}
	}
	return errs
}

// RequireLinking reports the settings missing for the OAuth linking flow
// and for reading stored credentials.
func (c *Config) RequireLinking() error {
	var errs []error
	if c.EncryptionKey == "" {
		errs = append(errs, errors.New("CALAGENT_ENCRYPTION_KEY is required"))
	}
	if c.Provider == ProviderGoogle {
		if c.Google.ClientID == "" {
			errs = append(errs, errors.New("GOOGLE_CLIENT_ID is required"))
		}
		if c.Google.ClientSecret == "" {
			errs = append(errs, errors.New("GOOGLE_CLIENT_SECRET is required"))
		}
	}
	return errors.Join(errs...)
}

// RedirectURL returns the OAuth callback URL, derived from PublicURL when unset.
func (c *Config) RedirectURL() string {
	if c.Google.RedirectURL != "" {
		return c.Google.RedirectURL
	}
	return strings.TrimRight(c.PublicURL, "/") + "/oauth/callback"
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %q is not a duration", key, v)
	}
	*dst = d
	return nil
}

func appendErr(errs []error, err error) []error {
	if err != nil {
		return append(errs, err)
	}
	return errs
}
