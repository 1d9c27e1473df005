package config

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

var validKey = base64.StdEncoding.EncodeToString(make([]byte, 32))

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(LoaderOptions{Getenv: env(nil)})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
	if got := cfg.RedirectURL(); got != "http://localhost:8080/oauth/callback" {
		t.Errorf("RedirectURL() = %q", got)
	}
}

func TestLoadPrecedence(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "agent.toml", `
http_addr = ":9000"
default_timezone = "Europe/Berlin"
provider = "caldav"
handshake_ttl = "10m"
unknown_key = true

[caldav]
endpoint = "https://dav.example/"

[rate_limit]
requests = 20
window = "30s"

[reminders]
interval = "15s"
max_retries = 0

[cache]
driver = "valkey"

[cache.drivers.valkey]
addr = "valkey:6379"
password = "hunter2"
`)

	cfg, err := Load(LoaderOptions{
		ConfigPath: path,
		Getenv: env(map[string]string{
			"CALAGENT_HTTP_ADDR":      ":9100",
			"CALAGENT_RATE_LIMIT":     "5",
			"CALAGENT_ENCRYPTION_KEY": validKey,
		}),
	})
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.HTTPAddr != ":9100" {
		t.Errorf("HTTPAddr = %q, env must win over file", cfg.HTTPAddr)
	}
	if cfg.RateLimit.Requests != 5 || cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.DefaultTimezone != "Europe/Berlin" || cfg.Provider != ProviderCalDAV || cfg.CalDAV.Endpoint != "https://dav.example/" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.HandshakeTTL != 10*time.Minute || cfg.Reminders.Interval != 15*time.Second || cfg.Reminders.MaxRetries != 0 {
		t.Errorf("durations or retries not applied: ttl %s interval %s retries %d", cfg.HandshakeTTL, cfg.Reminders.Interval, cfg.Reminders.MaxRetries)
	}
	if got := cfg.Cache.DriverOptions()["addr"]; got != "valkey:6379" {
		t.Errorf("valkey addr = %v", got)
	}

	red := cfg.Redacted()
	if red.EncryptionKey != "[REDACTED]" || red.Cache.Drivers["valkey"]["password"] != "[REDACTED]" {
		t.Errorf("Redacted() leaked secrets: %+v", red)
	}
	if cfg.Cache.Drivers["valkey"]["password"] != "hunter2" {
		t.Error("Redacted() modified the original")
	}
}

func TestLoadCollectsErrors(t *testing.T) {
	t.Parallel()

	_, err := Load(LoaderOptions{Getenv: env(map[string]string{
		"CALAGENT_PROVIDER":          "outlook",
		"CALAGENT_DEFAULT_TZ":        "Mars/Base",
		"CALAGENT_RATE_LIMIT":        "lots",
		"CALAGENT_HANDSHAKE_TTL":     "soon",
		"CALAGENT_ENCRYPTION_KEY":    "c2hvcnQ=",
		"CALAGENT_PUBLIC_URL":        "localhost",
		"LOG_LEVEL":                  "chatty",
		"CALAGENT_REMINDER_INTERVAL": "-1s",
	})})
	if err == nil {
		t.Fatal("Load() succeeded with invalid values")
	}
	for _, want := range []string{"provider", "default timezone", "CALAGENT_RATE_LIMIT", "CALAGENT_HANDSHAKE_TTL", "encryption key", "public url", "log level", "must be positive"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %q:\n%v", want, err)
		}
	}
}

func TestLoadBadFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(LoaderOptions{ConfigPath: filepath.Join(t.TempDir(), "missing.toml"), Getenv: env(nil)}); err == nil {
		t.Error("Load() with a missing file succeeded")
	}
	path := writeFile(t, "bad.toml", "http_addr = ")
	if _, err := Load(LoaderOptions{ConfigPath: path, Getenv: env(nil)}); err == nil {
		t.Error("Load() with invalid TOML succeeded")
	}
}

func TestRequireLinking(t *testing.T) {
	t.Parallel()

	cfg := Default()
	err := cfg.RequireLinking()
	if err == nil {
		t.Fatal("RequireLinking() succeeded without secrets")
	}
	for _, want := range []string{"CALAGENT_ENCRYPTION_KEY", "GOOGLE_CLIENT_ID", "GOOGLE_CLIENT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s", want)
		}
	}

	cfg.Provider = ProviderCalDAV
	cfg.EncryptionKey = validKey
	if err := cfg.RequireLinking(); err != nil {
		t.Errorf("RequireLinking() for caldav = %v", err)
	}
}
