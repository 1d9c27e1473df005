package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/agent"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/cache"
	_ "github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/cache/loader"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/caldav"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/config"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/google"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/oauthstate"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/ratelimit"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/reminder"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/store"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/templates"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/timeparse"
)

// services holds the components shared by the commands.
type services struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.Store
	cache      cache.CacheWithCounter
	handshakes *oauthstate.Store
	google     *google.Client
	provider   agent.CalendarProvider
	parser     *timeparse.Parser
	agent      *agent.Agent
	templates  *templates.Service
	scheduler  *reminder.Scheduler
}

func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(config.LoaderOptions{
		ConfigPath: c.String("config"),
		EnvFiles:   []string{".env"},
		Logger:     setupLogger("info"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := setupLogger(cfg.LogLevel)
	logger.Debug("Loaded configuration.", "config", fmt.Sprintf("%+v", cfg.Redacted()))
	return cfg, logger, nil
}

// openServices wires every component. needCreds requires the sealing key and provider secrets.
func openServices(c *cli.Context, needCreds bool) (*services, error) {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if needCreds {
		if err := cfg.RequireLinking(); err != nil {
			return nil, err
		}
	}

	rt := &services{cfg: cfg, logger: logger, parser: timeparse.New(nil)}

	rt.store, err = store.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, err
	}
	rt.cache, err = cache.Open(cfg.Cache.Driver, cfg.Cache.DriverOptions(), logger)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	if cfg.EncryptionKey != "" {
		key, err := oauthstate.ParseKey(cfg.EncryptionKey)
		if err != nil {
			rt.Close()
			return nil, err
		}
		sealer, err := oauthstate.NewSealer(key)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.handshakes = oauthstate.New(rt.cache, rt.store, sealer, cfg.HandshakeTTL, logger)
	}

	switch cfg.Provider {
	case config.ProviderCalDAV:
		rt.provider = caldav.NewClient(cfg.CalDAV.Endpoint, logger)
	default:
		rt.google = google.NewClient(google.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.RedirectURL()), logger)
		rt.provider = rt.google
	}

	limits := ratelimit.DefaultConfig()
	limits.Requests, limits.Window = cfg.RateLimit.Requests, cfg.RateLimit.Window

	rt.scheduler = reminder.NewScheduler(rt.store)
	agentCfg := agent.Config{
		Provider:        rt.provider,
		Users:           rt.store,
		Limiter:         ratelimit.New(rt.cache, limits, logger),
		Parser:          rt.parser,
		Scheduler:       rt.scheduler,
		DefaultTimezone: cfg.DefaultTimezone,
	}
	if rt.handshakes != nil {
		agentCfg.Creds = rt.handshakes
	} else {
		agentCfg.Creds = noCredentials{}
	}
	rt.agent = agent.New(agentCfg, logger)
	rt.templates = templates.NewService(rt.store, rt.parser)
	return rt, nil
}

func (rt *services) Close() {
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			rt.logger.Warn("Failed to close cache", "error", err)
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("Failed to close database", "error", err)
		}
	}
}

func (rt *services) notifier() reminder.Notifier {
	if rt.cfg.Reminders.WebhookURL != "" {
		return reminder.NewWebhookNotifier(rt.cfg.Reminders.WebhookURL, nil)
	}
	return reminder.LogNotifier{Logger: rt.logger}
}

func (rt *services) dispatcher(dryRun bool) *reminder.Dispatcher {
	return reminder.NewDispatcher(rt.store, rt.notifier(), reminder.Config{
		Interval:   rt.cfg.Reminders.Interval,
		MaxRetries: rt.cfg.Reminders.MaxRetries,
		DryRun:     dryRun,
	}, nil, rt.logger)
}

// noCredentials stands in when no sealing key is configured: nobody is linked.
type noCredentials struct{}

func (noCredentials) GetCredential(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

// explain turns agent errors into user-facing text.
func explain(err error) error {
	switch {
	case errors.Is(err, agent.ErrNotLinked):
		return errors.New("calendar not linked, run the 'link' command first")
	case errors.Is(err, timeparse.ErrUnparsableTime):
		return fmt.Errorf("could not understand the time, try e.g. 'tomorrow 3pm' or 'friday 10-11am': %w", err)
	default:
		return err
	}
}

func userFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "Chat identity to act as.", Required: true}
}

func joinArgs(c *cli.Context) string {
	return strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
}
