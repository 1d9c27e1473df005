// Package agent orchestrates calendar commands: it resolves the caller's
// credential and time zone, applies the provider rate limit, parses input,
// checks for conflicts and then talks to the calendar provider.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/clock"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/freebusy"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/logutil"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/ratelimit"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/recurrence"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/reminder"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/store"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/timeparse"
)

var (
	// ErrNotLinked is returned when the caller has no stored calendar credential.
	ErrNotLinked = errors.New("calendar not linked")
	// ErrRateLimited is returned when the caller exhausted the provider quota.
	ErrRateLimited = errors.New("too many calendar requests, try again later")
	// ErrBusy is returned when the requested time conflicts with existing events.
	ErrBusy = errors.New("time slot is busy")
)

// RateLimitOp prefixes the rate-limit key of every provider-bound command.
const RateLimitOp = "gcal"

// CalendarProvider is the calendar backend (Google or CalDAV).
type CalendarProvider interface {
	freebusy.Provider
	CreateEvent(ctx context.Context, cred models.Credential, draft models.EventDraft) (models.CreatedEvent, error)
	UpcomingEvents(ctx context.Context, cred models.Credential, from time.Time, days int) ([]*models.Event, error)
}

// Credentials returns decrypted credential material for an identity.
type Credentials interface {
	GetCredential(ctx context.Context, identity string) ([]byte, bool, error)
}

// Users holds per-user settings.
type Users interface {
	Timezone(ctx context.Context, identity string) (string, error)
	SetTimezone(ctx context.Context, identity, tz string) error
	Email(ctx context.Context, identity string) (string, error)
}

// Config wires an Agent.
type Config struct {
	Provider  CalendarProvider
	Creds     Credentials
	Users     Users
	Limiter   *ratelimit.Limiter
	Parser    *timeparse.Parser
	Scheduler *reminder.Scheduler // optional
	// DefaultTimezone applies to users without a saved zone.
	DefaultTimezone string
	Now             clock.NowFunc
}

// Agent executes chat commands.
type Agent struct {
	cfg       Config
	checker   *freebusy.Checker
	suggester *freebusy.Suggester
	logger    *slog.Logger
}

// New creates an Agent.
func New(cfg Config, logger *slog.Logger) *Agent {
	logger = logutil.NoopIfNil(logger)
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	cfg.Now = clock.OrSystem(cfg.Now)
	if cfg.Parser == nil {
		cfg.Parser = timeparse.New(cfg.Now)
	}
	return &Agent{
		cfg:       cfg,
		checker:   freebusy.NewChecker(cfg.Provider, logger),
		suggester: freebusy.NewSuggester(cfg.Provider, cfg.Now, logger),
		logger:    logger,
	}
}

// begin loads the caller's credential and consumes one unit of their quota.
func (a *Agent) begin(ctx context.Context, identity string) (models.Credential, error) {
	secret, ok, err := a.cfg.Creds.GetCredential(ctx, identity)
	if err != nil {
		return models.Credential{}, fmt.Errorf("failed to load credential: %w", err)
	}
	if !ok {
		return models.Credential{}, ErrNotLinked
	}
	if !a.cfg.Limiter.Allow(ctx, ratelimit.Key(RateLimitOp, identity)) {
		a.logger.Info("Rate limited calendar request", "identity", identity)
		return models.Credential{}, ErrRateLimited
	}
	return models.Credential{Identity: identity, Secret: secret}, nil
}

// Timezone returns the caller's zone, falling back to the configured default.
func (a *Agent) Timezone(ctx context.Context, identity string) string {
	if a.cfg.Users == nil {
		return a.cfg.DefaultTimezone
	}
	tz, err := a.cfg.Users.Timezone(ctx, identity)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.logger.Warn("Failed to load timezone, using default", "identity", identity, "error", err)
		}
		return a.cfg.DefaultTimezone
	}
	return tz
}

// SetTimezone validates and saves an IANA zone for the caller.
func (a *Agent) SetTimezone(ctx context.Context, identity, tz string) error {
	if _, err := time.LoadLocation(tz); err != nil || tz == "" {
		return fmt.Errorf("unknown time zone %q", tz)
	}
	return a.cfg.Users.SetTimezone(ctx, identity, tz)
}

// AddOptions tunes AddEvent and CreateRecurring.
type AddOptions struct {
	Attendees     []string // email addresses
	Location      string
	Description   string
	RemindMinutes int // 0 schedules no reminder
	ChannelID     string
	// Force creates the event even when it conflicts.
	Force bool
}

// AddResult describes a created event.
type AddResult struct {
	Event     models.CreatedEvent
	Draft     models.EventDraft
	Conflicts []models.BusyInterval
	Reminder  *models.Reminder
}

// AddEvent creates an event from free text such as "Lunch with @bob tomorrow at noon".
// A conflicting slot yields ErrBusy with the conflicts in the result, unless opts.Force is set.
func (a *Agent) AddEvent(ctx context.Context, identity, text string, opts AddOptions) (AddResult, error) {
	details := timeparse.ExtractEventDetails(text)
	expr := details.TimeExpression
	if expr == "" {
		expr = text
	}
	title := details.Title
	if title == "" {
		title = "Event"
	}
	draft, err := a.draft(ctx, identity, title, expr, opts)
	if err != nil {
		return AddResult{}, err
	}
	draft.Attendees = append(draft.Attendees, a.resolveMentions(ctx, details.AttendeeMentions)...)
	return a.create(ctx, identity, draft, opts)
}

// CreateRecurring creates a repeating event starting at when.
func (a *Agent) CreateRecurring(ctx context.Context, identity, title, when, freq string, interval int, count *int, opts AddOptions) (AddResult, error) {
	d, err := recurrence.Build(freq, interval, count)
	if err != nil {
		return AddResult{}, err
	}
	draft, err := a.draft(ctx, identity, title, when, opts)
	if err != nil {
		return AddResult{}, err
	}
	draft.Recurrence = []string{d.RRule()}
	return a.create(ctx, identity, draft, opts)
}

// CreateFromDraft creates a prepared draft, e.g. one built from a template.
func (a *Agent) CreateFromDraft(ctx context.Context, identity string, draft models.EventDraft, opts AddOptions) (AddResult, error) {
	return a.create(ctx, identity, draft, opts)
}

func (a *Agent) draft(ctx context.Context, identity, title, when string, opts AddOptions) (models.EventDraft, error) {
	rng, err := a.cfg.Parser.ParseRange(when, a.Timezone(ctx, identity))
	if err != nil {
		return models.EventDraft{}, err
	}
	return models.EventDraft{
		Title:       strings.TrimSpace(title),
		Description: opts.Description,
		Location:    opts.Location,
		Range:       rng,
		Attendees:   append([]string(nil), opts.Attendees...),
	}, nil
}

func (a *Agent) create(ctx context.Context, identity string, draft models.EventDraft, opts AddOptions) (AddResult, error) {
	cred, err := a.begin(ctx, identity)
	if err != nil {
		return AddResult{}, err
	}
	res := AddResult{Draft: draft}

	if !opts.Force {
		conflicts, err := a.checker.Conflicts(ctx, cred, draft.Range, nil)
		if err != nil {
			return res, err
		}
		if len(conflicts) > 0 {
			res.Conflicts = conflicts
			return res, ErrBusy
		}
	}

	created, err := a.cfg.Provider.CreateEvent(ctx, cred, draft)
	if err != nil {
		return res, err
	}
	res.Event = created
	a.logger.Info("Created event", "identity", identity, "eventID", created.ID, "start", draft.Range.Start)

	if opts.RemindMinutes > 0 && a.cfg.Scheduler != nil {
		r, err := a.cfg.Scheduler.Schedule(ctx, identity, opts.ChannelID, created.ID, draft.Title, draft.Range.Start, opts.RemindMinutes)
		if err != nil {
			// The event exists; a missing reminder is reported but not fatal.
			a.logger.Warn("Failed to schedule reminder", "eventID", created.ID, "error", err)
		} else {
			res.Reminder = r
		}
	}
	return res, nil
}

func (a *Agent) resolveMentions(ctx context.Context, mentions []string) []string {
	var emails []string
	for _, m := range mentions {
		if strings.Contains(m, "@") {
			emails = append(emails, m)
			continue
		}
		if a.cfg.Users == nil {
			continue
		}
		email, err := a.cfg.Users.Email(ctx, m)
		if err != nil {
			a.logger.Debug("No email for mentioned user", "mention", m)
			continue
		}
		emails = append(emails, email)
	}
	return emails
}

// CheckConflicts parses when and returns the busy intervals overlapping it.
func (a *Agent) CheckConflicts(ctx context.Context, identity, when string) (models.TimeRange, []models.BusyInterval, error) {
	rng, err := a.cfg.Parser.ParseRange(when, a.Timezone(ctx, identity))
	if err != nil {
		return models.TimeRange{}, nil, err
	}
	cred, err := a.begin(ctx, identity)
	if err != nil {
		return rng, nil, err
	}
	busy, err := a.checker.Conflicts(ctx, cred, rng, nil)
	return rng, busy, err
}

// SuggestTimes proposes free slots in the caller's zone.
func (a *Agent) SuggestTimes(ctx context.Context, identity string, req freebusy.Request) ([]models.SuggestionCandidate, error) {
	if req.Location == nil {
		loc, err := time.LoadLocation(a.Timezone(ctx, identity))
		if err != nil {
			return nil, err
		}
		req.Location = loc
	}
	cred, err := a.begin(ctx, identity)
	if err != nil {
		return nil, err
	}
	return a.suggester.Suggest(ctx, cred, req)
}

// Upcoming lists the caller's events in the next days days.
func (a *Agent) Upcoming(ctx context.Context, identity string, days int) ([]*models.Event, error) {
	if days <= 0 {
		days = 7
	}
	cred, err := a.begin(ctx, identity)
	if err != nil {
		return nil, err
	}
	return a.cfg.Provider.UpcomingEvents(ctx, cred, a.cfg.Now(), days)
}
