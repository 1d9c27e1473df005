package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/agent"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/caldav"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/config"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/freebusy"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/httpapi"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/oauthstate"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/recurrence"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/store"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/templates"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/timeparse"
)

const timeLayout = "Mon Jan 2 15:04 MST"

func main() {
	app := &cli.App{
		Name:  "calendar-agent",
		Usage: "Manage calendar events from natural-language commands and deliver reminders.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to a TOML config file.", EnvVars: []string{"CALAGENT_CONFIG"}},
		},
		Commands: []*cli.Command{
			serveCommand(),
			dispatchCommand(),
			parseCommand(),
			conflictsCommand(),
			suggestCommand(),
			addCommand(),
			recurringCommand(),
			templateCommand(),
			upcomingCommand(),
			remindersCommand(),
			timezoneCommand(),
			emailCommand(),
			guildCommand(),
			linkCommand(),
			keygenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the OAuth linking routes and run the reminder dispatcher.",
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc, err := openServices(c, true)
			if err != nil {
				return err
			}
			defer svc.Close()
			logger := svc.logger

			var linker httpapi.Linker
			if svc.google != nil {
				linker = svc.google
			}
			checks := map[string]httpapi.Check{
				"database": svc.store.Ping,
				"cache": func(ctx context.Context) error {
					_, err := svc.cache.Exists(ctx, "readyz")
					return err
				},
			}
			server := &http.Server{
				Addr:              svc.cfg.HTTPAddr,
				Handler:           httpapi.New(linker, svc.handshakes, checks, logger).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				if err := svc.dispatcher(false).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Reminder dispatcher stopped", "error", err)
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Listening.", "addr", server.Addr, "provider", svc.cfg.Provider)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("http server failed: %w", err)
			case <-ctx.Done():
			}

			logger.Info("Shutting down.")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

func dispatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "dispatch",
		Usage: "Deliver due reminders.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Run a single dispatch tick and exit."},
			&cli.BoolFlag{Name: "dry-run", Usage: "Log what would be delivered without sending or updating anything."},
			&cli.IntFlag{Name: "watch", Value: 60, Usage: "Dispatch every N seconds. Overrides --once."},
		},
		Action: func(c *cli.Context) error {
			svc, err := openServices(c, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			if c.Bool("dry-run") {
				svc.logger.Info("Performing a dry run. No reminders will be sent.")
			}

			// --watch takes precedence
			if c.IsSet("watch") {
				svc.cfg.Reminders.Interval = time.Duration(c.Int("watch")) * time.Second
				ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
				defer stop()
				if err := svc.dispatcher(c.Bool("dry-run")).Run(ctx); !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			}

			report := svc.dispatcher(c.Bool("dry-run")).Tick(c.Context)
			fmt.Printf("due=%d sent=%d failed=%d dead-lettered=%d\n", report.Due, report.Sent, report.Failed, report.DeadLettered)
			return nil
		},
	}
}

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Show how a request is understood.",
		ArgsUsage: "<text>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tz", Value: "UTC", Usage: "IANA time zone to interpret the text in."},
		},
		Action: func(c *cli.Context) error {
			text := joinArgs(c)
			details := timeparse.ExtractEventDetails(text)
			fmt.Printf("title:     %s\n", details.Title)
			fmt.Printf("time:      %s\n", details.TimeExpression)
			fmt.Printf("attendees: %s\n", strings.Join(details.AttendeeMentions, ", "))

			expr := details.TimeExpression
			if expr == "" {
				expr = text
			}
			rng, err := timeparse.New(nil).ParseRange(expr, c.String("tz"))
			if err != nil {
				return explain(err)
			}
			fmt.Printf("range:     %s - %s\n", rng.Start.Format(timeLayout), rng.End.Format(timeLayout))
			return nil
		},
	}
}

func conflictsCommand() *cli.Command {
	return &cli.Command{
		Name:      "conflicts",
		Usage:     "Check whether a time is free.",
		ArgsUsage: "<when>",
		Flags:     []cli.Flag{userFlag()},
		Action: func(c *cli.Context) error {
			svc, err := openServices(c, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			rng, busy, err := svc.agent.CheckConflicts(c.Context, c.String("user"), joinArgs(c))
			if err != nil {
				return explain(err)
			}
			if len(busy) == 0 {
				fmt.Printf("Free: %s - %s\n", rng.Start.Format(timeLayout), rng.End.Format(timeLayout))
				return nil
			}
			fmt.Printf("Busy during %s - %s:\n", rng.Start.Format(timeLayout), rng.End.Format(timeLayout))
			printBusy(busy, rng.Start.Location())
			return nil
		},
	}
}

func suggestCommand() *cli.Command {
	return &cli.Command{
		Name:  "suggest",
		Usage: "Suggest free meeting times.",
		Flags: []cli.Flag{
			userFlag(),
			&cli.DurationFlag{Name: "duration", Value: 30 * time.Minute, Usage: "Meeting length."},
			&cli.IntFlag{Name: "days", Value: 3, Usage: "Number of days to search, starting today."},
			&cli.IntFlag{Name: "start", Value: 9, Usage: "Start of the working day (hour)."},
			&cli.IntFlag{Name: "end", Value: 17, Usage: "End of the working day (hour, exclusive)."},
			&cli.StringSliceFlag{Name: "attendee", Usage: "Calendar ID (email) that must also be free."},
			&cli.DurationFlag{Name: "step", Value: freebusy.DefaultStep, Usage: "Spacing of candidate start times."},
			&cli.IntFlag{Name: "limit", Value: freebusy.DefaultLimit, Usage: "Maximum number of suggestions."},
		},
		Action: func(c *cli.Context) error {
			svc, err := openServices(c, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			got, err := svc.agent.SuggestTimes(c.Context, c.String("user"), freebusy.Request{
				Duration:      c.Duration("duration"),
				DaysAhead:     c.Int("days"),
				WorkStartHour: c.Int("start"),
				WorkEndHour:   c.Int("end"),
				Attendees:     c.StringSlice("attendee"),
				Step:          c.Duration("step"),
				Limit:         c.Int("limit"),
			})
			if err != nil {
				return explain(err)
			}
			if len(got) == 0 {
				fmt.Println("No free slots in that window.")
				return nil
			}
			for _, s := range got {
				fmt.Printf("%2d. %s - %s\n", s.Rank, s.Start.Format(timeLayout), s.End.Format("15:04"))
			}
			return nil
		},
	}
}

func eventFlags() []cli.Flag {
	return []cli.Flag{
		userFlag(),
		&cli.StringSliceFlag{Name: "attendee", Usage: "Email address to invite."},
		&cli.StringFlag{Name: "location", Usage: "Event location."},
		&cli.StringFlag{Name: "description", Usage: "Event description."},
		&cli.IntFlag{Name: "remind", Usage: "Schedule a reminder N minutes before the start."},
		&cli.StringFlag{Name: "channel", Usage: "Channel the reminder is delivered to."},
		&cli.StringFlag{Name: "guild", Usage: "Guild whose default channel receives the reminder."},
		&cli.BoolFlag{Name: "force", Usage: "Create the event even if the time is busy."},
	}
}

func addOptions(c *cli.Context, svc *services) agent.AddOptions {
	channel := c.String("channel")
	if channel == "" && c.String("guild") != "" {
		if ch, _, err := svc.store.GuildDefaults(c.Context, c.String("guild")); err == nil {
			channel = ch
		} else if !errors.Is(err, store.ErrNotFound) {
			svc.logger.Warn("Failed to load guild defaults", "guild", c.String("guild"), "error", err)
		}
	}
	return agent.AddOptions{
		Attendees:     c.StringSlice("attendee"),
		Location:      c.String("location"),
		Description:   c.String("description"),
		RemindMinutes: c.Int("remind"),
		ChannelID:     channel,
		Force:         c.Bool("force"),
	}
}

func printCreated(res agent.AddResult, err error) error {
	if errors.Is(err, agent.ErrBusy) {
		fmt.Println("That time is busy:")
		printBusy(res.Conflicts, res.Draft.Range.Start.Location())
		fmt.Println("Use --force to create it anyway, or try 'suggest'.")
		return nil
	}
	if err != nil {
		return explain(err)
	}
	fmt.Printf("Created %q %s - %s\n", res.Draft.Title, res.Draft.Range.Start.Format(timeLayout), res.Draft.Range.End.Format(timeLayout))
	if res.Event.HTMLLink != "" {
		fmt.Println(res.Event.HTMLLink)
	}
	if res.Reminder != nil {
		fmt.Printf("Reminder at %s\n", res.Reminder.RemindAt.In(res.Draft.Range.Start.Location()).Format(timeLayout))
	}
	return nil
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Create an event from text, e.g. \"Lunch with @bob tomorrow at noon\".",
		ArgsUsage: "<text>",
		Flags:     eventFlags(),
		Action: func(c *cli.Context) error {
			svc, err := openServices(c, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			return printCreated(svc.agent.AddEvent(c.Context, c.String("user"), joinArgs(c), addOptions(c, svc)))
		},
	}
}

func recurringCommand() *cli.Command {
	flags := append(eventFlags(),
		&cli.StringFlag{Name: "title", Required: true, Usage: "Event title."},
		&cli.StringFlag{Name: "freq", Required: true, Usage: "daily, weekly, monthly or yearly."},
		&cli.IntFlag{Name: "interval", Value: 1, Usage: "Repeat every N periods."},
		&cli.IntFlag{Name: "count", Usage: "Stop after N occurrences."},
		&cli.IntFlag{Name: "preview", Usage: "Print the first N occurrences of the created event."},
		&cli.StringFlag{Name: "ics", Usage: "Also write the created event to this iCalendar file."},
	)
	return &cli.Command{
		Name:      "recurring",
		Usage:     "Create a repeating event.",
		ArgsUsage: "<first occurrence>",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			var count *int
			if c.IsSet("count") {
				n := c.Int("count")
				count = &n
			}
			d, err := recurrence.Build(c.String("freq"), c.Int("interval"), count)
			if err != nil {
				return err
			}

			svc, err := openServices(c, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.agent.CreateRecurring(c.Context, c.String("user"), c.String("title"), joinArgs(c), c.String("freq"), c.Int("interval"), count, addOptions(c, svc))
			if err := printCreated(res, err); err != nil {
				return err
			}
			if res.Event.ID == "" {
				return nil
			}
			fmt.Printf("Repeats %s\n", d.Describe())
			return recurrenceExtras(os.Stdout, res.Draft, d, c.Int("preview"), c.String("ics"))
		},
	}
}

// recurrenceExtras prints the first preview occurrences of draft and writes it
// as an iCalendar file when icsPath is set.
func recurrenceExtras(w io.Writer, draft models.EventDraft, d recurrence.Descriptor, preview int, icsPath string) error {
	if preview > 0 {
		starts, err := recurrence.Occurrences(draft.Range.Start, d, preview)
		if err != nil {
			return err
		}
		loc := draft.Range.Start.Location()
		for i, t := range starts {
			fmt.Fprintf(w, "%2d. %s\n", i+1, t.In(loc).Format(timeLayout))
		}
	}
	if icsPath == "" {
		return nil
	}
	data, err := recurrence.ICS(draft, d)
	if err != nil {
		return err
	}
	if err := os.WriteFile(icsPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", icsPath, err)
	}
	fmt.Fprintf(w, "Wrote %s\n", icsPath)
	return nil
}

func templateCommand() *cli.Command {
	flags := append(eventFlags(),
		&cli.StringFlag{Name: "when", Usage: "Start time when using a template."},
		&cli.StringFlag{Name: "title", Usage: "Event title (create)."},
		&cli.DurationFlag{Name: "duration", Usage: "Event length (create)."},
		&cli.StringFlag{Name: "rule", Usage: "Recurrence rule, e.g. FREQ=WEEKLY;INTERVAL=1 (create)."},
	)
	return &cli.Command{
		Name:      "template",
		Usage:     "Manage event templates: list, create, use or delete.",
		ArgsUsage: "<action> [name]",
		Flags:     flags,
		Action: func(c *cli.Context) error {
			action, err := templates.ParseAction(c.Args().First())
			if err != nil {
				return err
			}

			svc, err := openServices(c, action == templates.ActionUse)
			if err != nil {
				return err
			}
			defer svc.Close()

			user := c.String("user")
			res, err := svc.templates.Handle(c.Context, templates.Request{
				Action: action,
				UserID: user,
				Name:   c.Args().Get(1),
				Template: models.EventTemplate{
					Title:           c.String("title"),
					Duration:        c.Duration("duration"),
					Location:        c.String("location"),
					Description:     c.String("description"),
					Attendees:       c.StringSlice("attendee"),
					ReminderMinutes: c.Int("remind"),
					RecurrenceRule:  c.String("rule"),
				},
				When:     c.String("when"),
				Timezone: svc.agent.Timezone(c.Context, user),
			})
			if err != nil {
				return explain(err)
			}

			switch action {
			case templates.ActionList:
				if len(res.Templates) == 0 {
					fmt.Println("No templates.")
				}
				for _, t := range res.Templates {
					fmt.Printf("%-16s %s (%s)\n", t.Name, t.Title, t.Duration)
				}
			case templates.ActionCreate:
				fmt.Printf("Saved template %q.\n", res.Template.Name)
			case templates.ActionDelete:
				fmt.Println("Deleted.")
			case templates.ActionUse:
				opts := addOptions(c, svc)
				if !c.IsSet("remind") {
					opts.RemindMinutes = res.Template.ReminderMinutes
				}
				return printCreated(svc.agent.CreateFromDraft(c.Context, user, *res.Draft, opts))
			}
			return nil
		},
	}
}

func upcomingCommand() *cli.Command {
	return &cli.Command{
		Name:  "upcoming",
		Usage: "List upcoming events.",
		Flags: []cli.Flag{
			userFlag(),
			&cli.IntFlag{Name: "days", Value: 7, Usage: "Number of days to look ahead."},
		},
		Action: func(c *cli.Context) error {
			svc, err := openServices(c, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			user := c.String("user")
			events, err := svc.agent.Upcoming(c.Context, user, c.Int("days"))
			if err != nil {
				return explain(err)
			}
			loc, err := time.LoadLocation(svc.agent.Timezone(c.Context, user))
			if err != nil {
				loc = time.UTC
			}
			if len(events) == 0 {
				fmt.Println("Nothing scheduled.")
			}
			for _, e := range events {
				fmt.Printf("%s  %s\n", e.StartTime.In(loc).Format(timeLayout), e.Title)
			}
			return nil
		},
	}
}

func remindersCommand() *cli.Command {
	return &cli.Command{
		Name:  "reminders",
		Usage: "List pending reminders or cancel one.",
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{Name: "cancel", Usage: "ID of a reminder to cancel."},
		},
		Action: func(c *cli.Context) error {
			svc, err := openServices(c, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			if id := c.String("cancel"); id != "" {
				if err := svc.store.DeleteReminder(c.Context, id); err != nil {
					return fmt.Errorf("failed to cancel reminder %s: %w", id, err)
				}
				fmt.Println("Cancelled.")
				return nil
			}
			pending, err := svc.store.PendingReminders(c.Context, c.String("user"))
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("No pending reminders.")
			}
			for _, r := range pending {
				fmt.Printf("%s  %s  %s\n", r.ID, r.RemindAt.Format(timeLayout), r.Message)
			}
			return nil
		},
	}
}

func timezoneCommand() *cli.Command {
	return &cli.Command{
		Name:      "timezone",
		Usage:     "Show or set your time zone.",
		ArgsUsage: "[IANA zone]",
		Flags:     []cli.Flag{userFlag()},
		Action: func(c *cli.Context) error {
			svc, err := openServices(c, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			user := c.String("user")
			if tz := c.Args().First(); tz != "" {
				if err := svc.agent.SetTimezone(c.Context, user, tz); err != nil {
					return err
				}
			}
			fmt.Println(svc.agent.Timezone(c.Context, user))
			return nil
		},
	}
}

func emailCommand() *cli.Command {
	return &cli.Command{
		Name:      "email",
		Usage:     "Set the address used when you are @mentioned in an event.",
		ArgsUsage: "<address>",
		Flags:     []cli.Flag{userFlag()},
		Action: func(c *cli.Context) error {
			email := c.Args().First()
			if !strings.Contains(email, "@") {
				return fmt.Errorf("%q is not an email address", email)
			}
			svc, err := openServices(c, false)
			if err != nil {
				return err
			}
			defer svc.Close()
			return svc.store.SetEmail(c.Context, c.String("user"), email)
		},
	}
}

func guildCommand() *cli.Command {
	return &cli.Command{
		Name:  "guild",
		Usage: "Show or set a guild's default reminder channel and time zone.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "guild", Required: true, Usage: "Guild ID."},
			&cli.StringFlag{Name: "channel", Usage: "Default channel ID."},
			&cli.StringFlag{Name: "tz", Usage: "Default IANA time zone."},
		},
		Action: func(c *cli.Context) error {
			svc, err := openServices(c, false)
			if err != nil {
				return err
			}
			defer svc.Close()

			guild := c.String("guild")
			if c.String("channel") != "" || c.String("tz") != "" {
				if tz := c.String("tz"); tz != "" {
					if _, err := time.LoadLocation(tz); err != nil {
						return fmt.Errorf("unknown time zone %q", tz)
					}
				}
				if err := svc.store.SetGuildDefaults(c.Context, guild, c.String("channel"), c.String("tz")); err != nil {
					return err
				}
			}
			ch, tz, err := svc.store.GuildDefaults(c.Context, guild)
			if err != nil {
				return err
			}
			fmt.Printf("channel=%s tz=%s\n", ch, tz)
			return nil
		},
	}
}

func linkCommand() *cli.Command {
	return &cli.Command{
		Name:  "link",
		Usage: "Link a calendar account.",
		Flags: []cli.Flag{
			userFlag(),
			&cli.StringFlag{Name: "username", Usage: "CalDAV username (caldav provider)."},
			&cli.StringFlag{Name: "password", Usage: "CalDAV app-specific password (caldav provider).", EnvVars: []string{"CALDAV_PASSWORD"}},
		},
		Action: func(c *cli.Context) error {
			svc, err := openServices(c, true)
			if err != nil {
				return err
			}
			defer svc.Close()

			user := c.String("user")
			if svc.cfg.Provider == config.ProviderGoogle {
				u := strings.TrimRight(svc.cfg.PublicURL, "/") + "/oauth/start?user_id=" + url.QueryEscape(user)
				fmt.Printf("Open the following link while 'serve' is running to link your Google Calendar:\n%s\n", u)
				return nil
			}

			secret, err := caldav.EncodeSecret(caldav.Secret{Username: c.String("username"), Password: c.String("password")})
			if err != nil {
				return err
			}
			if err := svc.handshakes.StoreCredential(c.Context, user, secret); err != nil {
				return fmt.Errorf("failed to store credential: %w", err)
			}
			svc.logger.Info("Linked CalDAV account.", "user", user)
			return nil
		},
	}
}

func keygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Print a new CALAGENT_ENCRYPTION_KEY.",
		Action: func(c *cli.Context) error {
			key, err := oauthstate.GenerateKey()
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
}

func printBusy(busy []models.BusyInterval, loc *time.Location) {
	for _, b := range busy {
		fmt.Printf("  %s - %s\n", b.Start.In(loc).Format(timeLayout), b.End.In(loc).Format("15:04"))
	}
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}
