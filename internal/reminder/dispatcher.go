// Package reminder delivers persisted reminders when they fall due.
package reminder

import (
	"context"
	"log/slog"
	"time"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/clock"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/logutil"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
)

const (
	// DefaultInterval is the time between dispatcher ticks.
	DefaultInterval = 60 * time.Second
	// DefaultMaxRetries is the number of failed deliveries after which a
	// reminder is dead-lettered.
	DefaultMaxRetries = 5
)

// Repository is the persistence the dispatcher needs.
type Repository interface {
	// DueReminders returns unsent, live reminders with RemindAt <= now.
	DueReminders(ctx context.Context, now time.Time) ([]models.Reminder, error)
	// MarkSent flips sent to true if it is still false.
	MarkSent(ctx context.Context, id string) error
	// RecordFailure increments the retry counter and optionally dead-letters the row.
	RecordFailure(ctx context.Context, id string, deadLetter bool) error
}

// Notifier delivers a reminder to its destination.
type Notifier interface {
	Notify(ctx context.Context, r models.Reminder) error
}

// Config tunes a Dispatcher.
type Config struct {
	Interval time.Duration
	// MaxRetries dead-letters a reminder once its retry count reaches this
	// value. 0 disables the ceiling.
	MaxRetries int
	// DryRun logs due reminders without delivering or updating them.
	DryRun bool
}

// TickReport summarises one tick.
type TickReport struct {
	Due          int
	Sent         int
	Failed       int
	DeadLettered int
}

// Dispatcher polls for due reminders and delivers them.
type Dispatcher struct {
	repo     Repository
	notifier Notifier
	cfg      Config
	now      clock.NowFunc
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil now uses the system clock.
func NewDispatcher(repo Repository, notifier Notifier, cfg Config, now clock.NowFunc, logger *slog.Logger) *Dispatcher {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Dispatcher{
		repo:     repo,
		notifier: notifier,
		cfg:      cfg,
		now:      clock.OrSystem(now),
		logger:   logutil.NoopIfNil(logger),
	}
}

// Tick processes every reminder that is due now. Each reminder is handled
// independently; a failure is recorded and never stops the rest of the tick.
func (d *Dispatcher) Tick(ctx context.Context) TickReport {
	var report TickReport

	due, err := d.repo.DueReminders(ctx, d.now())
	if err != nil {
		d.logger.Error("Failed to load due reminders", "error", err)
		return report
	}
	report.Due = len(due)
	if len(due) > 0 {
		d.logger.Info("Found due reminders.", "count", len(due))
	}

	for _, r := range due {
		if ctx.Err() != nil {
			break
		}
		if d.cfg.DryRun {
			d.logger.Info("[DRY RUN] Would deliver reminder", "reminderID", r.ID, "eventID", r.EventID, "remindAt", r.RemindAt)
			continue
		}
		d.dispatch(ctx, r, &report)
	}
	return report
}

func (d *Dispatcher) dispatch(ctx context.Context, r models.Reminder, report *TickReport) {
	if err := d.notifier.Notify(ctx, r); err != nil {
		report.Failed++
		deadLetter := d.cfg.MaxRetries > 0 && r.Retries+1 >= d.cfg.MaxRetries
		if deadLetter {
			report.DeadLettered++
		}
		d.logger.Warn("Reminder delivery failed", "reminderID", r.ID, "retries", r.Retries+1, "deadLettered", deadLetter, "error", err)
		if err := d.repo.RecordFailure(ctx, r.ID, deadLetter); err != nil {
			d.logger.Error("Failed to record reminder failure", "reminderID", r.ID, "error", err)
		}
		return
	}

	// Delivered. If marking fails the reminder is delivered again next tick.
	if err := d.repo.MarkSent(ctx, r.ID); err != nil {
		d.logger.Error("Failed to mark reminder sent", "reminderID", r.ID, "error", err)
		return
	}
	report.Sent++
	d.logger.Debug("Reminder delivered", "reminderID", r.ID, "userID", r.UserID)
}

// Run ticks immediately and then every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Starting reminder dispatcher.", "interval", d.cfg.Interval, "maxRetries", d.cfg.MaxRetries)
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		d.Tick(ctx)
		select {
		case <-ctx.Done():
			d.logger.Info("Reminder dispatcher stopped.")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
