// Package freebusy answers "is this slot free?" and "when could we meet?"
// against a calendar provider's free/busy view.
package freebusy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/logutil"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
)

// PrimaryCalendar is the provider alias for the credential owner's own calendar.
const PrimaryCalendar = "primary"

// Provider is the part of a calendar backend this package needs.
// Implementations return busy intervals keyed by calendar ID for every
// requested calendar, or an error when any of them cannot be read.
type Provider interface {
	BusyIntervals(ctx context.Context, cred models.Credential, rng models.TimeRange, calendarIDs []string) (map[string][]models.BusyInterval, error)
}

// Checker detects conflicts for a candidate range.
type Checker struct {
	provider Provider
	logger   *slog.Logger
}

// NewChecker creates a Checker.
func NewChecker(p Provider, logger *slog.Logger) *Checker {
	return &Checker{provider: p, logger: logutil.NoopIfNil(logger)}
}

// BusyIntervals returns the busy intervals of the primary calendar within rng.
func (c *Checker) BusyIntervals(ctx context.Context, cred models.Credential, rng models.TimeRange) ([]models.BusyInterval, error) {
	return c.query(ctx, cred, rng, nil)
}

// HasConflict reports whether the primary calendar is busy at any point of rng.
// A provider failure is returned as an error wrapping models.ErrCalendarProvider,
// never as "no conflict".
func (c *Checker) HasConflict(ctx context.Context, cred models.Credential, rng models.TimeRange) (bool, error) {
	busy, err := c.BusyIntervals(ctx, cred, rng)
	if err != nil {
		return false, err
	}
	return len(busy) > 0, nil
}

// Conflicts returns the merged busy list across the primary calendar and the
// attendees' calendars, sorted by start.
func (c *Checker) Conflicts(ctx context.Context, cred models.Credential, rng models.TimeRange, attendees []string) ([]models.BusyInterval, error) {
	return c.query(ctx, cred, rng, attendees)
}

func (c *Checker) query(ctx context.Context, cred models.Credential, rng models.TimeRange, attendees []string) ([]models.BusyInterval, error) {
	ids := calendarIDs(attendees)
	byCal, err := c.provider.BusyIntervals(ctx, cred, rng, ids)
	if err != nil {
		c.logger.Error("Free/busy query failed", "identity", cred.Identity, "calendars", len(ids), "error", err)
		return nil, providerError(err)
	}

	var busy []models.BusyInterval
	for _, id := range ids {
		for _, b := range byCal[id] {
			if b.Overlaps(rng) {
				busy = append(busy, b)
			}
		}
	}
	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	c.logger.Debug("Free/busy query finished", "identity", cred.Identity, "busy", len(busy))
	return busy, nil
}

// calendarIDs lists the primary calendar followed by each distinct attendee.
func calendarIDs(attendees []string) []string {
	ids := []string{PrimaryCalendar}
	seen := map[string]bool{PrimaryCalendar: true}
	for _, a := range attendees {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		ids = append(ids, a)
	}
	return ids
}

func providerError(err error) error {
	if errors.Is(err, models.ErrCalendarProvider) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrCalendarProvider, err)
}
