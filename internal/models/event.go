package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrCalendarProvider marks a failure to talk to the upstream calendar provider.
// It is distinct from a successful answer with no busy time or no slots.
var ErrCalendarProvider = errors.New("calendar provider error")

// ErrInvalidRange is returned when a range does not start strictly before it ends.
var ErrInvalidRange = errors.New("range start must be before end")

// TimeRange is an immutable [Start, End) interval. Both instants carry an explicit location.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// NewTimeRange builds a TimeRange, rejecting empty or inverted intervals.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if !start.Before(end) {
		return TimeRange{}, fmt.Errorf("%w: %s >= %s", ErrInvalidRange, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return TimeRange{Start: start, End: end}, nil
}

// Duration returns End - Start.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// In returns the range with both instants converted to loc.
func (r TimeRange) In(loc *time.Location) TimeRange {
	return TimeRange{Start: r.Start.In(loc), End: r.End.In(loc)}
}

// Overlaps reports whether the two half-open intervals share any instant.
func (r TimeRange) Overlaps(start, end time.Time) bool {
	return r.Start.Before(end) && start.Before(r.End)
}

// BusyInterval is an occupied period reported by a calendar provider.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether the busy interval intersects r.
func (b BusyInterval) Overlaps(r TimeRange) bool {
	return r.Overlaps(b.Start, b.End)
}

// SuggestionCandidate is a proposed meeting slot. Rank is 1 for the earliest slot.
type SuggestionCandidate struct {
	Start time.Time
	End   time.Time
	Rank  int
}

// Credential is decrypted credential material for one chat identity.
type Credential struct {
	Identity string
	Secret   []byte
}

// EventDraft is the provider-neutral body of an event to create.
type EventDraft struct {
	Title       string
	Description string
	Location    string
	Range       TimeRange
	Attendees   []string // email addresses
	Recurrence  []string // RRULE lines, e.g. "RRULE:FREQ=WEEKLY;INTERVAL=2"
}

// CreatedEvent is what the provider hands back after an insert.
type CreatedEvent struct {
	ID       string
	HTMLLink string
}

// Event represents a standard calendar event.
// This is an internal representation, independent of any specific calendar provider.
type Event struct {
	ID          string    // Unique identifier for the event (e.g., from the source calendar)
	Title       string    // Summary or title of the event
	Description string    // Detailed description of the event
	StartTime   time.Time // Start time of the event
	EndTime     time.Time // End time of the event
	Location    string    // Location of the event
	Organizer   string    // Organizer's email
	Attendees   []string  // List of attendee emails
	Source      string    // The source of the event (e.g., "google")
	UID         string    // The iCalendar UID
}
