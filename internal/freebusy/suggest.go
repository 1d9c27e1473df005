package freebusy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/clock"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/logutil"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
)

// ErrInvalidRequest is returned for suggestion requests that cannot describe any slot.
var ErrInvalidRequest = errors.New("invalid suggestion request")

const (
	// DefaultStep is the spacing of candidate start times.
	DefaultStep = 30 * time.Minute
	// DefaultLimit caps the number of suggestions returned.
	DefaultLimit = 10
)

// Request describes the slots to search for.
type Request struct {
	Duration      time.Duration
	DaysAhead     int
	WorkStartHour int
	WorkEndHour   int // exclusive; 24 means midnight
	Attendees     []string
	Location      *time.Location // nil means UTC
	Step          time.Duration  // 0 means DefaultStep
	Limit         int            // 0 means DefaultLimit
}

func (r *Request) normalize() error {
	switch {
	case r.Duration <= 0:
		return fmt.Errorf("%w: duration must be positive", ErrInvalidRequest)
	case r.DaysAhead < 1:
		return fmt.Errorf("%w: days ahead must be at least 1", ErrInvalidRequest)
	case r.WorkStartHour < 0 || r.WorkEndHour > 24 || r.WorkStartHour >= r.WorkEndHour:
		return fmt.Errorf("%w: working hours [%d, %d) are not a valid window", ErrInvalidRequest, r.WorkStartHour, r.WorkEndHour)
	case r.Step < 0 || r.Limit < 0:
		return fmt.Errorf("%w: step and limit must not be negative", ErrInvalidRequest)
	}
	if r.Location == nil {
		r.Location = time.UTC
	}
	if r.Step == 0 {
		r.Step = DefaultStep
	}
	if r.Limit == 0 {
		r.Limit = DefaultLimit
	}
	return nil
}

// Suggester searches the coming days for free slots inside working hours.
type Suggester struct {
	checker *Checker
	now     clock.NowFunc
	logger  *slog.Logger
}

// NewSuggester creates a Suggester. A nil now uses the system clock.
func NewSuggester(p Provider, now clock.NowFunc, logger *slog.Logger) *Suggester {
	logger = logutil.NoopIfNil(logger)
	return &Suggester{checker: NewChecker(p, logger), now: clock.OrSystem(now), logger: logger}
}

// Suggest returns free slots in increasing start order, earliest ranked 1.
//
// Candidate starts lie on a grid of req.Step anchored at each day's working
// start, beginning no earlier than now. A candidate must end by the working
// end of its day and must not overlap any busy interval of the primary or
// attendee calendars. The provider is queried once per day that can still
// hold a slot. An empty result is not an error.
func (s *Suggester) Suggest(ctx context.Context, cred models.Credential, req Request) ([]models.SuggestionCandidate, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	now := s.now().In(req.Location)

	var out []models.SuggestionCandidate
	for day := 0; day < req.DaysAhead; day++ {
		y, m, d := now.AddDate(0, 0, day).Date()
		workStart := time.Date(y, m, d, req.WorkStartHour, 0, 0, 0, req.Location)
		workEnd := time.Date(y, m, d, req.WorkEndHour, 0, 0, 0, req.Location)

		first := workStart
		if now.After(first) {
			steps := (now.Sub(workStart) + req.Step - 1) / req.Step
			first = workStart.Add(steps * req.Step)
		}
		if first.Add(req.Duration).After(workEnd) {
			continue
		}

		window := models.TimeRange{Start: first, End: workEnd}
		busy, err := s.checker.Conflicts(ctx, cred, window, req.Attendees)
		if err != nil {
			return nil, err
		}

		for start := first; !start.Add(req.Duration).After(workEnd); start = start.Add(req.Step) {
			slot := models.TimeRange{Start: start, End: start.Add(req.Duration)}
			if overlapsAny(busy, slot) {
				continue
			}
			out = append(out, models.SuggestionCandidate{Start: slot.Start, End: slot.End, Rank: len(out) + 1})
			if len(out) == req.Limit {
				return out, nil
			}
		}
	}

	s.logger.Debug("Suggested meeting times", "identity", cred.Identity, "count", len(out))
	return out, nil
}

func overlapsAny(busy []models.BusyInterval, slot models.TimeRange) bool {
	for _, b := range busy {
		if b.Overlaps(slot) {
			return true
		}
	}
	return false
}
