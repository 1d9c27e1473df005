// Package timeparse turns free-text time expressions into absolute time ranges.
//
// Ambiguity always resolves to the nearest future interpretation: a bare
// weekday is its next occurrence, a time of day that already passed today is
// tomorrow, and a month/day without a year that already passed is next year.
// Wall-clock expressions are interpreted in the caller's time zone.
package timeparse

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/clock"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
)

// ErrUnparsableTime is returned when no date and time of day can be extracted.
var ErrUnparsableTime = errors.New("could not parse time")

// DefaultDuration is the length given to expressions without an explicit end.
const DefaultDuration = time.Hour

// Parser resolves expressions against an injectable clock.
type Parser struct {
	now clock.NowFunc
}

// New creates a Parser. A nil now uses the system clock.
func New(now clock.NowFunc) *Parser {
	return &Parser{now: clock.OrSystem(now)}
}

// ParseRange converts text into a range in the time zone tz (IANA name; empty means UTC).
// "X to Y" and "X-Y" produce a two-sided range; anything else lasts DefaultDuration.
func (p *Parser) ParseRange(text, tz string) (models.TimeRange, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return models.TimeRange{}, fmt.Errorf("%w: unknown time zone %q", ErrUnparsableTime, tz)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.TimeRange{}, fmt.Errorf("%w: empty input", ErrUnparsableTime)
	}
	now := p.now().In(loc)

	if left, right, ok := splitRange(text); ok {
		return p.parseTwoSided(text, left, right, now, loc)
	}

	c := parseClause(text, now, loc)
	start, err := resolve(&c, now, loc)
	if err != nil {
		return models.TimeRange{}, fmt.Errorf("%w: %q", err, text)
	}
	return models.TimeRange{Start: start, End: start.Add(DefaultDuration)}, nil
}

func (p *Parser) parseTwoSided(text, left, right string, now time.Time, loc *time.Location) (models.TimeRange, error) {
	lc := parseClause(left, now, loc)
	rc := parseClause(right, now, loc)
	if lc.components == 0 || rc.components == 0 {
		return models.TimeRange{}, fmt.Errorf("%w: %q", ErrUnparsableTime, text)
	}

	if !lc.hasDate() && rc.hasDate() && !rc.hasInstant {
		lc.copyDate(&rc)
	}
	reconcileMeridiem(&lc, &rc)

	start, err := resolve(&lc, now, loc)
	if err != nil {
		return models.TimeRange{}, fmt.Errorf("%w: %q", err, text)
	}

	inherited := false
	if !rc.hasDate() {
		rc.year, rc.month, rc.day = start.Year(), int(start.Month()), start.Day()
		rc.evening = lc.evening
		inherited = true
	}
	end, err := resolve(&rc, now, loc)
	if err != nil {
		return models.TimeRange{}, fmt.Errorf("%w: %q", err, text)
	}
	if inherited {
		for !end.After(start) {
			end = end.AddDate(0, 0, 1)
		}
	}

	r, err := models.NewTimeRange(start, end)
	if err != nil {
		return models.TimeRange{}, fmt.Errorf("%w: %v", ErrUnparsableTime, err)
	}
	return r, nil
}

// reconcileMeridiem lets one side borrow am/pm from the other ("3-4pm").
// When borrowing would put the start after the end, the opposite half of the day is used ("11-1pm").
func reconcileMeridiem(l, r *clause) {
	if !l.hasTime || !r.hasTime {
		return
	}
	switch {
	case l.meridiem == 0 && r.meridiem != 0 && l.hour >= 1 && l.hour <= 12:
		l.meridiem = r.meridiem
		if r.meridiem == 'p' && l.minuteOfDay() >= r.minuteOfDay() {
			l.meridiem = 'a'
		}
	case r.meridiem == 0 && l.meridiem != 0 && r.hour >= 1 && r.hour <= 12:
		r.meridiem = l.meridiem
		if l.meridiem == 'a' && r.minuteOfDay() <= l.minuteOfDay() {
			r.meridiem = 'p'
		}
	}
}

// resolve produces the absolute instant for a clause.
func resolve(c *clause, now time.Time, loc *time.Location) (time.Time, error) {
	if c.components == 0 {
		return time.Time{}, ErrUnparsableTime
	}
	if ordinalRe.MatchString(c.leftover) {
		return time.Time{}, fmt.Errorf("%w: day of month conflicts with the rest of the date", ErrUnparsableTime)
	}
	if !c.hasTime {
		if c.hasInstant {
			return c.instant.In(loc), nil
		}
		return time.Time{}, fmt.Errorf("%w: no time of day", ErrUnparsableTime)
	}

	h, m := c.hour24(), c.minute
	at := func(y int, mo time.Month, d int) time.Time {
		return time.Date(y, mo, d, h, m, 0, 0, loc)
	}

	switch {
	case c.hasInstant:
		d := c.instant.In(loc)
		return at(d.Year(), d.Month(), d.Day()), nil

	case c.day > 0 && c.month == 0:
		for i := 0; i <= 12; i++ {
			t := at(now.Year(), now.Month()+time.Month(i), c.day)
			if t.Day() == c.day && t.After(now) {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: no month has day %d", ErrUnparsableTime, c.day)

	case c.day > 0:
		if c.year != 0 {
			return at(c.year, time.Month(c.month), c.day), nil
		}
		t := at(now.Year(), time.Month(c.month), c.day)
		if !t.After(now) {
			t = at(now.Year()+1, time.Month(c.month), c.day)
		}
		return t, nil

	case c.hasOffset:
		return at(now.Year(), now.Month(), now.Day()+c.dayOffset), nil

	case c.hasWeekday:
		ahead := (int(c.weekday) - int(now.Weekday()) + 7) % 7
		if c.strictNext && ahead == 0 {
			ahead = 7
		}
		t := at(now.Year(), now.Month(), now.Day()+ahead)
		if !t.After(now) {
			t = at(now.Year(), now.Month(), now.Day()+ahead+7)
		}
		return t, nil

	default:
		t := at(now.Year(), now.Month(), now.Day())
		if !t.After(now) {
			t = at(now.Year(), now.Month(), now.Day()+1)
		}
		return t, nil
	}
}
