// Package recurrence builds and decodes the recurrence rules attached to
// repeating calendar events.
package recurrence

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrInvalidRecurrence is returned for unknown frequencies, bad intervals or counts.
var ErrInvalidRecurrence = errors.New("invalid recurrence")

// Frequency is the repetition unit of a rule.
type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

var frequencies = map[Frequency]rrule.Frequency{
	Daily:   rrule.DAILY,
	Weekly:  rrule.WEEKLY,
	Monthly: rrule.MONTHLY,
	Yearly:  rrule.YEARLY,
}

// ParseFrequency matches s case-insensitively against the supported frequencies.
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := frequencies[f]; !ok {
		return "", fmt.Errorf("%w: unknown frequency %q", ErrInvalidRecurrence, s)
	}
	return f, nil
}

// Descriptor is a validated recurrence rule. Count 0 means unbounded.
type Descriptor struct {
	Frequency Frequency
	Interval  int
	Count     int
}

// Build validates the parts of a rule. An interval of 0 is treated as 1;
// a nil count leaves the rule unbounded.
func Build(freq string, interval int, count *int) (Descriptor, error) {
	f, err := ParseFrequency(freq)
	if err != nil {
		return Descriptor{}, err
	}
	if interval < 0 {
		return Descriptor{}, fmt.Errorf("%w: interval %d must not be negative", ErrInvalidRecurrence, interval)
	}
	if interval == 0 {
		interval = 1
	}
	d := Descriptor{Frequency: f, Interval: interval}
	if count != nil {
		if *count < 1 {
			return Descriptor{}, fmt.Errorf("%w: count %d must be at least 1", ErrInvalidRecurrence, *count)
		}
		d.Count = *count
	}
	return d, nil
}

// String renders the provider form, e.g. FREQ=WEEKLY;INTERVAL=2;COUNT=5.
func (d Descriptor) String() string {
	var b strings.Builder
	b.WriteString("FREQ=")
	b.WriteString(string(d.Frequency))
	b.WriteString(";INTERVAL=")
	b.WriteString(strconv.Itoa(d.Interval))
	if d.Count > 0 {
		b.WriteString(";COUNT=")
		b.WriteString(strconv.Itoa(d.Count))
	}
	return b.String()
}

// RRule is the line Google Calendar expects in an event's recurrence list.
func (d Descriptor) RRule() string {
	return "RRULE:" + d.String()
}

// Option converts d into an rrule-go option anchored at dtstart.
func (d Descriptor) Option(dtstart time.Time) rrule.ROption {
	return rrule.ROption{
		Freq:     frequencies[d.Frequency],
		Interval: d.Interval,
		Count:    d.Count,
		Dtstart:  dtstart,
	}
}

// Decode parses a provider rule string, with or without the RRULE: prefix.
// Only FREQ, INTERVAL and COUNT are accepted.
func Decode(rule string) (Descriptor, error) {
	rule = strings.TrimSpace(rule)
	rule = strings.TrimPrefix(strings.TrimPrefix(rule, "RRULE:"), "rrule:")
	if rule == "" {
		return Descriptor{}, fmt.Errorf("%w: empty rule", ErrInvalidRecurrence)
	}
	for _, part := range strings.Split(rule, ";") {
		key, _, _ := strings.Cut(part, "=")
		switch strings.ToUpper(key) {
		case "FREQ", "INTERVAL", "COUNT":
		default:
			return Descriptor{}, fmt.Errorf("%w: unsupported rule part %q", ErrInvalidRecurrence, part)
		}
	}

	opt, err := rrule.StrToROption(strings.ToUpper(rule))
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	var freq Frequency
	for f, rf := range frequencies {
		if rf == opt.Freq {
			freq = f
		}
	}
	if freq == "" {
		return Descriptor{}, fmt.Errorf("%w: unsupported frequency in %q", ErrInvalidRecurrence, rule)
	}
	var count *int
	if opt.Count > 0 {
		count = &opt.Count
	}
	return Build(string(freq), opt.Interval, count)
}

// Occurrences expands up to limit start times of d beginning at start.
func Occurrences(start time.Time, d Descriptor, limit int) ([]time.Time, error) {
	if limit < 1 {
		return nil, nil
	}
	opt := d.Option(start)
	if opt.Count == 0 || opt.Count > limit {
		opt.Count = limit
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecurrence, err)
	}
	return r.All(), nil
}

var units = map[Frequency]string{Daily: "day", Weekly: "week", Monthly: "month", Yearly: "year"}

// Describe renders d for people: "every 2 weeks for 5 occurrences".
func (d Descriptor) Describe() string {
	unit := units[d.Frequency]
	var s string
	if d.Interval <= 1 {
		s = "every " + unit
	} else {
		s = fmt.Sprintf("every %d %ss", d.Interval, unit)
	}
	switch d.Count {
	case 0:
	case 1:
		s += " once"
	default:
		s += fmt.Sprintf(" for %d occurrences", d.Count)
	}
	return s
}
