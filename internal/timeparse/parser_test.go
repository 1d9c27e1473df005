package timeparse

import (
	"errors"
	"testing"
	"time"
)

// Wednesday 12 March 2025, 10:00 UTC.
var refNow = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

func fixedParser() *Parser {
	return New(func() time.Time { return refNow })
}

func utc(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func TestParseRange(t *testing.T) {
	t.Parallel()
	p := fixedParser()

	tests := []struct {
		name      string
		text      string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{"tomorrow with time", "tomorrow 3pm", utc(2025, 3, 13, 15, 0), utc(2025, 3, 13, 16, 0)},
		{"hyphen range borrows meridiem", "tomorrow 3-4pm", utc(2025, 3, 13, 15, 0), utc(2025, 3, 13, 16, 0)},
		{"to range with weekday", "friday 10am to 11:30am", utc(2025, 3, 14, 10, 0), utc(2025, 3, 14, 11, 30)},
		{"past time of day rolls to tomorrow", "9am", utc(2025, 3, 13, 9, 0), utc(2025, 3, 13, 10, 0)},
		{"same weekday later today", "wednesday 11am", utc(2025, 3, 12, 11, 0), utc(2025, 3, 12, 12, 0)},
		{"same weekday already passed", "wednesday 9am", utc(2025, 3, 19, 9, 0), utc(2025, 3, 19, 10, 0)},
		{"next weekday skips today", "next wednesday 11am", utc(2025, 3, 19, 11, 0), utc(2025, 3, 19, 12, 0)},
		{"bare weekday is next occurrence", "monday 2pm", utc(2025, 3, 17, 14, 0), utc(2025, 3, 17, 15, 0)},
		{"iso date and 24h time", "2025-04-01 14:00", utc(2025, 4, 1, 14, 0), utc(2025, 4, 1, 15, 0)},
		{"rfc3339 instant", "2025-04-01T14:00:00Z", utc(2025, 4, 1, 14, 0), utc(2025, 4, 1, 15, 0)},
		{"month name with noon", "march 20 at noon", utc(2025, 3, 20, 12, 0), utc(2025, 3, 20, 13, 0)},
		{"month day without year already passed", "jan 5 9am", utc(2026, 1, 5, 9, 0), utc(2026, 1, 5, 10, 0)},
		{"overnight range", "11pm to 1am", utc(2025, 3, 12, 23, 0), utc(2025, 3, 13, 1, 0)},
		{"left side borrows date and flips meridiem", "11-1pm tomorrow", utc(2025, 3, 13, 11, 0), utc(2025, 3, 13, 13, 0)},
		{"relative hours", "in 2 hours", utc(2025, 3, 12, 12, 0), utc(2025, 3, 12, 13, 0)},
		{"tonight makes bare hour evening", "tonight 8", utc(2025, 3, 12, 20, 0), utc(2025, 3, 12, 21, 0)},
		{"slash date", "3/20 4:30pm", utc(2025, 3, 20, 16, 30), utc(2025, 3, 20, 17, 30)},
		{"upper-case separator", "tomorrow 3pm TO 5pm", utc(2025, 3, 13, 15, 0), utc(2025, 3, 13, 17, 0)},
		{"capitalised words", "Tomorrow 3pm To 5pm", utc(2025, 3, 13, 15, 0), utc(2025, 3, 13, 17, 0)},
		{"capitalised until", "Friday 9am Until 11am", utc(2025, 3, 14, 9, 0), utc(2025, 3, 14, 11, 0)},
		{"ordinal day later this month", "the 20th at 9am", utc(2025, 3, 20, 9, 0), utc(2025, 3, 20, 10, 0)},
		{"ordinal day already passed", "the 5th at 3pm", utc(2025, 4, 5, 15, 0), utc(2025, 4, 5, 16, 0)},
		{"ordinal day today but passed", "12th 9am", utc(2025, 4, 12, 9, 0), utc(2025, 4, 12, 10, 0)},
		{"ordinal range", "the 21st 1-2pm", utc(2025, 3, 21, 13, 0), utc(2025, 3, 21, 14, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := p.ParseRange(tt.text, "UTC")
			if err != nil {
				t.Fatalf("ParseRange(%q) error: %v", tt.text, err)
			}
			if !got.Start.Equal(tt.wantStart) || !got.End.Equal(tt.wantEnd) {
				t.Errorf("ParseRange(%q) = [%s, %s], want [%s, %s]", tt.text,
					got.Start.Format(time.RFC3339), got.End.Format(time.RFC3339),
					tt.wantStart.Format(time.RFC3339), tt.wantEnd.Format(time.RFC3339))
			}
		})
	}
}

func TestParseRangeNormalizesIntoZone(t *testing.T) {
	t.Parallel()
	p := fixedParser()

	got, err := p.ParseRange("3pm", "America/New_York")
	if err != nil {
		t.Fatalf("ParseRange() error: %v", err)
	}
	if got.Start.Location().String() != "America/New_York" {
		t.Errorf("Start location = %s, want America/New_York", got.Start.Location())
	}
	if got.Start.Hour() != 15 {
		t.Errorf("Start hour = %d, want 15 local", got.Start.Hour())
	}
	// EDT is UTC-4 in mid March 2025.
	if want := utc(2025, 3, 12, 19, 0); !got.Start.Equal(want) {
		t.Errorf("Start = %s, want %s", got.Start.UTC(), want)
	}
}

func TestParseRangeErrors(t *testing.T) {
	t.Parallel()
	p := fixedParser()

	tests := []struct {
		name string
		text string
		tz   string
	}{
		{"empty", "", "UTC"},
		{"whitespace", "   \t", "UTC"},
		{"date only", "tomorrow", "UTC"},
		{"weekday only", "next friday", "UTC"},
		{"gibberish", "whenever works", "UTC"},
		{"bad right side", "tomorrow 3pm to banana", "UTC"},
		{"unknown zone", "tomorrow 3pm", "Mars/Olympus_Mons"},
		{"explicit dates inverted", "2025-04-02 10:00 to 2025-04-01 10:00", "UTC"},
		{"ordinal without time", "the 5th", "UTC"},
		{"ordinal out of range", "the 32nd at 3pm", "UTC"},
		{"ordinal beside another date", "tomorrow the 20th at 3pm", "UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := p.ParseRange(tt.text, tt.tz)
			if !errors.Is(err, ErrUnparsableTime) {
				t.Errorf("ParseRange(%q) error = %v, want ErrUnparsableTime", tt.text, err)
			}
		})
	}
}

func TestParseRangeProperties(t *testing.T) {
	t.Parallel()
	p := fixedParser()

	twoSided := []string{
		"tomorrow 9am to 10am",
		"friday 1-2pm",
		"3pm-4pm",
		"10:00 to 10:30",
		"11pm to 1am",
		"monday 9am to 5",
		"2025-06-01 8am to 2025-06-02 8am",
	}
	for _, text := range twoSided {
		r, err := p.ParseRange(text, "Europe/Berlin")
		if err != nil {
			t.Errorf("ParseRange(%q) error: %v", text, err)
			continue
		}
		if !r.Start.Before(r.End) {
			t.Errorf("ParseRange(%q): start %s not before end %s", text, r.Start, r.End)
		}
	}

	single := []string{"tomorrow noon", "thursday 4:15pm", "in 30 minutes", "dec 24 18:00", "now"}
	for _, text := range single {
		r, err := p.ParseRange(text, "Asia/Tokyo")
		if err != nil {
			t.Errorf("ParseRange(%q) error: %v", text, err)
			continue
		}
		if r.Duration() != time.Hour {
			t.Errorf("ParseRange(%q) duration = %v, want 1h", text, r.Duration())
		}
	}
}

func TestParseRangeOrdinalSkipsShortMonths(t *testing.T) {
	t.Parallel()
	// 31 March 2025, after 9am: April has no 31st, so May is next.
	p := New(func() time.Time { return time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC) })

	got, err := p.ParseRange("the 31st at 9am", "UTC")
	if err != nil {
		t.Fatalf("ParseRange() error: %v", err)
	}
	if want := utc(2025, 5, 31, 9, 0); !got.Start.Equal(want) {
		t.Errorf("Start = %s, want %s", got.Start, want)
	}
}
