package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	rfc3339Re   = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}t\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:z|[+-]\d{2}:\d{2})`)
	relativeRe  = regexp.MustCompile(`\bin\s+(\d+|an?|one)\s+(minutes?|mins?|hours?|hrs?|days?|weeks?)\b`)
	isoDateRe   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`)
	monthDayRe  = regexp.MustCompile(`\b(` + monthAlt + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`)
	dayMonthRe  = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthAlt + `)\b\.?(?:,?\s+(\d{4})\b)?`)
	dayWordRe   = regexp.MustCompile(`\b(day after tomorrow|today|tonight|tomorrow|tmrw|tmr|now)\b`)
	weekdayRe   = regexp.MustCompile(`\b(?:(next|this|on)\s+)?(` + weekdayAlt + `)\b`)
	time12Re    = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\b\.?`)
	time24Re    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
	noonRe      = regexp.MustCompile(`\b(noon|midday|midnight)\b`)
	bareHourRe  = regexp.MustCompile(`\b(\d{1,2})\b`)
	ordinalRe   = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)\b`)
	toRe        = regexp.MustCompile(`(?i)\s+(?:to|until|till)\s+`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

const (
	monthAlt   = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`
	weekdayAlt = `mon(?:day)?|tue(?:s(?:day)?)?|wed(?:nesday)?|thu(?:r(?:s(?:day)?)?)?|fri(?:day)?|sat(?:urday)?|sun(?:day)?`
)

// fillers may surround a time expression without changing its meaning.
var fillers = map[string]bool{"at": true, "on": true, "from": true, "the": true, "of": true, "by": true, "around": true, "@": true}

// clause holds the components recognised in one side of a range expression.
// Date components stay unresolved until the time of day is known, so that
// "monday 3pm" on a Monday at 2pm can still mean today.
type clause struct {
	year, month, day int // day > 0 when a calendar date was given; year 0 = unspecified
	// month 0 with day > 0: "the 5th", the next month that has that day.

	weekday    time.Weekday
	hasWeekday bool
	strictNext bool // "next monday": never today

	dayOffset int
	hasOffset bool
	evening   bool // "tonight": bare hours are pm

	hour, minute int
	hasTime      bool
	meridiem     byte // 'a', 'p' or 0

	instant    time.Time
	hasInstant bool

	components int
	bareHour   bool // the time of day was a lone number
	ordinal    bool // the date was a lone ordinal ("5th")
	leftover   string
}

func (c *clause) hasDate() bool {
	return c.day > 0 || c.hasWeekday || c.hasOffset || c.hasInstant
}

func (c *clause) copyDate(from *clause) {
	c.year, c.month, c.day = from.year, from.month, from.day
	c.weekday, c.hasWeekday, c.strictNext = from.weekday, from.hasWeekday, from.strictNext
	c.dayOffset, c.hasOffset, c.evening = from.dayOffset, from.hasOffset, from.evening
	if from.hasInstant && !c.hasInstant {
		c.instant, c.hasInstant = from.instant, true
	}
}

// hour24 returns the clause's hour on a 24h clock.
func (c *clause) hour24() int {
	h := c.hour
	switch c.meridiem {
	case 'a':
		if h == 12 {
			h = 0
		}
	case 'p':
		if h < 12 {
			h += 12
		}
	default:
		if c.evening && h >= 1 && h < 12 {
			h += 12
		}
	}
	return h
}

func (c *clause) minuteOfDay() int {
	return c.hour24()*60 + c.minute
}

// consume applies fn to the first match of re in s and blanks the match out.
// fn may reject the match; a rejected match is left in place.
func consume(s string, re *regexp.Regexp, fn func(m []string, after string) bool) string {
	loc := re.FindStringSubmatchIndex(s)
	if loc == nil {
		return s
	}
	m := make([]string, len(loc)/2)
	for i := range m {
		if loc[2*i] >= 0 {
			m[i] = s[loc[2*i]:loc[2*i+1]]
		}
	}
	if !fn(m, s[loc[1]:]) {
		return s
	}
	return s[:loc[0]] + " " + s[loc[1]:]
}

// followedByClock reports whether after starts with something that makes the
// preceding number an hour rather than a day of month.
func followedByClock(after string) bool {
	after = strings.TrimLeft(after, " ")
	return strings.HasPrefix(after, ":") || strings.HasPrefix(after, "am") || strings.HasPrefix(after, "pm") ||
		strings.HasPrefix(after, "a.m") || strings.HasPrefix(after, "p.m")
}

// parseClause recognises the components of s relative to now in loc.
// It never resolves the final instant; see resolve.
func parseClause(s string, now time.Time, loc *time.Location) clause {
	var c clause
	s = " " + strings.ToLower(strings.TrimSpace(s)) + " "
	s = strings.ReplaceAll(s, ",", " ")

	s = consume(s, rfc3339Re, func(m []string, _ string) bool {
		v := strings.ToUpper(m[0])
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04Z07:00"} {
			if t, err := time.Parse(layout, v); err == nil {
				c.instant, c.hasInstant = t.In(loc), true
				c.components++
				return true
			}
		}
		return false
	})

	s = consume(s, relativeRe, func(m []string, _ string) bool {
		n := 1
		if v, err := strconv.Atoi(m[1]); err == nil {
			n = v
		}
		var d time.Duration
		switch {
		case strings.HasPrefix(m[2], "min"):
			d = time.Duration(n) * time.Minute
		case strings.HasPrefix(m[2], "h"):
			d = time.Duration(n) * time.Hour
		case strings.HasPrefix(m[2], "day"):
			c.instant = now.In(loc).AddDate(0, 0, n)
		case strings.HasPrefix(m[2], "week"):
			c.instant = now.In(loc).AddDate(0, 0, 7*n)
		}
		if d > 0 {
			c.instant = now.In(loc).Add(d)
		}
		c.hasInstant = true
		c.components++
		return true
	})

	s = consume(s, isoDateRe, func(m []string, _ string) bool {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if !validDate(y, mo, d) {
			return false
		}
		c.year, c.month, c.day = y, mo, d
		c.components++
		return true
	})

	s = consume(s, slashDateRe, func(m []string, _ string) bool {
		mo, _ := strconv.Atoi(m[1])
		d, _ := strconv.Atoi(m[2])
		y := 0
		if m[3] != "" {
			y, _ = strconv.Atoi(m[3])
			if y < 100 {
				y += 2000
			}
		}
		if !validDate(y, mo, d) {
			return false
		}
		c.year, c.month, c.day = y, mo, d
		c.components++
		return true
	})

	if c.day == 0 {
		s = consume(s, monthDayRe, func(m []string, after string) bool {
			if m[3] == "" && followedByClock(after) {
				return false
			}
			return c.setMonthDay(m[1], m[2], m[3])
		})
	}
	if c.day == 0 {
		s = consume(s, dayMonthRe, func(m []string, _ string) bool {
			return c.setMonthDay(m[2], m[1], m[3])
		})
	}

	s = consume(s, dayWordRe, func(m []string, _ string) bool {
		switch m[1] {
		case "now":
			c.instant, c.hasInstant = now.In(loc), true
		case "today":
			c.dayOffset, c.hasOffset = 0, true
		case "tonight":
			c.dayOffset, c.hasOffset, c.evening = 0, true, true
		case "tomorrow", "tmrw", "tmr":
			c.dayOffset, c.hasOffset = 1, true
		case "day after tomorrow":
			c.dayOffset, c.hasOffset = 2, true
		}
		c.components++
		return true
	})

	s = consume(s, weekdayRe, func(m []string, _ string) bool {
		wd, ok := parseWeekday(m[2])
		if !ok {
			return false
		}
		c.weekday, c.hasWeekday = wd, true
		c.strictNext = m[1] == "next"
		c.components++
		return true
	})

	if !c.hasDate() {
		s = consume(s, ordinalRe, func(m []string, _ string) bool {
			d, _ := strconv.Atoi(m[1])
			if d < 1 || d > 31 {
				return false
			}
			c.day, c.ordinal = d, true
			c.components++
			return true
		})
	}

	s = consume(s, time12Re, func(m []string, _ string) bool {
		h, _ := strconv.Atoi(m[1])
		mi := 0
		if m[2] != "" {
			mi, _ = strconv.Atoi(m[2])
		}
		if h < 1 || h > 12 || mi > 59 {
			return false
		}
		c.hour, c.minute, c.meridiem, c.hasTime = h, mi, m[3][0], true
		c.components++
		return true
	})

	if !c.hasTime {
		s = consume(s, time24Re, func(m []string, _ string) bool {
			h, _ := strconv.Atoi(m[1])
			mi, _ := strconv.Atoi(m[2])
			if h > 23 || mi > 59 {
				return false
			}
			c.hour, c.minute, c.hasTime = h, mi, true
			c.components++
			return true
		})
	}

	if !c.hasTime {
		s = consume(s, noonRe, func(m []string, _ string) bool {
			if m[1] == "midnight" {
				c.hour = 0
			} else {
				c.hour = 12
			}
			c.minute, c.meridiem, c.hasTime = 0, 0, true
			c.evening = false
			c.components++
			return true
		})
	}

	if !c.hasTime {
		s = consume(s, bareHourRe, func(m []string, _ string) bool {
			h, _ := strconv.Atoi(m[1])
			if h > 23 {
				return false
			}
			c.hour, c.minute, c.hasTime, c.bareHour = h, 0, true, true
			c.components++
			return true
		})
	}

	c.leftover = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	return c
}

func (c *clause) setMonthDay(month, day, year string) bool {
	mo, ok := parseMonth(month)
	if !ok {
		return false
	}
	d, _ := strconv.Atoi(day)
	y := 0
	if year != "" {
		y, _ = strconv.Atoi(year)
	}
	if !validDate(y, mo, d) {
		return false
	}
	c.year, c.month, c.day = y, mo, d
	c.components++
	return true
}

// onlyWeakToken reports whether a lone number or ordinal was all that was
// recognised. Such a clause is too weak to count as a time expression in prose.
func (c *clause) onlyWeakToken() bool {
	return c.components == 1 && (c.bareHour || c.ordinal)
}

// fullyConsumed reports whether nothing but filler words remained after parsing.
func (c *clause) fullyConsumed() bool {
	if c.components == 0 {
		return false
	}
	for _, w := range strings.Fields(c.leftover) {
		w = strings.Trim(w, ".!?;:")
		if w != "" && !fillers[w] {
			return false
		}
	}
	return true
}

func validDate(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return false
	}
	if y == 0 {
		y = 2000 // leap year, so Feb 29 is accepted until a year is chosen
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return t.Day() == d
}

func parseMonth(s string) (int, bool) {
	if len(s) < 3 {
		return 0, false
	}
	switch s[:3] {
	case "jan":
		return 1, true
	case "feb":
		return 2, true
	case "mar":
		return 3, true
	case "apr":
		return 4, true
	case "may":
		return 5, true
	case "jun":
		return 6, true
	case "jul":
		return 7, true
	case "aug":
		return 8, true
	case "sep":
		return 9, true
	case "oct":
		return 10, true
	case "nov":
		return 11, true
	case "dec":
		return 12, true
	}
	return 0, false
}

func parseWeekday(s string) (time.Weekday, bool) {
	if len(s) < 3 {
		return 0, false
	}
	switch s[:3] {
	case "sun":
		return time.Sunday, true
	case "mon":
		return time.Monday, true
	case "tue":
		return time.Tuesday, true
	case "wed":
		return time.Wednesday, true
	case "thu":
		return time.Thursday, true
	case "fri":
		return time.Friday, true
	case "sat":
		return time.Saturday, true
	}
	return 0, false
}

// splitRange splits s on the first range separator. A hyphen inside an ISO
// date or timestamp, or between two letters ("follow-up"), is not a separator.
func splitRange(s string) (left, right string, ok bool) {
	if loc := toRe.FindStringIndex(s); loc != nil {
		return s[:loc[0]], s[loc[1]:], true
	}

	lower := strings.ToLower(s)
	masked := []byte(lower)
	for _, re := range []*regexp.Regexp{rfc3339Re, isoDateRe} {
		for _, span := range re.FindAllStringIndex(lower, -1) {
			for i := span[0]; i < span[1]; i++ {
				masked[i] = 'x'
			}
		}
	}

	for i := 0; i < len(masked); i++ {
		if masked[i] != '-' {
			continue
		}
		if i > 0 && i < len(masked)-1 && isLetter(masked[i-1]) && isLetter(masked[i+1]) {
			continue
		}
		return s[:i], s[i+1:], true
	}

	// en dash
	if i := strings.Index(s, "–"); i >= 0 {
		return s[:i], s[i+len("–"):], true
	}
	return "", "", false
}

func isLetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
