package timeparse

import (
	"strings"
	"time"
)

// EventDetails is the shallow structure pulled out of a free-text event request.
type EventDetails struct {
	Title            string
	TimeExpression   string
	AttendeeMentions []string
}

// ExtractEventDetails splits text into a title, the longest recognisable
// time expression and any @mentions. It never fails; unrecognised input
// yields empty fields.
func ExtractEventDetails(text string) EventDetails {
	var details EventDetails

	var words []string
	for _, w := range strings.Fields(text) {
		if strings.HasPrefix(w, "@") {
			name := strings.TrimRight(strings.TrimPrefix(w, "@"), ".,;:!?")
			if name != "" {
				details.AttendeeMentions = append(details.AttendeeMentions, name)
			}
			continue
		}
		words = append(words, w)
	}

	bestStart, bestEnd, bestLen := -1, -1, 0
	for i := range words {
		if fillers[strings.ToLower(words[i])] {
			continue
		}
		for j := len(words); j > i; j-- {
			if fillers[strings.ToLower(words[j-1])] {
				continue
			}
			span := strings.Join(words[i:j], " ")
			if len(span) <= bestLen {
				break
			}
			if recognize(span) {
				bestStart, bestEnd, bestLen = i, j, len(span)
				break
			}
		}
	}

	var title []string
	if bestStart >= 0 {
		details.TimeExpression = strings.Join(words[bestStart:bestEnd], " ")
		lead := bestStart
		for lead > 0 && fillers[strings.ToLower(words[lead-1])] {
			lead--
		}
		title = append(title, words[:lead]...)
		title = append(title, words[bestEnd:]...)
	} else {
		title = words
	}
	details.Title = strings.Join(title, " ")
	return details
}

// recognize reports whether s consists entirely of date/time grammar, either
// as a single expression or as a range of two.
func recognize(s string) bool {
	// Only structure matters here, so any reference instant will do.
	ref := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	if left, right, ok := splitRange(s); ok {
		l := parseClause(left, ref, time.UTC)
		r := parseClause(right, ref, time.UTC)
		if l.fullyConsumed() && r.fullyConsumed() && !(l.onlyWeakToken() && r.onlyWeakToken()) {
			return true
		}
	}
	c := parseClause(s, ref, time.UTC)
	return c.fullyConsumed() && !c.onlyWeakToken()
}
