package recurrence

import (
	"bytes"
	"fmt"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
)

// VEvent converts a draft into an iCalendar event component carrying d as its RRULE.
// A zero Descriptor produces a one-off event.
func VEvent(uid string, draft models.EventDraft, d Descriptor) *ical.Component {
	if uid == "" {
		uid = uuid.NewString()
	}
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, draft.Title)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, draft.Range.Start)
	ve.Props.SetDateTime(ical.PropDateTimeEnd, draft.Range.End)
	if draft.Description != "" {
		ve.Props.SetText(ical.PropDescription, draft.Description)
	}
	if draft.Location != "" {
		ve.Props.SetText(ical.PropLocation, draft.Location)
	}
	for _, attendee := range draft.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.SetText("mailto:" + attendee)
		ve.Props.Add(p)
	}
	if d.Frequency != "" {
		// DTSTART is carried by its own property.
		opt := d.Option(time.Time{})
		ve.Props.SetRecurrenceRule(&opt)
	}
	return ve
}

// ICS renders a single-event calendar document for export.
func ICS(draft models.EventDraft, d Descriptor) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//calendar-agent//EN")
	cal.Children = append(cal.Children, VEvent("", draft, d))

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}
