// Package caldav implements the calendar provider against any CalDAV server
// (iCloud, Fastmail, Nextcloud, Radicale). Free/busy is computed from the
// events in the queried window since CalDAV has no portable free/busy query.
package caldav

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/logutil"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/recurrence"
)

// ICloudEndpoint is the iCloud CalDAV root.
const ICloudEndpoint = "https://caldav.icloud.com/"

// Secret is the credential material stored for a CalDAV account.
type Secret struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// EncodeSecret serialises s for the credential store.
func EncodeSecret(s Secret) ([]byte, error) {
	if s.Username == "" || s.Password == "" {
		return nil, errors.New("caldav username and password are required")
	}
	return json.Marshal(s)
}

func decodeSecret(b []byte) (Secret, error) {
	var s Secret
	if err := json.Unmarshal(b, &s); err != nil {
		return Secret{}, fmt.Errorf("failed to decode caldav secret: %w", err)
	}
	return s, nil
}

// basicAuthTransport adds Basic Auth and a User-Agent to each request.
type basicAuthTransport struct {
	username  string
	password  string
	transport http.RoundTripper
}

func (t *basicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.username, t.password)
	req.Header.Set("User-Agent", "calendar-agent/1.0")
	return t.transport.RoundTrip(req)
}

// Client is a CalDAV provider. The calendar ID "primary" means the first
// calendar in the user's home set; any other ID is matched against calendar
// names.
type Client struct {
	endpoint  string
	transport http.RoundTripper
	logger    *slog.Logger
}

// NewClient creates a provider for the server rooted at endpoint.
func NewClient(endpoint string, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = ICloudEndpoint
	}
	return &Client{endpoint: endpoint, transport: http.DefaultTransport, logger: logutil.NoopIfNil(logger)}
}

type session struct {
	client    *caldav.Client
	calendars []caldav.Calendar
}

func (c *Client) open(ctx context.Context, cred models.Credential) (*session, error) {
	secret, err := decodeSecret(cred.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCalendarProvider, err)
	}
	httpClient := &http.Client{Transport: &basicAuthTransport{
		username:  secret.Username,
		password:  secret.Password,
		transport: c.transport,
	}}
	client, err := caldav.NewClient(httpClient, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create caldav client: %v", models.ErrCalendarProvider, err)
	}

	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find principal path: %v", models.ErrCalendarProvider, err)
	}
	homeSet, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find calendar home set: %v", models.ErrCalendarProvider, err)
	}
	calendars, err := client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to find calendars: %v", models.ErrCalendarProvider, err)
	}
	if len(calendars) == 0 {
		return nil, fmt.Errorf("%w: account has no calendars", models.ErrCalendarProvider)
	}
	return &session{client: client, calendars: calendars}, nil
}

func (s *session) calendarPath(id string) (string, error) {
	if id == "" || id == "primary" {
		return s.calendars[0].Path, nil
	}
	for _, cal := range s.calendars {
		if cal.Name == id || cal.Path == id {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("%w: no calendar named %q", models.ErrCalendarProvider, id)
}

// calendarPaths resolves ids to calendar paths. IDs that name no calendar of
// the account, such as another person's email address, are returned in
// skipped: CalDAV gives no access to other users' free/busy.
func (s *session) calendarPaths(ids []string) (paths map[string]string, skipped []string) {
	paths = make(map[string]string, len(ids))
	for _, id := range ids {
		p, err := s.calendarPath(id)
		if err != nil {
			skipped = append(skipped, id)
			continue
		}
		paths[id] = p
	}
	return paths, skipped
}

func (s *session) events(ctx context.Context, calPath string, rng models.TimeRange) ([]caldav.CalendarObject, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{Name: ical.CompEvent, AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: rng.Start.UTC(),
				End:   rng.End.UTC(),
			}},
		},
	}
	objs, err := s.client.QueryCalendar(ctx, calPath, query)
	if err != nil {
		return nil, fmt.Errorf("%w: calendar query failed: %v", models.ErrCalendarProvider, err)
	}
	return objs, nil
}

// BusyIntervals reports the opaque events of each calendar within rng.
// Calendar IDs the account cannot resolve are logged and left out of the result.
func (c *Client) BusyIntervals(ctx context.Context, cred models.Credential, rng models.TimeRange, calendarIDs []string) (map[string][]models.BusyInterval, error) {
	s, err := c.open(ctx, cred)
	if err != nil {
		return nil, err
	}
	paths, skipped := s.calendarPaths(calendarIDs)
	if len(skipped) > 0 {
		c.logger.Warn("Skipping calendars not visible to this CalDAV account", "identity", cred.Identity, "calendars", skipped)
	}
	out := make(map[string][]models.BusyInterval, len(calendarIDs))
	for _, id := range calendarIDs {
		calPath, ok := paths[id]
		if !ok {
			continue
		}
		objs, err := s.events(ctx, calPath, rng)
		if err != nil {
			return nil, err
		}
		for _, obj := range objs {
			out[id] = append(out[id], BusyFromCalendar(obj.Data, rng)...)
		}
	}
	c.logger.Debug("Computed CalDAV busy intervals", "identity", cred.Identity, "calendars", len(calendarIDs))
	return out, nil
}

// BusyFromCalendar extracts the busy periods of cal overlapping rng. Recurring
// events are expanded; cancelled and transparent events are skipped.
func BusyFromCalendar(cal *ical.Calendar, rng models.TimeRange) []models.BusyInterval {
	if cal == nil {
		return nil
	}
	loc := rng.Start.Location()
	var out []models.BusyInterval
	for _, ev := range cal.Events() {
		if !blocksTime(ev) {
			continue
		}
		start, err := ev.DateTimeStart(loc)
		if err != nil {
			continue
		}
		end, err := ev.DateTimeEnd(loc)
		if err != nil || !end.After(start) {
			continue
		}
		dur := end.Sub(start)

		set, err := ev.RecurrenceSet(loc)
		if err != nil || set == nil {
			b := models.BusyInterval{Start: start.In(loc), End: end.In(loc)}
			if b.Overlaps(rng) {
				out = append(out, b)
			}
			continue
		}
		for _, occ := range set.Between(rng.Start.Add(-dur), rng.End, false) {
			b := models.BusyInterval{Start: occ.In(loc), End: occ.Add(dur).In(loc)}
			if b.Overlaps(rng) {
				out = append(out, b)
			}
		}
	}
	return out
}

func blocksTime(ev ical.Event) bool {
	if transp, _ := ev.Props.Text(ical.PropTransparency); strings.EqualFold(transp, "TRANSPARENT") {
		return false
	}
	if status, _ := ev.Props.Text(ical.PropStatus); strings.EqualFold(status, "CANCELLED") {
		return false
	}
	return true
}

// CreateEvent stores draft as a new object in the primary calendar. Recurrence
// lines are decoded and written as an RRULE property.
func (c *Client) CreateEvent(ctx context.Context, cred models.Credential, draft models.EventDraft) (models.CreatedEvent, error) {
	var rule recurrence.Descriptor
	if len(draft.Recurrence) > 0 {
		d, err := recurrence.Decode(draft.Recurrence[0])
		if err != nil {
			return models.CreatedEvent{}, err
		}
		rule = d
	}

	s, err := c.open(ctx, cred)
	if err != nil {
		return models.CreatedEvent{}, err
	}
	calPath, err := s.calendarPath("primary")
	if err != nil {
		return models.CreatedEvent{}, err
	}

	uid := uuid.NewString()
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//calendar-agent//EN")
	cal.Children = append(cal.Children, recurrence.VEvent(uid, draft, rule))

	objPath := path.Join(calPath, uid+".ics")
	if _, err := s.client.PutCalendarObject(ctx, objPath, cal); err != nil {
		return models.CreatedEvent{}, fmt.Errorf("%w: failed to create event on CalDAV server: %v", models.ErrCalendarProvider, err)
	}
	c.logger.Info("Created CalDAV event", "identity", cred.Identity, "path", objPath)
	return models.CreatedEvent{ID: uid, HTMLLink: strings.TrimSuffix(c.endpoint, "/") + objPath}, nil
}

// UpcomingEvents lists events in the primary calendar over the next days.
func (c *Client) UpcomingEvents(ctx context.Context, cred models.Credential, from time.Time, days int) ([]*models.Event, error) {
	s, err := c.open(ctx, cred)
	if err != nil {
		return nil, err
	}
	calPath, err := s.calendarPath("primary")
	if err != nil {
		return nil, err
	}
	rng := models.TimeRange{Start: from, End: from.AddDate(0, 0, days)}
	objs, err := s.events(ctx, calPath, rng)
	if err != nil {
		return nil, err
	}

	var out []*models.Event
	for _, obj := range objs {
		if obj.Data == nil {
			continue
		}
		for _, ev := range obj.Data.Events() {
			if e := toInternalEvent(ev, from.Location()); e != nil {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func toInternalEvent(ev ical.Event, loc *time.Location) *models.Event {
	start, err := ev.DateTimeStart(loc)
	if err != nil {
		return nil
	}
	end, _ := ev.DateTimeEnd(loc)
	e := &models.Event{StartTime: start, EndTime: end, Source: "caldav"}
	e.UID, _ = ev.Props.Text(ical.PropUID)
	e.ID = e.UID
	e.Title, _ = ev.Props.Text(ical.PropSummary)
	e.Description, _ = ev.Props.Text(ical.PropDescription)
	e.Location, _ = ev.Props.Text(ical.PropLocation)
	if p := ev.Props.Get(ical.PropOrganizer); p != nil {
		e.Organizer = strings.TrimPrefix(strings.ToLower(p.Value), "mailto:")
	}
	for _, p := range ev.Props.Values(ical.PropAttendee) {
		e.Attendees = append(e.Attendees, strings.TrimPrefix(strings.ToLower(p.Value), "mailto:"))
	}
	return e
}
