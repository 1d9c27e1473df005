// Package google implements the calendar provider on top of the Google
// Calendar API, plus the OAuth2 pieces of the account-linking flow.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/logutil"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
)

// Client is a Google Calendar provider. Each call builds a service from the
// caller's stored token, so one Client serves every linked user.
type Client struct {
	config   *oauth2.Config
	endpoint string
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint points the client at a different API base URL, e.g. a test server.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// NewClient creates a provider using the given OAuth2 application settings.
func NewClient(config *oauth2.Config, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{config: config, logger: logutil.NoopIfNil(logger)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OAuthConfig returns the OAuth2 configuration for the web linking flow.
func OAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{calendar.CalendarScope},
		Endpoint:     google.Endpoint,
	}
}

// AuthURL returns the consent page URL carrying state.
func (c *Client) AuthURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token, encoded for storage.
func (c *Client) Exchange(ctx context.Context, code string) ([]byte, error) {
	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return EncodeToken(tok)
}

// EncodeToken serialises a token as stored credential material.
func EncodeToken(tok *oauth2.Token) ([]byte, error) {
	b, err := json.Marshal(tok)
	if err != nil {
		return nil, fmt.Errorf("failed to encode token: %w", err)
	}
	return b, nil
}

// DecodeToken is the inverse of EncodeToken.
func DecodeToken(b []byte) (*oauth2.Token, error) {
	tok := &oauth2.Token{}
	if err := json.Unmarshal(b, tok); err != nil {
		return nil, fmt.Errorf("failed to decode token: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("stored token is empty")
	}
	return tok, nil
}

func (c *Client) service(ctx context.Context, cred models.Credential) (*calendar.Service, error) {
	tok, err := DecodeToken(cred.Secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrCalendarProvider, err)
	}
	opts := []option.ClientOption{option.WithHTTPClient(c.config.Client(ctx, tok))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create calendar service: %v", models.ErrCalendarProvider, err)
	}
	return service, nil
}

// BusyIntervals queries free/busy for all calendarIDs in a single request.
// A per-calendar error in the response fails the whole query.
func (c *Client) BusyIntervals(ctx context.Context, cred models.Credential, rng models.TimeRange, calendarIDs []string) (map[string][]models.BusyInterval, error) {
	service, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}

	req := &calendar.FreeBusyRequest{
		TimeMin: rng.Start.Format(time.RFC3339),
		TimeMax: rng.End.Format(time.RFC3339),
	}
	for _, id := range calendarIDs {
		req.Items = append(req.Items, &calendar.FreeBusyRequestItem{Id: id})
	}

	c.logger.Debug("Querying free/busy", "identity", cred.Identity, "calendars", calendarIDs, "from", req.TimeMin, "to", req.TimeMax)
	resp, err := service.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%w: free/busy query failed: %v", models.ErrCalendarProvider, err)
	}

	out := make(map[string][]models.BusyInterval, len(calendarIDs))
	for _, id := range calendarIDs {
		fb, ok := resp.Calendars[id]
		if !ok {
			return nil, fmt.Errorf("%w: calendar %q missing from free/busy response", models.ErrCalendarProvider, id)
		}
		if len(fb.Errors) > 0 {
			return nil, fmt.Errorf("%w: calendar %q: %s", models.ErrCalendarProvider, id, fb.Errors[0].Reason)
		}
		for _, p := range fb.Busy {
			start, err1 := time.Parse(time.RFC3339, p.Start)
			end, err2 := time.Parse(time.RFC3339, p.End)
			if err := errors.Join(err1, err2); err != nil {
				return nil, fmt.Errorf("%w: bad busy period for %q: %v", models.ErrCalendarProvider, id, err)
			}
			loc := rng.Start.Location()
			out[id] = append(out[id], models.BusyInterval{Start: start.In(loc), End: end.In(loc)})
		}
	}
	return out, nil
}

// CreateEvent inserts draft into the primary calendar.
func (c *Client) CreateEvent(ctx context.Context, cred models.Credential, draft models.EventDraft) (models.CreatedEvent, error) {
	service, err := c.service(ctx, cred)
	if err != nil {
		return models.CreatedEvent{}, err
	}

	ev := &calendar.Event{
		Summary:     draft.Title,
		Description: draft.Description,
		Location:    draft.Location,
		Start:       eventDateTime(draft.Range.Start),
		End:         eventDateTime(draft.Range.End),
		Recurrence:  draft.Recurrence,
	}
	for _, a := range draft.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: a})
	}

	created, err := service.Events.Insert("primary", ev).Context(ctx).Do()
	if err != nil {
		return models.CreatedEvent{}, fmt.Errorf("%w: failed to create event: %v", models.ErrCalendarProvider, err)
	}
	c.logger.Info("Created Google Calendar event", "identity", cred.Identity, "eventID", created.Id, "recurring", len(draft.Recurrence) > 0)
	return models.CreatedEvent{ID: created.Id, HTMLLink: created.HtmlLink}, nil
}

// eventDateTime carries the zone name alongside the offset; Google requires
// it for recurring events.
func eventDateTime(t time.Time) *calendar.EventDateTime {
	edt := &calendar.EventDateTime{DateTime: t.Format(time.RFC3339)}
	if name := t.Location().String(); name != "Local" {
		edt.TimeZone = name
	}
	return edt
}

// UpcomingEvents lists timed events in the primary calendar over the next days.
func (c *Client) UpcomingEvents(ctx context.Context, cred models.Credential, from time.Time, days int) ([]*models.Event, error) {
	service, err := c.service(ctx, cred)
	if err != nil {
		return nil, err
	}
	tmin := from.Format(time.RFC3339)
	tmax := from.AddDate(0, 0, days).Format(time.RFC3339)

	events, err := service.Events.List("primary").
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(tmin).
		TimeMax(tmax).
		OrderBy("startTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to retrieve events: %v", models.ErrCalendarProvider, err)
	}

	c.logger.Debug("Fetched upcoming events", "identity", cred.Identity, "count", len(events.Items))
	return toInternalEvents(events.Items), nil
}

// toInternalEvents converts Google Calendar events to the internal Event model.
func toInternalEvents(items []*calendar.Event) []*models.Event {
	var out []*models.Event
	for _, item := range items {
		// All-day events have a date but no date-time.
		if item.Start == nil || item.Start.DateTime == "" || item.End == nil {
			continue
		}
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			continue
		}
		end, _ := time.Parse(time.RFC3339, item.End.DateTime)

		var attendees []string
		for _, a := range item.Attendees {
			attendees = append(attendees, a.Email)
		}
		var organizer string
		if item.Organizer != nil {
			organizer = item.Organizer.Email
		}

		out = append(out, &models.Event{
			ID:          item.Id,
			Title:       strings.TrimSpace(item.Summary),
			Description: item.Description,
			StartTime:   start,
			EndTime:     end,
			Location:    item.Location,
			Organizer:   organizer,
			Attendees:   attendees,
			UID:         item.ICalUID,
			Source:      "google",
		})
	}
	return out
}
