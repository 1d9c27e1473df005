package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
)

func testClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := OAuthConfig("client-id", "client-secret", srv.URL+"/oauth/callback")
	cfg.Endpoint = oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}
	return NewClient(cfg, nil, WithEndpoint(srv.URL+"/"))
}

func testCred(t *testing.T) models.Credential {
	t.Helper()
	secret, err := EncodeToken(&oauth2.Token{AccessToken: "access", TokenType: "Bearer"})
	if err != nil {
		t.Fatalf("EncodeToken: %v", err)
	}
	return models.Credential{Identity: "alice", Secret: secret}
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestBusyIntervals(t *testing.T) {
	t.Parallel()

	var got calendar.FreeBusyRequest
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/freeBusy" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer access" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeJSON(t, w, map[string]any{
			"calendars": map[string]any{
				"primary": map[string]any{"busy": []map[string]string{
					{"start": "2025-03-12T14:00:00Z", "end": "2025-03-12T15:00:00Z"},
				}},
				"bob@example.com": map[string]any{"busy": []map[string]string{}},
			},
		})
	}))

	rng := models.TimeRange{
		Start: time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 12, 17, 0, 0, 0, time.UTC),
	}
	busy, err := c.BusyIntervals(context.Background(), testCred(t), rng, []string{"primary", "bob@example.com"})
	if err != nil {
		t.Fatalf("BusyIntervals() error: %v", err)
	}

	want := map[string][]models.BusyInterval{
		"primary": {{
			Start: time.Date(2025, 3, 12, 14, 0, 0, 0, time.UTC),
			End:   time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC),
		}},
	}
	if diff := cmp.Diff(want, busy); diff != "" {
		t.Errorf("BusyIntervals() mismatch (-want +got):\n%s", diff)
	}
	if got.TimeMin != "2025-03-12T09:00:00Z" || got.TimeMax != "2025-03-12T17:00:00Z" || len(got.Items) != 2 {
		t.Errorf("request = %+v", got)
	}
}

func TestBusyIntervalsErrors(t *testing.T) {
	t.Parallel()

	rng := models.TimeRange{
		Start: time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 12, 17, 0, 0, 0, time.UTC),
	}
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"api error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"code":400,"message":"bad request"}}`, http.StatusBadRequest)
		}},
		{"calendar error", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"calendars": map[string]any{
				"primary": map[string]any{"errors": []map[string]string{{"domain": "global", "reason": "notFound"}}},
			}})
		}},
		{"calendar missing", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"calendars": map[string]any{}})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := testClient(t, tt.handler)
			_, err := c.BusyIntervals(context.Background(), testCred(t), rng, []string{"primary"})
			if !errors.Is(err, models.ErrCalendarProvider) {
				t.Errorf("BusyIntervals() error = %v, want ErrCalendarProvider", err)
			}
		})
	}
}

func TestBadStoredToken(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.NotFoundHandler())
	_, err := c.CreateEvent(context.Background(), models.Credential{Identity: "x", Secret: []byte("{}")}, models.EventDraft{})
	if !errors.Is(err, models.ErrCalendarProvider) {
		t.Errorf("CreateEvent() error = %v, want ErrCalendarProvider", err)
	}
}

func TestCreateEvent(t *testing.T) {
	t.Parallel()

	var got calendar.Event
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calendars/primary/events" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeJSON(t, w, map[string]any{"id": "evt123", "htmlLink": "https://calendar.example/evt123"})
	}))

	loc, _ := time.LoadLocation("Europe/Berlin")
	start := time.Date(2025, 3, 14, 10, 0, 0, 0, loc)
	draft := models.EventDraft{
		Title:      "Standup",
		Location:   "Room 1",
		Range:      models.TimeRange{Start: start, End: start.Add(30 * time.Minute)},
		Attendees:  []string{"bob@example.com"},
		Recurrence: []string{"RRULE:FREQ=WEEKLY;INTERVAL=1;COUNT=4"},
	}
	created, err := c.CreateEvent(context.Background(), testCred(t), draft)
	if err != nil {
		t.Fatalf("CreateEvent() error: %v", err)
	}
	if diff := cmp.Diff(models.CreatedEvent{ID: "evt123", HTMLLink: "https://calendar.example/evt123"}, created); diff != "" {
		t.Errorf("CreateEvent() mismatch (-want +got):\n%s", diff)
	}

	if got.Summary != "Standup" || got.Location != "Room 1" {
		t.Errorf("event body = %+v", got)
	}
	if got.Start == nil || got.Start.DateTime != "2025-03-14T10:00:00+01:00" || got.Start.TimeZone != "Europe/Berlin" {
		t.Errorf("start = %+v", got.Start)
	}
	if diff := cmp.Diff(draft.Recurrence, got.Recurrence); diff != "" {
		t.Errorf("recurrence mismatch (-want +got):\n%s", diff)
	}
	if len(got.Attendees) != 1 || got.Attendees[0].Email != "bob@example.com" {
		t.Errorf("attendees = %+v", got.Attendees)
	}
}

func TestUpcomingEvents(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("singleEvents") != "true" || q.Get("orderBy") != "startTime" {
			t.Errorf("query = %v", q)
		}
		writeJSON(t, w, map[string]any{"items": []map[string]any{
			{"id": "a", "summary": " Review ", "start": map[string]string{"dateTime": "2025-03-12T14:00:00Z"}, "end": map[string]string{"dateTime": "2025-03-12T15:00:00Z"}, "organizer": map[string]string{"email": "o@example.com"}},
			{"id": "b", "summary": "Holiday", "start": map[string]string{"date": "2025-03-13"}, "end": map[string]string{"date": "2025-03-14"}},
		}})
	}))

	events, err := c.UpcomingEvents(context.Background(), testCred(t), time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), 7)
	if err != nil {
		t.Fatalf("UpcomingEvents() error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1 (all-day skipped)", len(events))
	}
	if e := events[0]; e.ID != "a" || e.Title != "Review" || e.Organizer != "o@example.com" || e.Source != "google" {
		t.Errorf("event = %+v", e)
	}
}

func TestAuthURLAndExchange(t *testing.T) {
	t.Parallel()

	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/token" {
			http.NotFound(w, r)
			return
		}
		_ = r.ParseForm()
		if r.PostForm.Get("code") != "the-code" {
			t.Errorf("code = %q", r.PostForm.Get("code"))
		}
		writeJSON(t, w, map[string]any{"access_token": "new-access", "token_type": "Bearer", "refresh_token": "refresh", "expires_in": 3600})
	}))

	u := c.AuthURL("state-123")
	if want := "state=state-123"; !strings.Contains(u, want) {
		t.Errorf("AuthURL() = %q, want it to carry %q", u, want)
	}

	secret, err := c.Exchange(context.Background(), "the-code")
	if err != nil {
		t.Fatalf("Exchange() error: %v", err)
	}
	tok, err := DecodeToken(secret)
	if err != nil {
		t.Fatalf("DecodeToken() error: %v", err)
	}
	if tok.AccessToken != "new-access" || tok.RefreshToken != "refresh" {
		t.Errorf("token = %+v", tok)
	}
}
