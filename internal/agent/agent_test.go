package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/cache/memory"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/freebusy"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/ratelimit"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/recurrence"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/reminder"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/store"
	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/timeparse"
)

// Wednesday 12 March 2025, 10:00 UTC.
var testNow = time.Date(2025, 3, 12, 10, 0, 0, 0, time.UTC)

type fakeProvider struct {
	mu       sync.Mutex
	busy     []models.BusyInterval
	err      error
	created  []models.EventDraft
	freeBusy int
	upcoming time.Time
}

func (f *fakeProvider) BusyIntervals(_ context.Context, _ models.Credential, _ models.TimeRange, ids []string) (map[string][]models.BusyInterval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.freeBusy++
	if f.err != nil {
		return nil, f.err
	}
	out := map[string][]models.BusyInterval{}
	for _, id := range ids {
		if id == freebusy.PrimaryCalendar {
			out[id] = f.busy
		}
	}
	return out, nil
}

func (f *fakeProvider) CreateEvent(_ context.Context, _ models.Credential, d models.EventDraft) (models.CreatedEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, d)
	return models.CreatedEvent{ID: "evt-1", HTMLLink: "https://calendar.example/evt-1"}, nil
}

func (f *fakeProvider) UpcomingEvents(_ context.Context, _ models.Credential, from time.Time, _ int) ([]*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upcoming = from
	return []*models.Event{{ID: "evt-1", Title: "Standup"}}, nil
}

type fakeCreds map[string][]byte

func (c fakeCreds) GetCredential(_ context.Context, identity string) ([]byte, bool, error) {
	b, ok := c[identity]
	return b, ok, nil
}

type fakeUsers struct {
	mu     sync.Mutex
	tz     map[string]string
	emails map[string]string
}

func (u *fakeUsers) Timezone(_ context.Context, id string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	tz, ok := u.tz[id]
	if !ok {
		return "", store.ErrNotFound
	}
	return tz, nil
}

func (u *fakeUsers) SetTimezone(_ context.Context, id, tz string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tz[id] = tz
	return nil
}

func (u *fakeUsers) Email(_ context.Context, id string) (string, error) {
	e, ok := u.emails[id]
	if !ok {
		return "", store.ErrNotFound
	}
	return e, nil
}

type fakeReminders struct {
	mu   sync.Mutex
	rows []models.Reminder
}

func (f *fakeReminders) CreateReminder(_ context.Context, r *models.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, *r)
	return nil
}

type fixture struct {
	agent     *Agent
	provider  *fakeProvider
	users     *fakeUsers
	reminders *fakeReminders
}

func newFixture(t *testing.T, quota int64) *fixture {
	t.Helper()
	now := func() time.Time { return testNow }
	counters := memory.New(time.Minute, time.Minute, memory.WithClock(now))
	t.Cleanup(func() { _ = counters.Close() })

	f := &fixture{
		provider:  &fakeProvider{},
		users:     &fakeUsers{tz: map[string]string{"alice": "Europe/Berlin"}, emails: map[string]string{"bob": "bob@example.com"}},
		reminders: &fakeReminders{},
	}
	f.agent = New(Config{
		Provider:  f.provider,
		Creds:     fakeCreds{"alice": []byte("token")},
		Users:     f.users,
		Limiter:   ratelimit.New(counters, ratelimit.Config{Requests: quota, Window: time.Minute}, nil),
		Parser:    timeparse.New(now),
		Scheduler: reminder.NewScheduler(f.reminders),
		Now:       now,
	}, nil)
	return f
}

func TestAddEvent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10)

	res, err := f.agent.AddEvent(context.Background(), "alice", "Lunch with @bob tomorrow at noon", AddOptions{RemindMinutes: 10, ChannelID: "chan"})
	if err != nil {
		t.Fatalf("AddEvent() error: %v", err)
	}

	berlin, _ := time.LoadLocation("Europe/Berlin")
	start := time.Date(2025, 3, 13, 12, 0, 0, 0, berlin)
	want := models.EventDraft{
		Title:     "Lunch with",
		Range:     models.TimeRange{Start: start, End: start.Add(time.Hour)},
		Attendees: []string{"bob@example.com"},
	}
	if diff := cmp.Diff([]models.EventDraft{want}, f.provider.created); diff != "" {
		t.Errorf("created drafts mismatch (-want +got):\n%s", diff)
	}
	if res.Event.ID != "evt-1" {
		t.Errorf("Event.ID = %q, want evt-1", res.Event.ID)
	}
	if res.Reminder == nil {
		t.Fatal("no reminder scheduled")
	}
	if wantAt := time.Date(2025, 3, 13, 10, 50, 0, 0, time.UTC); !res.Reminder.RemindAt.Equal(wantAt) {
		t.Errorf("RemindAt = %s, want %s", res.Reminder.RemindAt, wantAt)
	}
	if len(f.reminders.rows) != 1 || f.reminders.rows[0].EventID != "evt-1" || f.reminders.rows[0].ChannelID != "chan" {
		t.Errorf("persisted reminders = %+v", f.reminders.rows)
	}
}

func TestAddEventNotLinked(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10)

	_, err := f.agent.AddEvent(context.Background(), "mallory", "Sync tomorrow 3pm", AddOptions{})
	if !errors.Is(err, ErrNotLinked) {
		t.Errorf("AddEvent() error = %v, want ErrNotLinked", err)
	}
	if f.provider.freeBusy != 0 || len(f.provider.created) != 0 {
		t.Error("provider was called for an unlinked user")
	}
}

func TestAddEventConflict(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10)
	// Tomorrow 15:00-16:00 Berlin is 14:00-15:00 UTC.
	f.provider.busy = []models.BusyInterval{{
		Start: time.Date(2025, 3, 13, 14, 30, 0, 0, time.UTC),
		End:   time.Date(2025, 3, 13, 15, 30, 0, 0, time.UTC),
	}}

	res, err := f.agent.AddEvent(context.Background(), "alice", "Review tomorrow 3pm", AddOptions{})
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("AddEvent() error = %v, want ErrBusy", err)
	}
	if len(res.Conflicts) != 1 || len(f.provider.created) != 0 {
		t.Errorf("conflicts = %d created = %d, want 1 and 0", len(res.Conflicts), len(f.provider.created))
	}

	if _, err := f.agent.AddEvent(context.Background(), "alice", "Review tomorrow 3pm", AddOptions{Force: true}); err != nil {
		t.Fatalf("forced AddEvent() error: %v", err)
	}
	if len(f.provider.created) != 1 {
		t.Errorf("forced add created %d events, want 1", len(f.provider.created))
	}
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	ctx := context.Background()

	if _, _, err := f.agent.CheckConflicts(ctx, "alice", "banana"); !errors.Is(err, timeparse.ErrUnparsableTime) {
		t.Fatalf("CheckConflicts(bad) error = %v, want ErrUnparsableTime", err)
	}
	for i := range 2 {
		if _, _, err := f.agent.CheckConflicts(ctx, "alice", "tomorrow 3pm"); err != nil {
			t.Fatalf("call %d error: %v", i+1, err)
		}
	}
	if _, _, err := f.agent.CheckConflicts(ctx, "alice", "tomorrow 3pm"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("third call error = %v, want ErrRateLimited", err)
	}
	if f.provider.freeBusy != 2 {
		t.Errorf("provider called %d times, want 2", f.provider.freeBusy)
	}
}

func TestCreateRecurring(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10)
	ctx := context.Background()

	count := 5
	if _, err := f.agent.CreateRecurring(ctx, "alice", "1:1", "monday 10am", "weekly", 2, &count, AddOptions{}); err != nil {
		t.Fatalf("CreateRecurring() error: %v", err)
	}
	if len(f.provider.created) != 1 {
		t.Fatalf("created %d events, want 1", len(f.provider.created))
	}
	if diff := cmp.Diff([]string{"RRULE:FREQ=WEEKLY;INTERVAL=2;COUNT=5"}, f.provider.created[0].Recurrence); diff != "" {
		t.Errorf("recurrence mismatch (-want +got):\n%s", diff)
	}

	_, err := f.agent.CreateRecurring(ctx, "alice", "1:1", "monday 10am", "biweekly", 1, nil, AddOptions{})
	if !errors.Is(err, recurrence.ErrInvalidRecurrence) {
		t.Errorf("CreateRecurring(biweekly) error = %v, want ErrInvalidRecurrence", err)
	}
	if f.provider.freeBusy != 1 {
		t.Errorf("invalid recurrence reached the provider")
	}
}

func TestProviderFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10)
	f.provider.err = errors.New("boom")

	_, _, err := f.agent.CheckConflicts(context.Background(), "alice", "tomorrow 3pm")
	if !errors.Is(err, models.ErrCalendarProvider) {
		t.Errorf("CheckConflicts() error = %v, want ErrCalendarProvider", err)
	}
}

func TestSuggestTimesUsesUserZone(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10)

	got, err := f.agent.SuggestTimes(context.Background(), "alice", freebusy.Request{
		Duration: time.Hour, DaysAhead: 1, WorkStartHour: 9, WorkEndHour: 17, Limit: 1,
	})
	if err != nil {
		t.Fatalf("SuggestTimes() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(got))
	}
	// 10:00 UTC is 11:00 in Berlin, on the half-hour grid from 09:00.
	if !got[0].Start.Equal(testNow) || got[0].Start.Location().String() != "Europe/Berlin" {
		t.Errorf("first suggestion = %s, want %s in Europe/Berlin", got[0].Start, testNow)
	}
}

func TestTimezoneAndUpcoming(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 10)
	ctx := context.Background()

	if tz := f.agent.Timezone(ctx, "carol"); tz != "UTC" {
		t.Errorf("default Timezone() = %q, want UTC", tz)
	}
	if err := f.agent.SetTimezone(ctx, "carol", "Mars/Base"); err == nil {
		t.Error("SetTimezone() accepted an unknown zone")
	}
	if err := f.agent.SetTimezone(ctx, "carol", "Asia/Tokyo"); err != nil {
		t.Fatalf("SetTimezone() error: %v", err)
	}
	if tz := f.agent.Timezone(ctx, "carol"); tz != "Asia/Tokyo" {
		t.Errorf("Timezone() = %q, want Asia/Tokyo", tz)
	}

	events, err := f.agent.Upcoming(ctx, "alice", 0)
	if err != nil || len(events) != 1 {
		t.Fatalf("Upcoming() = %d, %v", len(events), err)
	}
	if !f.provider.upcoming.Equal(testNow) {
		t.Errorf("Upcoming queried from %s, want %s", f.provider.upcoming, testNow)
	}
}
