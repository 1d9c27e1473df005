package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
)

// Creator persists new reminders. Implementations reject a second reminder
// for the same (EventID, RemindAt).
type Creator interface {
	CreateReminder(ctx context.Context, r *models.Reminder) error
}

// Scheduler turns "remind me N minutes before" into persisted reminders.
type Scheduler struct {
	repo Creator
}

// NewScheduler creates a Scheduler.
func NewScheduler(repo Creator) *Scheduler {
	return &Scheduler{repo: repo}
}

// Schedule stores a reminder firing minutesBefore the event start.
func (s *Scheduler) Schedule(ctx context.Context, userID, channelID, eventID, title string, start time.Time, minutesBefore int) (*models.Reminder, error) {
	if eventID == "" {
		return nil, errors.New("event reference is required")
	}
	if minutesBefore < 0 {
		return nil, fmt.Errorf("minutes before must not be negative, got %d", minutesBefore)
	}
	r := &models.Reminder{
		ID:        uuid.NewString(),
		UserID:    userID,
		ChannelID: channelID,
		EventID:   eventID,
		Message:   fmt.Sprintf("%s starts at %s", title, start.Format("Mon Jan 2 15:04 MST")),
		RemindAt:  start.Add(-time.Duration(minutesBefore) * time.Minute).UTC().Truncate(time.Second),
	}
	if err := s.repo.CreateReminder(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}
