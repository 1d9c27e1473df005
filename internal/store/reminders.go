package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
)

// CreateReminder inserts r. A second reminder for the same event and instant returns ErrDuplicate.
func (s *Store) CreateReminder(ctx context.Context, r *models.Reminder) error {
	if r.ID == "" || r.EventID == "" {
		return fmt.Errorf("reminder id and event id are required")
	}
	row := reminderRow(r)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return translate(err)
	}
	r.RemindAt = row.RemindAt
	return nil
}

// GetReminder returns the reminder with id.
func (s *Store) GetReminder(ctx context.Context, id string) (*models.Reminder, error) {
	var row Reminder
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	m := row.model()
	return &m, nil
}

// DueReminders returns unsent, live reminders due at or before now, oldest first.
func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]models.Reminder, error) {
	var rows []Reminder
	err := s.db.WithContext(ctx).
		Where("sent = ? AND dead_lettered = ? AND remind_at <= ?", false, false, now.UTC()).
		Order("remind_at").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	out := make([]models.Reminder, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// PendingReminders lists a user's reminders that have not been delivered yet.
func (s *Store) PendingReminders(ctx context.Context, userID string) ([]models.Reminder, error) {
	var rows []Reminder
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND sent = ? AND dead_lettered = ?", userID, false, false).
		Order("remind_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.Reminder, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// MarkSent sets sent on a reminder that is still unsent. Marking an already
// sent reminder is a no-op.
func (s *Store) MarkSent(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Model(&Reminder{}).
		Where("id = ? AND sent = ?", id, false).
		Update("sent", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return s.exists(ctx, id)
	}
	return nil
}

// RecordFailure increments the retry counter and, when deadLetter is set, retires the reminder.
func (s *Store) RecordFailure(ctx context.Context, id string, deadLetter bool) error {
	updates := map[string]any{"retries": gorm.Expr("retries + 1")}
	if deadLetter {
		updates["dead_lettered"] = true
	}
	res := s.db.WithContext(ctx).Model(&Reminder{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteReminder removes a reminder.
func (s *Store) DeleteReminder(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&Reminder{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) exists(ctx context.Context, id string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&Reminder{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
