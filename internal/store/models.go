package store

import (
	"strings"
	"time"

	"github.com/Rudra-Tiwari-codes/Calendar-Agent/internal/models"
)

// User is a chat user and their linked calendar credential.
type User struct {
	ID              uint   `gorm:"primaryKey"`
	DiscordID       string `gorm:"uniqueIndex;not null"`
	Timezone        string
	Email           string
	TokenCiphertext []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Reminder is the persisted form of models.Reminder.
// RemindAt is stored in UTC truncated to the second.
type Reminder struct {
	ID           string    `gorm:"primaryKey"`
	UserID       string    `gorm:"index"`
	EventID      string    `gorm:"uniqueIndex:idx_reminder_event_time;not null"`
	RemindAt     time.Time `gorm:"uniqueIndex:idx_reminder_event_time;index;not null"`
	ChannelID    string
	Message      string
	Sent         bool `gorm:"not null;default:false"`
	Retries      int  `gorm:"not null;default:0"`
	DeadLettered bool `gorm:"not null;default:false"`
	CreatedAt    time.Time
}

// EventTemplate is the persisted form of models.EventTemplate.
type EventTemplate struct {
	ID               uint   `gorm:"primaryKey"`
	UserID           string `gorm:"uniqueIndex:idx_template_owner_name;not null"`
	Name             string `gorm:"uniqueIndex:idx_template_owner_name;not null"`
	Title            string
	DurationMinutes  int
	Location         string
	Description      string
	DefaultAttendees string // comma separated
	ReminderMinutes  int
	RecurrenceRule   string
	CreatedAt        time.Time
}

// GuildSettings holds per-guild defaults.
type GuildSettings struct {
	ID               uint   `gorm:"primaryKey"`
	GuildID          string `gorm:"uniqueIndex;not null"`
	DefaultChannelID string
	DefaultTimezone  string
	UpdatedAt        time.Time
}

func reminderRow(r *models.Reminder) Reminder {
	return Reminder{
		ID:           r.ID,
		UserID:       r.UserID,
		EventID:      r.EventID,
		RemindAt:     r.RemindAt.UTC().Truncate(time.Second),
		ChannelID:    r.ChannelID,
		Message:      r.Message,
		Sent:         r.Sent,
		Retries:      r.Retries,
		DeadLettered: r.DeadLettered,
	}
}

func (r Reminder) model() models.Reminder {
	return models.Reminder{
		ID:           r.ID,
		UserID:       r.UserID,
		EventID:      r.EventID,
		ChannelID:    r.ChannelID,
		Message:      r.Message,
		RemindAt:     r.RemindAt.UTC(),
		Sent:         r.Sent,
		Retries:      r.Retries,
		DeadLettered: r.DeadLettered,
	}
}

func templateRow(t *models.EventTemplate) EventTemplate {
	return EventTemplate{
		UserID:           t.UserID,
		Name:             t.Name,
		Title:            t.Title,
		DurationMinutes:  int(t.Duration / time.Minute),
		Location:         t.Location,
		Description:      t.Description,
		DefaultAttendees: strings.Join(t.Attendees, ","),
		ReminderMinutes:  t.ReminderMinutes,
		RecurrenceRule:   t.RecurrenceRule,
	}
}

func (t EventTemplate) model() models.EventTemplate {
	var attendees []string
	if t.DefaultAttendees != "" {
		attendees = strings.Split(t.DefaultAttendees, ",")
	}
	return models.EventTemplate{
		UserID:          t.UserID,
		Name:            t.Name,
		Title:           t.Title,
		Duration:        time.Duration(t.DurationMinutes) * time.Minute,
		Location:        t.Location,
		Description:     t.Description,
		Attendees:       attendees,
		ReminderMinutes: t.ReminderMinutes,
		RecurrenceRule:  t.RecurrenceRule,
	}
}
