package models

import "time"

// Reminder is a persisted notification due at RemindAt.
// (EventID, RemindAt) is unique. Sent is terminal; DeadLettered marks a reminder
// that exhausted its retries and will not be picked up again.
type Reminder struct {
	ID           string
	UserID       string
	EventID      string
	ChannelID    string
	Message      string
	RemindAt     time.Time
	Sent         bool
	Retries      int
	DeadLettered bool
}

// EventTemplate is a named, reusable event shape owned by one user.
type EventTemplate struct {
	UserID          string
	Name            string
	Title           string
	Duration        time.Duration
	Location        string
	Description     string
	Attendees       []string
	ReminderMinutes int
	RecurrenceRule  string
}
