package models

import "encoding/json"

// ReminderStatus is the lifecycle state of a reminder
type ReminderStatus string

const (
	ReminderStatusActive    ReminderStatus = "active"
	ReminderStatusPaused    ReminderStatus = "paused"
	ReminderStatusCompleted ReminderStatus = "completed"
)

// MaxContentLength bounds the free-text body of a reminder.
const MaxContentLength = 1000

// Reminder represents a scheduled reminder. All instants are unix seconds.
type Reminder struct {
	ID              int64           `json:"id" db:"id"`
	UserID          int64           `json:"user_id" db:"user_id"`
	ChatID          string          `json:"chat_id,omitempty" db:"chat_id"`
	Content         string          `json:"content" db:"content"`
	ScheduleType    string          `json:"schedule_type" db:"schedule_type"`
	ScheduleConfig  json.RawMessage `json:"schedule_config" db:"schedule_config"`
	Timezone        string          `json:"timezone" db:"timezone"`
	Status          ReminderStatus  `json:"status" db:"status"`
	NextTriggerAt   int64           `json:"next_trigger_at" db:"next_trigger_at"`
	LastTriggeredAt *int64          `json:"last_triggered_at" db:"last_triggered_at"`
	Attempts        int             `json:"attempts" db:"attempts"`
	LastError       *string         `json:"last_error" db:"last_error"`
	Version         int64           `json:"version" db:"version"`
	CreatedAt       int64           `json:"created_at" db:"created_at"`
	UpdatedAt       int64           `json:"updated_at" db:"updated_at"`
}

// IsDue returns true if the reminder should fire at the given instant.
// "Due now" is inclusive: next_trigger_at <= now.
func (r *Reminder) IsDue(now int64) bool {
	if r.Status != ReminderStatusActive {
		return false
	}
	return r.NextTriggerAt <= now
}
