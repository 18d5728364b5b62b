// Package events defines the change events emitted for committed remote writes.
package events

import "time"

// Event types.
const (
	TypeTaskChanged       = "task.changed"
	TypeReminderChanged   = "reminder.changed"
	TypeDailyStepsUpdated = "steps.daily_updated"
)

// Change describes what happened to an entity.
type Change string

const (
	ChangeCreated Change = "created"
	ChangeUpdated Change = "updated"
	ChangeDeleted Change = "deleted"
)

// TaskChanged is emitted when a task is created, updated or deleted.
type TaskChanged struct {
	TaskID         string     `json:"task_id"`
	UserID         string     `json:"user_id"`
	Change         Change     `json:"change"`
	Title          string     `json:"title,omitempty"`
	Priority       string     `json:"priority,omitempty"`
	IsCompleted    bool       `json:"is_completed"`
	CompletionDate *time.Time `json:"completion_date,omitempty"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	OccurredAt     time.Time  `json:"occurred_at"`
}

// ReminderChanged is emitted when a reminder is created, updated, transitioned or deleted.
type ReminderChanged struct {
	ReminderID string     `json:"reminder_id"`
	UserID     string     `json:"user_id"`
	Change     Change     `json:"change"`
	Status     string     `json:"status,omitempty"`
	Type       string     `json:"type,omitempty"`
	DateTime   *time.Time `json:"date_time,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// DailyStepsUpdated is emitted when a daily step total is written.
type DailyStepsUpdated struct {
	RecordID   string    `json:"record_id"`
	UserID     string    `json:"user_id"`
	Date       string    `json:"date"`
	StepCount  int       `json:"step_count"`
	OccurredAt time.Time `json:"occurred_at"`
}
