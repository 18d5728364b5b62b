package domain

import (
	"fmt"
	"strings"
	"time"
)

// ReminderStatus is the lifecycle state of a reminder.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "PENDING"
	ReminderCompleted ReminderStatus = "COMPLETED"
	ReminderMissed    ReminderStatus = "MISSED"
	ReminderOmitted   ReminderStatus = "OMITTED"
)

// Valid reports whether s is a known status.
func (s ReminderStatus) Valid() bool {
	switch s {
	case ReminderPending, ReminderCompleted, ReminderMissed, ReminderOmitted:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s ReminderStatus) Terminal() bool {
	return s != ReminderPending
}

// ReminderType classifies what a reminder is about.
type ReminderType string

const (
	ReminderWater    ReminderType = "WATER"
	ReminderExercise ReminderType = "EXERCISE"
	ReminderRest     ReminderType = "REST"
	ReminderMedicine ReminderType = "MEDICINE"
	ReminderGeneral  ReminderType = "GENERAL"
)

// Valid reports whether t is a known reminder type.
func (t ReminderType) Valid() bool {
	switch t {
	case ReminderWater, ReminderExercise, ReminderRest, ReminderMedicine, ReminderGeneral:
		return true
	}
	return false
}

// Reminder is a scheduled nudge for the user.
type Reminder struct {
	ID          string
	UserID      string
	Title       string
	Description string
	DateTime    time.Time
	Status      ReminderStatus
	Type        ReminderType
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReminderPatch carries the fields to change on a reminder.
type ReminderPatch struct {
	Title       *string
	Description *string
	DateTime    *time.Time
	Status      *ReminderStatus
	Type        *ReminderType
}

// EntityID implements the repository entity contract.
func (r Reminder) EntityID() string { return r.ID }

// WithID returns a copy of r carrying id.
func (r Reminder) WithID(id string) Reminder {
	r.ID = id
	return r
}

// Apply merges the patch over r and refreshes UpdatedAt.
func (r Reminder) Apply(p ReminderPatch, now time.Time) Reminder {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.DateTime != nil {
		r.DateTime = *p.DateTime
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Type != nil {
		r.Type = *p.Type
	}
	r.UpdatedAt = now
	return r
}

// CanTransition reports whether r may move to next.
func (r Reminder) CanTransition(next ReminderStatus) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}
	if r.Status.Terminal() {
		return fmt.Errorf("%w: reminder %s is already %s", ErrInvalidTransition, r.ID, r.Status)
	}
	return nil
}

// Overdue reports whether a pending reminder's time has passed.
func (r Reminder) Overdue(now time.Time) bool {
	return r.Status == ReminderPending && r.DateTime.Before(now)
}

// Validate checks a reminder draft.
func (r Reminder) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEntity)
	}
	if r.DateTime.IsZero() {
		return fmt.Errorf("%w: date_time is required", ErrInvalidEntity)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEntity, r.Status)
	}
	if !r.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEntity, r.Type)
	}
	return nil
}
