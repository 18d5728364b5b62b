// Package domain defines the entities shared by the step tracker and the sync repositories.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority ranks a task.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a user to-do item.
type Task struct {
	ID             string
	UserID         string
	Title          string
	Description    string
	Category       string
	Priority       Priority
	IsCompleted    bool
	DueDate        *time.Time
	CompletionDate *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TaskPatch carries the fields to change on a task. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string
	Description *string
	Category    *string
	Priority    *Priority
	IsCompleted *bool
	DueDate     *time.Time
	ClearDue    bool
}

// EntityID implements the repository entity contract.
func (t Task) EntityID() string { return t.ID }

// WithID returns a copy of t carrying id.
func (t Task) WithID(id string) Task {
	t.ID = id
	return t
}

// Apply merges the patch over t. CompletionDate follows IsCompleted: it is stamped with now
// when the task becomes completed and cleared when it is reopened.
func (t Task) Apply(p TaskPatch, now time.Time) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.ClearDue {
		t.DueDate = nil
	} else if p.DueDate != nil {
		due := *p.DueDate
		t.DueDate = &due
	}
	if p.IsCompleted != nil {
		t = t.withCompletion(*p.IsCompleted, now)
	}
	t.UpdatedAt = now
	return t
}

func (t Task) withCompletion(done bool, now time.Time) Task {
	switch {
	case done && !t.IsCompleted:
		at := now
		t.CompletionDate = &at
	case !done:
		t.CompletionDate = nil
	}
	t.IsCompleted = done
	return t
}

// Validate checks a task draft before it is handed to a repository.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEntity)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidEntity, t.Priority)
	}
	if t.IsCompleted != (t.CompletionDate != nil) {
		return fmt.Errorf("%w: completion date must accompany completed state", ErrInvalidEntity)
	}
	return nil
}
