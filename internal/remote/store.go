// Package remote defines the contract the sync repositories require from the hosted store.
package remote

import (
	"context"
	"errors"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
)

var (
	// ErrUnavailable marks a store that could not be reached or timed out.
	ErrUnavailable = errors.New("remote store unavailable")
	// ErrRejected marks a write refused by the store (validation, constraint).
	ErrRejected = errors.New("remote store rejected request")
	// ErrNotFound marks a write addressed to an id the store does not know.
	ErrNotFound = errors.New("remote record not found")
)

// Store is the CRUD surface of one remote collection. Writes return the canonical entity,
// carrying the server-assigned id and timestamps.
type Store[T any, P any] interface {
	FetchAll(ctx context.Context, userID string) ([]T, error)
	Insert(ctx context.Context, entity T) (T, error)
	UpdateByID(ctx context.Context, id string, patch P) (T, error)
	DeleteByID(ctx context.Context, id string) error
}

// TaskStore persists tasks.
type TaskStore = Store[domain.Task, domain.TaskPatch]

// ReminderStore persists reminders.
type ReminderStore = Store[domain.Reminder, domain.ReminderPatch]

// StepStore persists daily step records and offers upsert by (userID, date).
type StepStore interface {
	Store[domain.DailyStepRecord, domain.StepCountPatch]
	UpsertByKey(ctx context.Context, userID, date string, count int) (domain.DailyStepRecord, error)
}
