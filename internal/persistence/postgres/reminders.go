package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/events"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/observability"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/outbox"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/remote"
)

const reminderColumns = `reminder_id::text, user_id, title, description, date_time, status, type, created_at, updated_at`

// ReminderStore persists one user's reminders.
type ReminderStore struct {
	store  *Store
	userID string
}

var _ remote.ReminderStore = (*ReminderStore)(nil)

func scanReminder(row rowScanner) (domain.Reminder, error) {
	var r domain.Reminder
	var status, kind string
	err := row.Scan(&r.ID, &r.UserID, &r.Title, &r.Description, &r.DateTime, &status, &kind, &r.CreatedAt, &r.UpdatedAt)
	r.Status = domain.ReminderStatus(status)
	r.Type = domain.ReminderType(kind)
	return r, err
}

// FetchAll returns the user's reminders in creation order.
func (s *ReminderStore) FetchAll(ctx context.Context, userID string) ([]domain.Reminder, error) {
	if err := checkScope(s.userID, userID); err != nil {
		return nil, err
	}
	var reminders []domain.Reminder
	err := s.store.inUserTx(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE user_id = $1 ORDER BY seq`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		reminders = make([]domain.Reminder, 0)
		for rows.Next() {
			reminder, err := scanReminder(rows)
			if err != nil {
				return err
			}
			reminders = append(reminders, reminder)
		}
		return rows.Err()
	})
	return reminders, err
}

// Insert stores a new reminder.
func (s *ReminderStore) Insert(ctx context.Context, reminder domain.Reminder) (domain.Reminder, error) {
	if err := checkScope(s.userID, reminder.UserID); err != nil {
		return domain.Reminder{}, err
	}
	if err := reminder.Validate(); err != nil {
		return domain.Reminder{}, fmt.Errorf("%w: %v", remote.ErrRejected, err)
	}

	now := s.store.now()
	var created domain.Reminder
	err := s.store.inUserTx(ctx, s.userID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO reminders (user_id, title, description, date_time, status, type, created_at, updated_at)
             VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
             RETURNING `+reminderColumns,
			reminder.UserID, reminder.Title, reminder.Description, reminder.DateTime, string(reminder.Status), string(reminder.Type), now,
		)
		var err error
		if created, err = scanReminder(row); err != nil {
			return err
		}
		return enqueueReminder(ctx, tx, created, events.ChangeCreated)
	})
	if err != nil {
		return domain.Reminder{}, err
	}
	observability.RecordRemoteWrite("reminders", created.UpdatedAt)
	return created, nil
}

// UpdateByID applies patch under a row lock. Status changes out of a sink state are refused.
func (s *ReminderStore) UpdateByID(ctx context.Context, id string, patch domain.ReminderPatch) (domain.Reminder, error) {
	if err := checkID(id); err != nil {
		return domain.Reminder{}, err
	}

	var updated domain.Reminder
	err := s.store.inUserTx(ctx, s.userID, func(tx pgx.Tx) error {
		current, err := scanReminder(tx.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE reminder_id = $1 AND user_id = $2 FOR UPDATE`, id, s.userID))
		if err != nil {
			return err
		}
		if patch.Status != nil && *patch.Status != current.Status {
			if err := current.CanTransition(*patch.Status); err != nil {
				return fmt.Errorf("%w: %v", remote.ErrRejected, err)
			}
		}

		next := current.Apply(patch, s.store.now())
		if err := next.Validate(); err != nil {
			return fmt.Errorf("%w: %v", remote.ErrRejected, err)
		}

		row := tx.QueryRow(ctx,
			`UPDATE reminders SET title=$3, description=$4, date_time=$5, status=$6, type=$7, updated_at=$8
             WHERE reminder_id = $1 AND user_id = $2
             RETURNING `+reminderColumns,
			id, s.userID, next.Title, next.Description, next.DateTime, string(next.Status), string(next.Type), next.UpdatedAt,
		)
		if updated, err = scanReminder(row); err != nil {
			return err
		}
		return enqueueReminder(ctx, tx, updated, events.ChangeUpdated)
	})
	if err != nil {
		return domain.Reminder{}, err
	}
	observability.RecordRemoteWrite("reminders", updated.UpdatedAt)
	return updated, nil
}

// DeleteByID removes the reminder.
func (s *ReminderStore) DeleteByID(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	now := s.store.now()
	err := s.store.inUserTx(ctx, s.userID, func(tx pgx.Tx) error {
		var deletedID string
		if err := tx.QueryRow(ctx, `DELETE FROM reminders WHERE reminder_id = $1 AND user_id = $2 RETURNING reminder_id::text`, id, s.userID).Scan(&deletedID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", remote.ErrNotFound, id)
			}
			return err
		}
		return enqueueReminder(ctx, tx, domain.Reminder{ID: deletedID, UserID: s.userID, UpdatedAt: now}, events.ChangeDeleted)
	})
	if err != nil {
		return err
	}
	observability.RecordRemoteWrite("reminders", now)
	return nil
}

func enqueueReminder(ctx context.Context, tx pgx.Tx, reminder domain.Reminder, change events.Change) error {
	payload := events.ReminderChanged{
		ReminderID: reminder.ID,
		UserID:     reminder.UserID,
		Change:     change,
		OccurredAt: reminder.UpdatedAt,
	}
	if change != events.ChangeDeleted {
		at := reminder.DateTime
		payload.Status = string(reminder.Status)
		payload.Type = string(reminder.Type)
		payload.DateTime = &at
	}
	return outbox.Enqueue(ctx, tx, outbox.Event{
		UserID:        reminder.UserID,
		AggregateType: "reminder",
		AggregateID:   reminder.ID,
		EventType:     events.TypeReminderChanged,
		Payload:       payload,
	})
}
