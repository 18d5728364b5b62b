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

const taskColumns = `task_id::text, user_id, title, description, category, priority, is_completed, due_date, completion_date, created_at, updated_at`

// TaskStore persists one user's tasks.
type TaskStore struct {
	store  *Store
	userID string
}

var _ remote.TaskStore = (*TaskStore)(nil)

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var priority string
	err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Category, &priority, &t.IsCompleted, &t.DueDate, &t.CompletionDate, &t.CreatedAt, &t.UpdatedAt)
	t.Priority = domain.Priority(priority)
	return t, err
}

// FetchAll returns the user's tasks in creation order.
func (s *TaskStore) FetchAll(ctx context.Context, userID string) ([]domain.Task, error) {
	if err := checkScope(s.userID, userID); err != nil {
		return nil, err
	}
	var tasks []domain.Task
	err := s.store.inUserTx(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = $1 ORDER BY seq`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		tasks = make([]domain.Task, 0)
		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return err
			}
			tasks = append(tasks, task)
		}
		return rows.Err()
	})
	return tasks, err
}

// Insert stores a new task and returns it with its server id.
func (s *TaskStore) Insert(ctx context.Context, task domain.Task) (domain.Task, error) {
	if err := checkScope(s.userID, task.UserID); err != nil {
		return domain.Task{}, err
	}
	if err := task.Validate(); err != nil {
		return domain.Task{}, fmt.Errorf("%w: %v", remote.ErrRejected, err)
	}

	now := s.store.now()
	var created domain.Task
	err := s.store.inUserTx(ctx, s.userID, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`INSERT INTO tasks (user_id, title, description, category, priority, is_completed, due_date, completion_date, created_at, updated_at)
             VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$9)
             RETURNING `+taskColumns,
			task.UserID, task.Title, task.Description, task.Category, string(task.Priority), task.IsCompleted, task.DueDate, task.CompletionDate, now,
		)
		var err error
		if created, err = scanTask(row); err != nil {
			return err
		}
		return enqueueTask(ctx, tx, created, events.ChangeCreated)
	})
	if err != nil {
		return domain.Task{}, err
	}
	observability.RecordRemoteWrite("tasks", created.UpdatedAt)
	return created, nil
}

// UpdateByID applies patch to the stored task under a row lock.
func (s *TaskStore) UpdateByID(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := checkID(id); err != nil {
		return domain.Task{}, err
	}

	var updated domain.Task
	err := s.store.inUserTx(ctx, s.userID, func(tx pgx.Tx) error {
		current, err := scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = $1 AND user_id = $2 FOR UPDATE`, id, s.userID))
		if err != nil {
			return err
		}

		next := current.Apply(patch, s.store.now())
		if err := next.Validate(); err != nil {
			return fmt.Errorf("%w: %v", remote.ErrRejected, err)
		}

		row := tx.QueryRow(ctx,
			`UPDATE tasks SET title=$3, description=$4, category=$5, priority=$6, is_completed=$7, due_date=$8, completion_date=$9, updated_at=$10
             WHERE task_id = $1 AND user_id = $2
             RETURNING `+taskColumns,
			id, s.userID, next.Title, next.Description, next.Category, string(next.Priority), next.IsCompleted, next.DueDate, next.CompletionDate, next.UpdatedAt,
		)
		if updated, err = scanTask(row); err != nil {
			return err
		}
		return enqueueTask(ctx, tx, updated, events.ChangeUpdated)
	})
	if err != nil {
		return domain.Task{}, err
	}
	observability.RecordRemoteWrite("tasks", updated.UpdatedAt)
	return updated, nil
}

// DeleteByID removes the task.
func (s *TaskStore) DeleteByID(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}

	now := s.store.now()
	err := s.store.inUserTx(ctx, s.userID, func(tx pgx.Tx) error {
		var deletedID string
		if err := tx.QueryRow(ctx, `DELETE FROM tasks WHERE task_id = $1 AND user_id = $2 RETURNING task_id::text`, id, s.userID).Scan(&deletedID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", remote.ErrNotFound, id)
			}
			return err
		}
		return enqueueTask(ctx, tx, domain.Task{ID: deletedID, UserID: s.userID, UpdatedAt: now}, events.ChangeDeleted)
	})
	if err != nil {
		return err
	}
	observability.RecordRemoteWrite("tasks", now)
	return nil
}

func enqueueTask(ctx context.Context, tx pgx.Tx, task domain.Task, change events.Change) error {
	payload := events.TaskChanged{
		TaskID:      task.ID,
		UserID:      task.UserID,
		Change:      change,
		IsCompleted: task.IsCompleted,
		OccurredAt:  task.UpdatedAt,
	}
	if change != events.ChangeDeleted {
		payload.Title = task.Title
		payload.Priority = string(task.Priority)
		payload.CompletionDate = task.CompletionDate
		payload.DueDate = task.DueDate
	}
	return outbox.Enqueue(ctx, tx, outbox.Event{
		UserID:        task.UserID,
		AggregateType: "task",
		AggregateID:   task.ID,
		EventType:     events.TypeTaskChanged,
		Payload:       payload,
	})
}
