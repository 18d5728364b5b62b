package syncrepo

import (
	"context"
	"fmt"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/remote"
)

// CollectionTasks names the task list.
const CollectionTasks = "tasks"

// TaskRepository is the optimistic repository for tasks.
type TaskRepository struct {
	*Repository[domain.Task, domain.TaskPatch]
}

// NewTaskRepository constructs a TaskRepository.
func NewTaskRepository(store remote.TaskStore, opts ...Option) *TaskRepository {
	return &TaskRepository{Repository: New[domain.Task, domain.TaskPatch](CollectionTasks, store, opts...)}
}

// Toggle flips the completion state of a task.
func (r *TaskRepository) Toggle(ctx context.Context, id string) (domain.Task, error) {
	current, ok := r.Find(id)
	if !ok {
		return domain.Task{}, r.Reject(OpUpdate, id, fmt.Errorf("%w: %s", domain.ErrNotFound, id))
	}
	done := !current.IsCompleted
	return r.Update(ctx, id, domain.TaskPatch{IsCompleted: &done})
}
