package syncrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/remote"
)

// CollectionReminders names the reminder list.
const CollectionReminders = "reminders"

// ReminderRepository is the optimistic repository for reminders.
type ReminderRepository struct {
	*Repository[domain.Reminder, domain.ReminderPatch]
}

// NewReminderRepository constructs a ReminderRepository.
func NewReminderRepository(store remote.ReminderStore, opts ...Option) *ReminderRepository {
	return &ReminderRepository{Repository: New[domain.Reminder, domain.ReminderPatch](CollectionReminders, store, opts...)}
}

// Transition moves a pending reminder to status, refreshing UpdatedAt. Sink states reject
// further transitions before any remote call.
func (r *ReminderRepository) Transition(ctx context.Context, id string, status domain.ReminderStatus) (domain.Reminder, error) {
	current, ok := r.Find(id)
	if !ok {
		return domain.Reminder{}, r.Reject(OpTransition, id, fmt.Errorf("%w: %s", domain.ErrNotFound, id))
	}
	if err := current.CanTransition(status); err != nil {
		return domain.Reminder{}, r.Reject(OpTransition, id, err)
	}
	return r.update(ctx, OpTransition, id, domain.ReminderPatch{Status: &status})
}

// MarkMissed transitions every pending reminder scheduled before now to MISSED and returns
// how many were committed.
func (r *ReminderRepository) MarkMissed(ctx context.Context, now time.Time) (int, error) {
	var errs error
	marked := 0
	for _, reminder := range r.Items() {
		if !reminder.Overdue(now) {
			continue
		}
		if _, err := r.Transition(ctx, reminder.ID, domain.ReminderMissed); err != nil {
			errs = errors.Join(errs, err)
			continue
		}
		marked++
	}
	return marked, errs
}
