package syncrepo

import (
	"context"
	"fmt"
	"slices"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/remote"
)

// CollectionDailySteps names the daily steps list.
const CollectionDailySteps = "daily_steps"

// DailyStepsRepository is the optimistic repository for per-day step totals.
type DailyStepsRepository struct {
	*Repository[domain.DailyStepRecord, domain.StepCountPatch]
	steps remote.StepStore
}

// NewDailyStepsRepository constructs a DailyStepsRepository.
func NewDailyStepsRepository(store remote.StepStore, opts ...Option) *DailyStepsRepository {
	return &DailyStepsRepository{
		Repository: New[domain.DailyStepRecord, domain.StepCountPatch](CollectionDailySteps, store, opts...),
		steps:      store,
	}
}

// ForDate returns the local record for (userID, date).
func (r *DailyStepsRepository) ForDate(userID, date string) (domain.DailyStepRecord, bool) {
	items := r.Items()
	idx := slices.IndexFunc(items, func(rec domain.DailyStepRecord) bool { return rec.SameKey(userID, date) })
	if idx < 0 {
		return domain.DailyStepRecord{}, false
	}
	return items[idx], true
}

// Upsert sets the step count for (userID, date): the local record is updated if present,
// otherwise a placeholder is appended, and the store is asked to update-or-insert by key.
// The check and the write are not atomic; two writers racing on a new day may both insert.
func (r *DailyStepsRepository) Upsert(ctx context.Context, userID, date string, count int) (domain.DailyStepRecord, error) {
	if count < 0 {
		return domain.DailyStepRecord{}, r.Reject(OpUpsert, date, fmt.Errorf("%w: negative step count %d", domain.ErrInvalidEntity, count))
	}
	return r.run(ctx, OpUpsert, userID+"/"+date, func(items []domain.DailyStepRecord) (change[domain.DailyStepRecord], error) {
		idx := slices.IndexFunc(items, func(rec domain.DailyStepRecord) bool { return rec.SameKey(userID, date) })
		if idx >= 0 {
			before := items[idx]
			optimistic := before.Apply(domain.StepCountPatch{StepCount: count}, r.now())
			return change[domain.DailyStepRecord]{
				apply: func(items []domain.DailyStepRecord) []domain.DailyStepRecord {
					return replaceByID(items, before.ID, optimistic)
				},
				rollback: func(items []domain.DailyStepRecord) []domain.DailyStepRecord {
					return replaceByID(items, before.ID, before)
				},
				commit: func(items []domain.DailyStepRecord, canonical domain.DailyStepRecord) []domain.DailyStepRecord {
					return swapOrAppend(items, before.ID, canonical)
				},
			}, nil
		}

		now := r.now()
		placeholder := domain.DailyStepRecord{
			ID:        r.newID(),
			UserID:    userID,
			Date:      date,
			StepCount: count,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return change[domain.DailyStepRecord]{
			apply: func(items []domain.DailyStepRecord) []domain.DailyStepRecord {
				return append(slices.Clone(items), placeholder)
			},
			rollback: func(items []domain.DailyStepRecord) []domain.DailyStepRecord {
				return removeByID(items, placeholder.ID)
			},
			commit: func(items []domain.DailyStepRecord, canonical domain.DailyStepRecord) []domain.DailyStepRecord {
				return swapOrAppend(items, placeholder.ID, canonical)
			},
		}, nil
	}, func(ctx context.Context) (domain.DailyStepRecord, error) {
		return r.steps.UpsertByKey(ctx, userID, date, count)
	})
}
