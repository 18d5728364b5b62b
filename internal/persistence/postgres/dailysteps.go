package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/events"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/observability"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/outbox"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/remote"
)

const dailyStepColumns = `record_id::text, user_id, date::text, step_count, created_at, updated_at`

// DailyStepStore persists one user's daily step totals.
type DailyStepStore struct {
	store  *Store
	userID string
}

var _ remote.StepStore = (*DailyStepStore)(nil)

func scanDailySteps(row rowScanner) (domain.DailyStepRecord, error) {
	var d domain.DailyStepRecord
	err := row.Scan(&d.ID, &d.UserID, &d.Date, &d.StepCount, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

// FetchAll returns the user's records ordered by date.
func (s *DailyStepStore) FetchAll(ctx context.Context, userID string) ([]domain.DailyStepRecord, error) {
	if err := checkScope(s.userID, userID); err != nil {
		return nil, err
	}
	var records []domain.DailyStepRecord
	err := s.store.inUserTx(ctx, userID, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+dailyStepColumns+` FROM daily_steps WHERE user_id = $1 ORDER BY date, seq`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		records = make([]domain.DailyStepRecord, 0)
		for rows.Next() {
			rec, err := scanDailySteps(rows)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return rows.Err()
	})
	return records, err
}

// Insert stores a new record. Callers wanting one record per day use UpsertByKey.
func (s *DailyStepStore) Insert(ctx context.Context, rec domain.DailyStepRecord) (domain.DailyStepRecord, error) {
	if err := checkScope(s.userID, rec.UserID); err != nil {
		return domain.DailyStepRecord{}, err
	}
	var created domain.DailyStepRecord
	err := s.store.inUserTx(ctx, s.userID, func(tx pgx.Tx) error {
		var err error
		created, err = insertDailySteps(ctx, tx, s.userID, rec.Date, rec.StepCount, s.store.now())
		return err
	})
	if err != nil {
		return domain.DailyStepRecord{}, err
	}
	observability.RecordRemoteWrite("daily_steps", created.UpdatedAt)
	return created, nil
}

// UpdateByID replaces the count of an existing record.
func (s *DailyStepStore) UpdateByID(ctx context.Context, id string, patch domain.StepCountPatch) (domain.DailyStepRecord, error) {
	if err := checkID(id); err != nil {
		return domain.DailyStepRecord{}, err
	}
	var updated domain.DailyStepRecord
	err := s.store.inUserTx(ctx, s.userID, func(tx pgx.Tx) error {
		var err error
		updated, err = updateDailySteps(ctx, tx, id, s.userID, patch.StepCount, s.store.now())
		return err
	})
	if err != nil {
		return domain.DailyStepRecord{}, err
	}
	observability.RecordRemoteWrite("daily_steps", updated.UpdatedAt)
	return updated, nil
}

// DeleteByID removes the record. No change event is emitted for deletions.
func (s *DailyStepStore) DeleteByID(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	return s.store.inUserTx(ctx, s.userID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM daily_steps WHERE record_id = $1 AND user_id = $2`, id, s.userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", remote.ErrNotFound, id)
		}
		return nil
	})
}

// UpsertByKey updates the oldest record for (userID, date) or inserts one. An existing row is
// locked, but two transactions that both find no row will both insert.
func (s *DailyStepStore) UpsertByKey(ctx context.Context, userID, date string, count int) (domain.DailyStepRecord, error) {
	if err := checkScope(s.userID, userID); err != nil {
		return domain.DailyStepRecord{}, err
	}
	if _, err := domain.ParseDate(date, nil); err != nil {
		return domain.DailyStepRecord{}, fmt.Errorf("%w: invalid date %q", remote.ErrRejected, date)
	}

	var rec domain.DailyStepRecord
	err := s.store.inUserTx(ctx, userID, func(tx pgx.Tx) error {
		var existingID string
		err := tx.QueryRow(ctx,
			`SELECT record_id::text FROM daily_steps WHERE user_id = $1 AND date = $2::date ORDER BY seq LIMIT 1 FOR UPDATE`,
			userID, date,
		).Scan(&existingID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			rec, err = insertDailySteps(ctx, tx, userID, date, count, s.store.now())
		case err == nil:
			rec, err = updateDailySteps(ctx, tx, existingID, userID, count, s.store.now())
		}
		return err
	})
	if err != nil {
		return domain.DailyStepRecord{}, err
	}
	observability.RecordRemoteWrite("daily_steps", rec.UpdatedAt)
	return rec, nil
}

func insertDailySteps(ctx context.Context, tx pgx.Tx, userID, date string, count int, now time.Time) (domain.DailyStepRecord, error) {
	rec, err := scanDailySteps(tx.QueryRow(ctx,
		`INSERT INTO daily_steps (user_id, date, step_count, created_at, updated_at)
         VALUES ($1,$2::date,$3,$4,$4)
         RETURNING `+dailyStepColumns,
		userID, date, count, now,
	))
	if err != nil {
		return domain.DailyStepRecord{}, err
	}
	return rec, enqueueDailySteps(ctx, tx, rec)
}

func updateDailySteps(ctx context.Context, tx pgx.Tx, id, userID string, count int, now time.Time) (domain.DailyStepRecord, error) {
	rec, err := scanDailySteps(tx.QueryRow(ctx,
		`UPDATE daily_steps SET step_count = $3, updated_at = $4
         WHERE record_id = $1 AND user_id = $2
         RETURNING `+dailyStepColumns,
		id, userID, count, now,
	))
	if err != nil {
		return domain.DailyStepRecord{}, err
	}
	return rec, enqueueDailySteps(ctx, tx, rec)
}

func enqueueDailySteps(ctx context.Context, tx pgx.Tx, rec domain.DailyStepRecord) error {
	return outbox.Enqueue(ctx, tx, outbox.Event{
		UserID:        rec.UserID,
		AggregateType: "daily_steps",
		AggregateID:   rec.ID,
		EventType:     events.TypeDailyStepsUpdated,
		Payload: events.DailyStepsUpdated{
			RecordID:   rec.ID,
			UserID:     rec.UserID,
			Date:       rec.Date,
			StepCount:  rec.StepCount,
			OccurredAt: rec.UpdatedAt,
		},
	})
}
