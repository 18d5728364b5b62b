// Package postgres implements the remote store contract on PostgreSQL. Every write records a
// change event in the outbox within the same transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/remote"
)

// Store hands out per-user collection stores over one pool.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Tasks returns the task collection of userID.
func (s *Store) Tasks(userID string) *TaskStore {
	return &TaskStore{store: s, userID: userID}
}

// Reminders returns the reminder collection of userID.
func (s *Store) Reminders(userID string) *ReminderStore {
	return &ReminderStore{store: s, userID: userID}
}

// DailySteps returns the daily steps collection of userID.
func (s *Store) DailySteps(userID string) *DailyStepStore {
	return &DailyStepStore{store: s, userID: userID}
}

// Collections exposes a Store through the remote contracts only.
type Collections struct {
	*Store
}

// Tasks returns the task collection of userID.
func (c Collections) Tasks(userID string) remote.TaskStore { return c.Store.Tasks(userID) }

// Reminders returns the reminder collection of userID.
func (c Collections) Reminders(userID string) remote.ReminderStore { return c.Store.Reminders(userID) }

// DailySteps returns the daily steps collection of userID.
func (c Collections) DailySteps(userID string) remote.StepStore { return c.Store.DailySteps(userID) }

type rowScanner interface {
	Scan(dest ...any) error
}

// inUserTx runs fn in a transaction scoped to userID by row level security.
func (s *Store) inUserTx(ctx context.Context, userID string, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapError(err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, "SELECT set_config('app.user_id', $1, true)", userID); err != nil {
		return mapError(err)
	}
	if err = fn(tx); err != nil {
		return mapError(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

func checkScope(scope, userID string) error {
	if userID != scope {
		return fmt.Errorf("%w: store scoped to another user", remote.ErrRejected)
	}
	return nil
}

// checkID rejects ids the store could never have issued, such as local placeholders.
func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", remote.ErrNotFound, id)
	}
	return nil
}

// mapError translates driver errors into the remote error taxonomy.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, remote.ErrNotFound) || errors.Is(err, remote.ErrRejected) || errors.Is(err, remote.ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %v", remote.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", pgErr.Code == "40P01":
			return fmt.Errorf("%w: %s", remote.ErrUnavailable, pgErr.Message)
		case len(pgErr.Code) < 2:
			return err
		}
		switch pgErr.Code[:2] {
		case "22", "23", "42":
			return fmt.Errorf("%w: %s (%s)", remote.ErrRejected, pgErr.Message, pgErr.Code)
		case "08", "53", "57":
			return fmt.Errorf("%w: %s (%s)", remote.ErrUnavailable, pgErr.Message, pgErr.Code)
		}
		return err
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}
	return err
}
