package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
)

func TestMemoryStoreAssignsIDsAndScopesByUser(t *testing.T) {
	store := NewMemoryTaskStore()
	fixed := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return fixed })
	ctx := context.Background()

	first, err := store.Insert(ctx, domain.Task{UserID: "u1", Title: "a", Priority: domain.PriorityLow})
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)
	require.Equal(t, fixed, first.CreatedAt)

	_, err = store.Insert(ctx, domain.Task{UserID: "u2", Title: "b", Priority: domain.PriorityLow})
	require.NoError(t, err)
	second, err := store.Insert(ctx, domain.Task{UserID: "u1", Title: "c", Priority: domain.PriorityLow})
	require.NoError(t, err)

	items, err := store.FetchAll(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []domain.Task{first, second}, items)
}

func TestMemoryStoreUnknownIDIsNotFound(t *testing.T) {
	store := NewMemoryReminderStore()
	ctx := context.Background()

	_, err := store.UpdateByID(ctx, "missing", domain.ReminderPatch{})
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.DeleteByID(ctx, "missing"), ErrNotFound)
}

func TestMemoryStoreFailNextAppliesOnce(t *testing.T) {
	store := NewMemoryTaskStore()
	ctx := context.Background()
	boom := errors.New("boom")
	store.FailNext(OpInsert, boom)

	_, err := store.Insert(ctx, domain.Task{UserID: "u1", Title: "a"})
	require.ErrorIs(t, err, boom)
	_, err = store.Insert(ctx, domain.Task{UserID: "u1", Title: "a"})
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())
}

func TestMemoryStoreHoldHonoursContext(t *testing.T) {
	store := NewMemoryTaskStore()
	release := store.Hold()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := store.FetchAll(ctx, "u1")
	require.ErrorIs(t, err, ErrUnavailable)

	release()
	_, err = store.FetchAll(context.Background(), "u1")
	require.NoError(t, err)
}

func TestMemoryStepStoreUpsertByKey(t *testing.T) {
	store := NewMemoryStepStore()
	ctx := context.Background()

	first, err := store.UpsertByKey(ctx, "u1", "2025-03-10", 10)
	require.NoError(t, err)
	second, err := store.UpsertByKey(ctx, "u1", "2025-03-10", 20)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Equal(t, 20, second.StepCount)
	require.Equal(t, 1, store.CountKey("u1", "2025-03-10"))
	require.Zero(t, store.CountKey("u2", "2025-03-10"))
}
