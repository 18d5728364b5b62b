package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
)

// MemoryStore is an in-process Store used for local development and tests. Failures can be
// injected per operation to exercise rollback paths.
type MemoryStore[T any, P any] struct {
	mu      sync.RWMutex
	records map[string]memoryRecord[T]
	seq     int64
	now     func() time.Time

	owner    func(T) string
	assign   func(T, string, time.Time) T
	apply    func(T, P, time.Time) T
	failures map[string]error
	gate     chan struct{}
}

type memoryRecord[T any] struct {
	seq    int64
	entity T
}

func newMemoryStore[T any, P any](owner func(T) string, assign func(T, string, time.Time) T, apply func(T, P, time.Time) T) *MemoryStore[T, P] {
	return &MemoryStore[T, P]{
		records:  make(map[string]memoryRecord[T]),
		now:      func() time.Time { return time.Now().UTC() },
		owner:    owner,
		assign:   assign,
		apply:    apply,
		failures: make(map[string]error),
	}
}

// Operation names accepted by FailNext.
const (
	OpFetchAll = "fetch_all"
	OpInsert   = "insert"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpUpsert   = "upsert"
)

// FailNext makes the next call of op return err.
func (s *MemoryStore[T, P]) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// Hold blocks every subsequent call until the returned release func is called.
func (s *MemoryStore[T, P]) Hold() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// SetClock overrides the timestamp source for server-assigned fields.
func (s *MemoryStore[T, P]) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore[T, P]) enter(ctx context.Context, op string) error {
	s.mu.RLock()
	gate := s.gate
	s.mu.RUnlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

// FetchAll returns the user's records in insertion order.
func (s *MemoryStore[T, P]) FetchAll(ctx context.Context, userID string) ([]T, error) {
	if err := s.enter(ctx, OpFetchAll); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]memoryRecord[T], 0, len(s.records))
	for _, rec := range s.records {
		if s.owner(rec.entity) == userID {
			matches = append(matches, rec)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].seq < matches[j].seq })

	out := make([]T, 0, len(matches))
	for _, rec := range matches {
		out = append(out, rec.entity)
	}
	return out, nil
}

// Insert stores entity under a fresh server id.
func (s *MemoryStore[T, P]) Insert(ctx context.Context, entity T) (T, error) {
	if err := s.enter(ctx, OpInsert); err != nil {
		var zero T
		return zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(entity), nil
}

func (s *MemoryStore[T, P]) insertLocked(entity T) T {
	id := uuid.NewString()
	canonical := s.assign(entity, id, s.now())
	s.seq++
	s.records[id] = memoryRecord[T]{seq: s.seq, entity: canonical}
	return canonical
}

// UpdateByID applies patch to the stored record.
func (s *MemoryStore[T, P]) UpdateByID(ctx context.Context, id string, patch P) (T, error) {
	var zero T
	if err := s.enter(ctx, OpUpdate); err != nil {
		return zero, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.entity = s.apply(rec.entity, patch, s.now())
	s.records[id] = rec
	return rec.entity, nil
}

// DeleteByID removes the record.
func (s *MemoryStore[T, P]) DeleteByID(ctx context.Context, id string) error {
	if err := s.enter(ctx, OpDelete); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.records, id)
	return nil
}

// Len returns the number of stored records.
func (s *MemoryStore[T, P]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// NewMemoryTaskStore constructs an in-memory task collection.
func NewMemoryTaskStore() *MemoryStore[domain.Task, domain.TaskPatch] {
	return newMemoryStore(
		func(t domain.Task) string { return t.UserID },
		func(t domain.Task, id string, now time.Time) domain.Task {
			t.ID = id
			t.CreatedAt = now
			t.UpdatedAt = now
			return t
		},
		func(t domain.Task, p domain.TaskPatch, now time.Time) domain.Task { return t.Apply(p, now) },
	)
}

// NewMemoryReminderStore constructs an in-memory reminder collection.
func NewMemoryReminderStore() *MemoryStore[domain.Reminder, domain.ReminderPatch] {
	return newMemoryStore(
		func(r domain.Reminder) string { return r.UserID },
		func(r domain.Reminder, id string, now time.Time) domain.Reminder {
			r.ID = id
			r.CreatedAt = now
			r.UpdatedAt = now
			return r
		},
		func(r domain.Reminder, p domain.ReminderPatch, now time.Time) domain.Reminder { return r.Apply(p, now) },
	)
}

// MemoryStepStore adds upsert-by-date to the generic in-memory store.
type MemoryStepStore struct {
	*MemoryStore[domain.DailyStepRecord, domain.StepCountPatch]
}

var _ StepStore = (*MemoryStepStore)(nil)

// NewMemoryStepStore constructs an in-memory daily steps collection.
func NewMemoryStepStore() *MemoryStepStore {
	return &MemoryStepStore{MemoryStore: newMemoryStore(
		func(d domain.DailyStepRecord) string { return d.UserID },
		func(d domain.DailyStepRecord, id string, now time.Time) domain.DailyStepRecord {
			d.ID = id
			d.CreatedAt = now
			d.UpdatedAt = now
			return d
		},
		func(d domain.DailyStepRecord, p domain.StepCountPatch, now time.Time) domain.DailyStepRecord {
			return d.Apply(p, now)
		},
	)}
}

// UpsertByKey updates the first record matching (userID, date) or inserts one.
func (s *MemoryStepStore) UpsertByKey(ctx context.Context, userID, date string, count int) (domain.DailyStepRecord, error) {
	if err := s.enter(ctx, OpUpsert); err != nil {
		return domain.DailyStepRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, rec := range s.records {
		if rec.entity.SameKey(userID, date) {
			rec.entity = rec.entity.Apply(domain.StepCountPatch{StepCount: count}, s.now())
			s.records[id] = rec
			return rec.entity, nil
		}
	}
	return s.insertLocked(domain.DailyStepRecord{UserID: userID, Date: date, StepCount: count}), nil
}

// CountKey returns how many records exist for (userID, date).
func (s *MemoryStepStore) CountKey(userID, date string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rec := range s.records {
		if rec.entity.SameKey(userID, date) {
			n++
		}
	}
	return n
}
