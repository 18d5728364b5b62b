// Package syncrepo keeps a low-latency local view of a remote collection. Mutations are applied
// to the local list first and then reconciled with the remote store: committed to the
// canonical entity on success, rolled back on failure.
package syncrepo

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/remote"
)

// LocalIDPrefix marks identifiers synthesized on the device before the store assigns one.
const LocalIDPrefix = "local-"

// Entity is the contract a collection element satisfies.
type Entity[T any, P any] interface {
	EntityID() string
	WithID(id string) T
	Apply(patch P, now time.Time) T
}

type validator interface {
	Validate() error
}

// State is an immutable view of the repository published to observers.
type State[T any] struct {
	Items     []T
	IsLoading bool
	LastError error
}

// ErrorMessage returns LastError as display text, or "".
func (s State[T]) ErrorMessage() string {
	if s.LastError == nil {
		return ""
	}
	return s.LastError.Error()
}

type settings struct {
	now    func() time.Time
	newID  func() string
	logger *log.Logger
}

// Option configures a repository.
type Option func(*settings)

// WithClock overrides the timestamp source for optimistic patches.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithIDGenerator overrides local placeholder id generation.
func WithIDGenerator(newID func() string) Option {
	return func(s *settings) {
		s.newID = newID
	}
}

// WithLogger overrides the logger used to report rollbacks.
func WithLogger(logger *log.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// Repository is the generic optimistic-update repository. All list mutations happen under mu
// and produce a fresh slice, so published snapshots are never modified afterwards. Remote calls
// run outside the lock; concurrent operations race at the store exactly as issued.
type Repository[T Entity[T, P], P any] struct {
	collection string
	store      remote.Store[T, P]
	settings

	mu       sync.Mutex
	items    []T
	lastErr  error
	inflight int
	nextOp   uint64
	pending  map[uint64]*operation
	nextSub  int
	subs     map[int]chan State[T]
}

// New constructs a repository over store. collection names the list in errors and metrics.
func New[T Entity[T, P], P any](collection string, store remote.Store[T, P], opts ...Option) *Repository[T, P] {
	cfg := settings{
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return LocalIDPrefix + uuid.NewString() },
		logger: log.New(log.Writer(), fmt.Sprintf("[%s] ", collection), log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Repository[T, P]{
		collection: collection,
		store:      store,
		settings:   cfg,
		pending:    make(map[uint64]*operation),
		subs:       make(map[int]chan State[T]),
	}
}

// Collection returns the collection name.
func (r *Repository[T, P]) Collection() string {
	return r.collection
}

// Snapshot returns the current state.
func (r *Repository[T, P]) Snapshot() State[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

// Items returns a copy of the current list.
func (r *Repository[T, P]) Items() []T {
	return r.Snapshot().Items
}

// Find returns the entity with id from the local list.
func (r *Repository[T, P]) Find(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx := indexOf(r.items, id); idx >= 0 {
		return r.items[idx], true
	}
	var zero T
	return zero, false
}

// Pending returns the number of operations not yet committed or rolled back.
func (r *Repository[T, P]) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Subscribe returns a channel receiving the latest state after every change. Slow readers
// only see the most recent state. The cancel func closes the channel.
func (r *Repository[T, P]) Subscribe() (<-chan State[T], func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSub
	r.nextSub++
	ch := make(chan State[T], 1)
	ch <- r.stateLocked()
	r.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs, id)
			close(ch)
		})
	}
}

func (r *Repository[T, P]) stateLocked() State[T] {
	return State[T]{
		Items:     slices.Clone(r.items),
		IsLoading: r.inflight > 0,
		LastError: r.lastErr,
	}
}

func (r *Repository[T, P]) publishLocked() {
	if len(r.subs) == 0 {
		return
	}
	state := r.stateLocked()
	for _, ch := range r.subs {
		select {
		case <-ch:
		default:
		}
		ch <- state
	}
}

// Load replaces the list with the user's remote collection. On failure the previous items
// are kept.
func (r *Repository[T, P]) Load(ctx context.Context, userID string) error {
	r.mu.Lock()
	op := r.beginLocked(OpLoad, userID)
	r.lastErr = nil
	r.publishLocked()
	r.mu.Unlock()

	items, err := r.store.FetchAll(ctx, userID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		return r.rollbackLocked(op, err)
	}
	r.items = slices.Clone(items)
	r.commitLocked(op)
	return nil
}

// Create inserts draft locally under a placeholder id, then swaps it for the canonical entity
// returned by the store. On failure the placeholder is removed.
func (r *Repository[T, P]) Create(ctx context.Context, draft T) (T, error) {
	if v, ok := any(draft).(validator); ok {
		if err := v.Validate(); err != nil {
			var zero T
			return zero, r.Reject(OpCreate, "", err)
		}
	}
	localID := r.newID()
	optimistic := draft.WithID(localID)

	return r.run(ctx, OpCreate, localID, func([]T) (change[T], error) {
		return change[T]{
			apply: func(items []T) []T {
				return append(slices.Clone(items), optimistic)
			},
			rollback: func(items []T) []T {
				return removeByID(items, localID)
			},
			commit: func(items []T, canonical T) []T {
				return swapOrAppend(items, localID, canonical)
			},
		}, nil
	}, func(ctx context.Context) (T, error) {
		return r.store.Insert(ctx, draft)
	})
}

// Update applies patch locally, then replaces the entity with the canonical one. On failure
// the entity is restored to its value before the call. A missing id fails without any remote
// call.
func (r *Repository[T, P]) Update(ctx context.Context, id string, patch P) (T, error) {
	return r.update(ctx, OpUpdate, id, patch)
}

func (r *Repository[T, P]) update(ctx context.Context, kind, id string, patch P) (T, error) {
	return r.run(ctx, kind, id, func(items []T) (change[T], error) {
		idx := indexOf(items, id)
		if idx < 0 {
			return change[T]{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		before := items[idx]
		optimistic := before.Apply(patch, r.now())
		return change[T]{
			apply: func(items []T) []T {
				return replaceByID(items, id, optimistic)
			},
			rollback: func(items []T) []T {
				return replaceByID(items, id, before)
			},
			commit: func(items []T, canonical T) []T {
				return replaceByID(items, id, canonical)
			},
		}, nil
	}, func(ctx context.Context) (T, error) {
		return r.store.UpdateByID(ctx, id, patch)
	})
}

// Delete removes the entity locally, then remotely. On failure it is re-inserted at its
// original position.
func (r *Repository[T, P]) Delete(ctx context.Context, id string) error {
	_, err := r.run(ctx, OpDelete, id, func(items []T) (change[T], error) {
		idx := indexOf(items, id)
		if idx < 0 {
			return change[T]{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		removed := items[idx]
		return change[T]{
			apply: func(items []T) []T {
				return removeByID(items, id)
			},
			rollback: func(items []T) []T {
				if indexOf(items, id) >= 0 {
					return items
				}
				return slices.Insert(slices.Clone(items), min(idx, len(items)), removed)
			},
			commit: func(items []T, _ T) []T {
				return items
			},
		}, nil
	}, func(ctx context.Context) (T, error) {
		var zero T
		return zero, r.store.DeleteByID(ctx, id)
	})
	return err
}

// Reject records a local precondition failure for op without touching the list or the store.
func (r *Repository[T, P]) Reject(op, entityID string, cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.wrap(op, cause)
	r.lastErr = err
	recordOutcome(r.collection, op, PhaseRolledBack, domain.KindOf(err))
	r.publishLocked()
	return err
}

// change is one optimistic mutation with its commit and scoped rollback.
type change[T any] struct {
	apply    func(items []T) []T
	rollback func(items []T) []T
	commit   func(items []T, canonical T) []T
}

// run drives one operation through Pending -> Committed | RolledBack. prepare runs under the
// lock against the current list; an error from it fails the operation before any remote call.
func (r *Repository[T, P]) run(ctx context.Context, kind, entityID string, prepare func(items []T) (change[T], error), call func(context.Context) (T, error)) (T, error) {
	var zero T

	r.mu.Lock()
	c, err := prepare(r.items)
	if err != nil {
		r.mu.Unlock()
		return zero, r.Reject(kind, entityID, err)
	}
	op := r.beginLocked(kind, entityID)
	r.lastErr = nil
	r.items = c.apply(r.items)
	r.publishLocked()
	r.mu.Unlock()

	canonical, callErr := call(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if callErr != nil {
		r.items = c.rollback(r.items)
		return zero, r.rollbackLocked(op, callErr)
	}
	r.items = c.commit(r.items, canonical)
	r.commitLocked(op)
	return canonical, nil
}

func (r *Repository[T, P]) beginLocked(kind, entityID string) *operation {
	r.nextOp++
	op := &operation{id: r.nextOp, kind: kind, entityID: entityID, phase: PhasePending}
	r.pending[op.id] = op
	r.inflight++
	return op
}

func (r *Repository[T, P]) commitLocked(op *operation) {
	op.resolve(PhaseCommitted)
	r.finishLocked(op)
	recordOutcome(r.collection, op.kind, PhaseCommitted, "")
}

func (r *Repository[T, P]) rollbackLocked(op *operation, cause error) error {
	op.resolve(PhaseRolledBack)
	err := r.wrap(op.kind, cause)
	r.lastErr = err
	r.finishLocked(op)
	recordOutcome(r.collection, op.kind, PhaseRolledBack, domain.KindOf(err))
	r.logger.Printf("%s rolled back (id=%s): %v", op.kind, op.entityID, cause)
	return err
}

func (r *Repository[T, P]) finishLocked(op *operation) {
	delete(r.pending, op.id)
	r.inflight--
	r.publishLocked()
}

func (r *Repository[T, P]) wrap(op string, cause error) error {
	return &domain.SyncError{
		Kind:       Classify(cause),
		Op:         op,
		Collection: r.collection,
		Err:        cause,
	}
}

func indexOf[T interface{ EntityID() string }](items []T, id string) int {
	return slices.IndexFunc(items, func(item T) bool { return item.EntityID() == id })
}

func replaceByID[T interface{ EntityID() string }](items []T, id string, value T) []T {
	idx := slices.IndexFunc(items, func(item T) bool { return item.EntityID() == id })
	if idx < 0 {
		return items
	}
	out := slices.Clone(items)
	out[idx] = value
	return out
}

func removeByID[T interface{ EntityID() string }](items []T, id string) []T {
	idx := slices.IndexFunc(items, func(item T) bool { return item.EntityID() == id })
	if idx < 0 {
		return items
	}
	return slices.Delete(slices.Clone(items), idx, idx+1)
}

// swapOrAppend replaces the placeholder with canonical. When canonical is already listed
// under its own id, that entry is refreshed and the placeholder dropped, so an id never
// appears twice. If a concurrent load dropped the placeholder, canonical is appended.
func swapOrAppend[T interface{ EntityID() string }](items []T, placeholderID string, canonical T) []T {
	id := canonical.EntityID()
	if id != placeholderID && indexOf(items, id) >= 0 {
		return replaceByID(removeByID(items, placeholderID), id, canonical)
	}
	if indexOf(items, placeholderID) >= 0 {
		return replaceByID(items, placeholderID, canonical)
	}
	return append(slices.Clone(items), canonical)
}
