package api

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/remote"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/syncrepo"
)

// DefaultWorkspaceRefresh is how long a cached workspace is served before it is re-read.
const DefaultWorkspaceRefresh = 15 * time.Second

// Backend hands out the remote collections of one user.
type Backend interface {
	Tasks(userID string) remote.TaskStore
	Reminders(userID string) remote.ReminderStore
	DailySteps(userID string) remote.StepStore
}

// Workspace is the set of repositories serving one signed-in user.
type Workspace struct {
	UserID     string
	Tasks      *syncrepo.TaskRepository
	Reminders  *syncrepo.ReminderRepository
	DailySteps *syncrepo.DailyStepsRepository

	mu       sync.Mutex
	loadedAt time.Time
}

func (w *Workspace) load(ctx context.Context) error {
	return errors.Join(
		w.Tasks.Load(ctx, w.UserID),
		w.Reminders.Load(ctx, w.UserID),
		w.DailySteps.Load(ctx, w.UserID),
	)
}

// WorkspacesConfig tunes the workspace cache.
type WorkspacesConfig struct {
	// RefreshInterval is the age after which a cached workspace is loaded again, picking up
	// writes made by other processes such as the tracker.
	RefreshInterval   time.Duration
	RepositoryOptions []syncrepo.Option
	Now               func() time.Time
	Logger            *log.Logger
}

// Workspaces lazily builds and loads one Workspace per user. A workspace whose initial
// load failed is not cached, so the next request retries. Cached workspaces are reloaded
// once they are older than the refresh interval.
type Workspaces struct {
	backend Backend
	refresh time.Duration
	opts    []syncrepo.Option
	now     func() time.Time
	logger  *log.Logger

	mu     sync.Mutex
	byUser map[string]*Workspace
}

// NewWorkspaces constructs Workspaces over backend.
func NewWorkspaces(backend Backend, cfg WorkspacesConfig) *Workspaces {
	w := &Workspaces{
		backend: backend,
		refresh: cfg.RefreshInterval,
		opts:    cfg.RepositoryOptions,
		now:     cfg.Now,
		logger:  cfg.Logger,
		byUser:  make(map[string]*Workspace),
	}
	if w.refresh <= 0 {
		w.refresh = DefaultWorkspaceRefresh
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.logger == nil {
		w.logger = log.New(log.Writer(), "[workspaces] ", log.LstdFlags|log.Lshortfile)
	}
	return w
}

// Get returns the loaded workspace of userID, reloading it first when it has gone stale.
func (w *Workspaces) Get(ctx context.Context, userID string) (*Workspace, error) {
	w.mu.Lock()
	ws, ok := w.byUser[userID]
	w.mu.Unlock()
	if ok {
		w.Refresh(ctx, ws)
		return ws, nil
	}

	ws = &Workspace{
		UserID:     userID,
		Tasks:      syncrepo.NewTaskRepository(w.backend.Tasks(userID), w.opts...),
		Reminders:  syncrepo.NewReminderRepository(w.backend.Reminders(userID), w.opts...),
		DailySteps: syncrepo.NewDailyStepsRepository(w.backend.DailySteps(userID), w.opts...),
	}
	if err := ws.load(ctx); err != nil {
		return nil, err
	}
	ws.loadedAt = w.now()

	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.byUser[userID]; ok {
		return existing, nil
	}
	w.byUser[userID] = ws
	workspacesGauge.Set(float64(len(w.byUser)))
	return ws, nil
}

// Refresh reloads ws when its last successful load is older than the refresh interval.
// A failed reload keeps the previous items and is reported through each repository's
// last error; the next call retries.
func (w *Workspaces) Refresh(ctx context.Context, ws *Workspace) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if w.now().Sub(ws.loadedAt) < w.refresh {
		return
	}
	if err := ws.load(ctx); err != nil {
		workspaceRefreshFailures.Inc()
		w.logger.Printf("refresh workspace for %s: %v", ws.UserID, err)
		return
	}
	ws.loadedAt = w.now()
}

// RefreshInterval reports the configured refresh interval.
func (w *Workspaces) RefreshInterval() time.Duration {
	return w.refresh
}

// Len returns the number of cached workspaces.
func (w *Workspaces) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.byUser)
}
