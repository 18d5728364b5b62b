// Package api exposes the signed-in user's repositories over HTTP and a WebSocket state
// stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/auth"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
)

// HandlerConfig carries presentation settings.
type HandlerConfig struct {
	Location       *time.Location
	DailyGoal      int
	AllowedOrigins []string
	Logger         *log.Logger
	Now            func() time.Time
}

// Handler coordinates HTTP requests with the user's repositories.
type Handler struct {
	workspaces *Workspaces
	loc        *time.Location
	dailyGoal  int
	now        func() time.Time
	logger     *log.Logger
	upgrader   websocket.Upgrader
}

// NewHandler builds a Handler.
func NewHandler(workspaces *Workspaces, cfg HandlerConfig) *Handler {
	h := &Handler{
		workspaces: workspaces,
		loc:        cfg.Location,
		dailyGoal:  cfg.DailyGoal,
		now:        cfg.Now,
		logger:     cfg.Logger,
	}
	if h.loc == nil {
		h.loc = time.Local
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = log.New(log.Writer(), "[api] ", log.LstdFlags|log.Lshortfile)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// workspace authorizes the request for resource and returns the caller's workspace. It
// writes the error response itself and reports false when the request cannot proceed.
func (h *Handler) workspace(w http.ResponseWriter, r *http.Request, res auth.Resource, access auth.Access) (*Workspace, bool) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !caller.Allows(res, access) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+res.Scope(access)+" required")
		return nil, false
	}

	ws, err := h.workspaces.Get(r.Context(), caller.UserID)
	if err != nil {
		h.logger.Printf("load workspace for %s: %v", caller.UserID, err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "unable to load your data")
		return nil, false
	}
	return ws, true
}

func (h *Handler) listTasks(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r, auth.Tasks, auth.Read)
	if !ok {
		return
	}
	state := ws.Tasks.Snapshot()
	resp := ListResponse[TaskView]{Items: make([]TaskView, 0, len(state.Items)), IsLoading: state.IsLoading, LastError: state.ErrorMessage()}
	for _, task := range state.Items {
		resp.Items = append(resp.Items, toTaskView(task))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r, auth.Tasks, auth.Write)
	if !ok {
		return
	}
	var req CreateTaskRequest
	if !decode(w, r, &req) {
		return
	}

	draft := req.toTask(ws.UserID, h.now().UTC())
	created, err := ws.Tasks.Create(r.Context(), draft)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskView(created))
}

func (h *Handler) updateTask(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r, auth.Tasks, auth.Write)
	if !ok {
		return
	}
	var req UpdateTaskRequest
	if !decode(w, r, &req) {
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	updated, err := ws.Tasks.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskView(updated))
}

func (h *Handler) toggleTask(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r, auth.Tasks, auth.Write)
	if !ok {
		return
	}
	updated, err := ws.Tasks.Toggle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskView(updated))
}

func (h *Handler) deleteTask(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r, auth.Tasks, auth.Write)
	if !ok {
		return
	}
	if err := ws.Tasks.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeSyncError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListResponse packages a repository snapshot.
type ListResponse[T any] struct {
	Items     []T    `json:"items"`
	IsLoading bool   `json:"is_loading"`
	LastError string `json:"last_error,omitempty"`
}

// CreateTaskRequest is the payload for POST /v1/tasks.
type CreateTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Priority    string     `json:"priority"`
	IsCompleted bool       `json:"is_completed"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

func (r CreateTaskRequest) toTask(userID string, now time.Time) domain.Task {
	priority := domain.Priority(strings.ToUpper(strings.TrimSpace(r.Priority)))
	if priority == "" {
		priority = domain.PriorityMedium
	}
	task := domain.Task{
		UserID:      userID,
		Title:       strings.TrimSpace(r.Title),
		Description: r.Description,
		Category:    r.Category,
		Priority:    priority,
		IsCompleted: r.IsCompleted,
		DueDate:     r.DueDate,
	}
	if task.IsCompleted {
		task.CompletionDate = &now
	}
	return task
}

// UpdateTaskRequest is the payload for PATCH /v1/tasks/{id}. Absent fields are unchanged.
type UpdateTaskRequest struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Category     *string    `json:"category,omitempty"`
	Priority     *string    `json:"priority,omitempty"`
	IsCompleted  *bool      `json:"is_completed,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ClearDueDate bool       `json:"clear_due_date,omitempty"`
}

func (r UpdateTaskRequest) toPatch() (domain.TaskPatch, error) {
	patch := domain.TaskPatch{
		Description: r.Description,
		Category:    r.Category,
		IsCompleted: r.IsCompleted,
		DueDate:     r.DueDate,
		ClearDue:    r.ClearDueDate,
	}
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		if title == "" {
			return domain.TaskPatch{}, errors.New("title must not be empty")
		}
		patch.Title = &title
	}
	if r.Priority != nil {
		priority := domain.Priority(strings.ToUpper(*r.Priority))
		if !priority.Valid() {
			return domain.TaskPatch{}, errors.New("priority must be LOW, MEDIUM or HIGH")
		}
		patch.Priority = &priority
	}
	return patch, nil
}

// TaskView is the wire form of a task.
type TaskView struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Category       string     `json:"category"`
	Priority       string     `json:"priority"`
	IsCompleted    bool       `json:"is_completed"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	CompletionDate *time.Time `json:"completion_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toTaskView(t domain.Task) TaskView {
	return TaskView{
		ID:             t.ID,
		UserID:         t.UserID,
		Title:          t.Title,
		Description:    t.Description,
		Category:       t.Category,
		Priority:       string(t.Priority),
		IsCompleted:    t.IsCompleted,
		DueDate:        t.DueDate,
		CompletionDate: t.CompletionDate,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

// writeSyncError maps a repository failure onto an HTTP status.
func writeSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidEntity):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, string(domain.FailureNetwork), err.Error())
	default:
		kind := domain.KindOf(err)
		status := http.StatusInternalServerError
		switch kind {
		case domain.FailureNotFound:
			status = http.StatusNotFound
		case domain.FailureRejected:
			status = http.StatusUnprocessableEntity
		case domain.FailureNetwork:
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, string(kind), err.Error())
	}
}

// WriteAuthError renders an authentication failure in the API error format.
func WriteAuthError(w http.ResponseWriter, _ *http.Request, err error) {
	writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
