package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/auth"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
)

func (h *Handler) listReminders(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r, auth.Reminders, auth.Read)
	if !ok {
		return
	}
	state := ws.Reminders.Snapshot()
	resp := ListResponse[ReminderView]{Items: make([]ReminderView, 0, len(state.Items)), IsLoading: state.IsLoading, LastError: state.ErrorMessage()}
	for _, reminder := range state.Items {
		resp.Items = append(resp.Items, toReminderView(reminder))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createReminder(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r, auth.Reminders, auth.Write)
	if !ok {
		return
	}
	var req CreateReminderRequest
	if !decode(w, r, &req) {
		return
	}

	created, err := ws.Reminders.Create(r.Context(), req.toReminder(ws.UserID))
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReminderView(created))
}

func (h *Handler) updateReminder(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r, auth.Reminders, auth.Write)
	if !ok {
		return
	}
	var req UpdateReminderRequest
	if !decode(w, r, &req) {
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	updated, err := ws.Reminders.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReminderView(updated))
}

func (h *Handler) transitionReminder(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r, auth.Reminders, auth.Write)
	if !ok {
		return
	}
	var req TransitionRequest
	if !decode(w, r, &req) {
		return
	}

	status := domain.ReminderStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	updated, err := ws.Reminders.Transition(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReminderView(updated))
}

func (h *Handler) deleteReminder(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r, auth.Reminders, auth.Write)
	if !ok {
		return
	}
	if err := ws.Reminders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeSyncError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateReminderRequest is the payload for POST /v1/reminders. New reminders start PENDING.
type CreateReminderRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DateTime    time.Time `json:"date_time"`
	Type        string    `json:"type"`
}

func (r CreateReminderRequest) toReminder(userID string) domain.Reminder {
	kind := domain.ReminderType(strings.ToUpper(strings.TrimSpace(r.Type)))
	if kind == "" {
		kind = domain.ReminderGeneral
	}
	return domain.Reminder{
		UserID:      userID,
		Title:       strings.TrimSpace(r.Title),
		Description: r.Description,
		DateTime:    r.DateTime,
		Status:      domain.ReminderPending,
		Type:        kind,
	}
}

// UpdateReminderRequest is the payload for PATCH /v1/reminders/{id}. Status changes go
// through PUT /v1/reminders/{id}/status.
type UpdateReminderRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	DateTime    *time.Time `json:"date_time,omitempty"`
	Type        *string    `json:"type,omitempty"`
}

func (r UpdateReminderRequest) toPatch() (domain.ReminderPatch, error) {
	patch := domain.ReminderPatch{Description: r.Description, DateTime: r.DateTime}
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		if title == "" {
			return domain.ReminderPatch{}, errors.New("title must not be empty")
		}
		patch.Title = &title
	}
	if r.Type != nil {
		kind := domain.ReminderType(strings.ToUpper(*r.Type))
		if !kind.Valid() {
			return domain.ReminderPatch{}, errors.New("unknown reminder type")
		}
		patch.Type = &kind
	}
	return patch, nil
}

// TransitionRequest is the payload for PUT /v1/reminders/{id}/status.
type TransitionRequest struct {
	Status string `json:"status"`
}

// ReminderView is the wire form of a reminder.
type ReminderView struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	DateTime    time.Time `json:"date_time"`
	Status      string    `json:"status"`
	Type        string    `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toReminderView(r domain.Reminder) ReminderView {
	return ReminderView{
		ID:          r.ID,
		UserID:      r.UserID,
		Title:       r.Title,
		Description: r.Description,
		DateTime:    r.DateTime,
		Status:      string(r.Status),
		Type:        string(r.Type),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
