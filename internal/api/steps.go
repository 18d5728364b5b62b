package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/auth"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/steps"
)

// TodayStepsResponse reports today's persisted count and goal progress.
type TodayStepsResponse struct {
	Date         string    `json:"date"`
	StepCount    int       `json:"step_count"`
	DailyGoal    int       `json:"daily_goal"`
	GoalProgress float64   `json:"goal_progress"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WeeklyStepsResponse lists Monday through Sunday of the current week.
type WeeklyStepsResponse struct {
	WeekStart string `json:"week_start"`
	Days      [7]int `json:"days"`
	Total     int    `json:"total"`
}

// StepCountRequest is the payload for PUT /v1/steps/daily/{date}.
type StepCountRequest struct {
	StepCount int `json:"step_count"`
}

// DailyStepsView is the wire form of a daily record.
type DailyStepsView struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Date      string    `json:"date"`
	StepCount int       `json:"step_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toDailyStepsView(d domain.DailyStepRecord) DailyStepsView {
	return DailyStepsView{
		ID:        d.ID,
		UserID:    d.UserID,
		Date:      d.Date,
		StepCount: d.StepCount,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func (h *Handler) todaySteps(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r, auth.Steps, auth.Read)
	if !ok {
		return
	}
	today := domain.DateOf(h.now(), h.loc)
	resp := TodayStepsResponse{Date: today, DailyGoal: h.dailyGoal}
	if rec, found := ws.DailySteps.ForDate(ws.UserID, today); found {
		resp.StepCount = rec.StepCount
		resp.UpdatedAt = rec.UpdatedAt
	}
	if h.dailyGoal > 0 {
		resp.GoalProgress = min(1, float64(resp.StepCount)/float64(h.dailyGoal))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) weeklySteps(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r, auth.Steps, auth.Read)
	if !ok {
		return
	}
	monday := steps.WeekStart(h.now().In(h.loc))
	resp := WeeklyStepsResponse{WeekStart: domain.DateOf(monday, h.loc)}
	for i := range resp.Days {
		if rec, found := ws.DailySteps.ForDate(ws.UserID, domain.DateOf(monday.AddDate(0, 0, i), h.loc)); found {
			resp.Days[i] = rec.StepCount
			resp.Total += rec.StepCount
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) putDailySteps(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.workspace(w, r, auth.Steps, auth.Write)
	if !ok {
		return
	}
	date := chi.URLParam(r, "date")
	if _, err := domain.ParseDate(date, h.loc); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "date must be YYYY-MM-DD")
		return
	}
	var req StepCountRequest
	if !decode(w, r, &req) {
		return
	}

	rec, err := ws.DailySteps.Upsert(r.Context(), ws.UserID, date, req.StepCount)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDailyStepsView(rec))
}
