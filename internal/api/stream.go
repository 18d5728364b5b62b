package api

import (
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/auth"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/syncrepo"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = streamPongWait * 9 / 10
)

// StreamEnvelope wraps one repository state pushed over the stream.
type StreamEnvelope struct {
	Collection string `json:"collection"`
	Items      any    `json:"items"`
	IsLoading  bool   `json:"is_loading"`
	LastError  string `json:"last_error,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

func envelope[T, V any](collection string, state syncrepo.State[T], view func(T) V) StreamEnvelope {
	items := make([]V, 0, len(state.Items))
	for _, item := range state.Items {
		items = append(items, view(item))
	}
	return StreamEnvelope{
		Collection: collection,
		Items:      items,
		IsLoading:  state.IsLoading,
		LastError:  state.ErrorMessage(),
		Timestamp:  time.Now().Unix(),
	}
}

// originChecker accepts same-origin upgrades, plus any origin listed in allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// stream pushes the latest state of every collection the caller may read, then every change
// after that. Collections the caller has no read scope for are never sent.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	ws, err := h.workspaces.Get(r.Context(), caller.UserID)
	if err != nil {
		h.logger.Printf("load workspace for %s: %v", caller.UserID, err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "unable to load your data")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("stream upgrade: %v", err)
		return
	}
	defer conn.Close()
	streamClientsGauge.Inc()
	defer streamClientsGauge.Dec()

	var (
		tasks     <-chan syncrepo.State[domain.Task]
		reminders <-chan syncrepo.State[domain.Reminder]
		daily     <-chan syncrepo.State[domain.DailyStepRecord]
	)
	if caller.Allows(auth.Tasks, auth.Read) {
		ch, cancel := ws.Tasks.Subscribe()
		defer cancel()
		tasks = ch
	}
	if caller.Allows(auth.Reminders, auth.Read) {
		ch, cancel := ws.Reminders.Subscribe()
		defer cancel()
		reminders = ch
	}
	if caller.Allows(auth.Steps, auth.Read) {
		ch, cancel := ws.DailySteps.Subscribe()
		defer cancel()
		daily = ch
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(streamPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()
	// Reloads publish through the subscriptions above, so changes written by other
	// processes reach idle streams too.
	refresh := time.NewTicker(h.workspaces.RefreshInterval())
	defer refresh.Stop()

	for {
		var msg StreamEnvelope
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		case <-refresh.C:
			h.workspaces.Refresh(r.Context(), ws)
			continue
		case state := <-tasks:
			msg = envelope(syncrepo.CollectionTasks, state, toTaskView)
		case state := <-reminders:
			msg = envelope(syncrepo.CollectionReminders, state, toReminderView)
		case state := <-daily:
			msg = envelope(syncrepo.CollectionDailySteps, state, toDailyStepsView)
		}

		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Printf("stream write for %s: %v", ws.UserID, err)
			return
		}
	}
}
