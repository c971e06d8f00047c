package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"timersync/internal/domain"
	"timersync/internal/metrics"
	"timersync/internal/notify"
	"timersync/internal/usecase"
)

// HTTPServer returns a configured http.Server exposing the timer panel.
// Call ListenAndServe on the returned server in a goroutine and Shutdown it on exit.
func (a *App) HTTPServer(addr string) *http.Server {
	srv := &http.Server{Addr: addr, Handler: a.Router(), ReadHeaderTimeout: 10 * time.Second}
	a.log.Info("http panel configured", slog.String("addr", addr))
	return srv
}

// Router builds the panel routes.
func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(a.log))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/status", a.handleStatus)
	r.Post("/start", a.handleStart)
	r.Post("/stop", a.handleStop)
	r.Post("/reconcile", a.handleReconcile)
	r.Get("/today", a.handleToday)
	r.Get("/history", a.handleHistory)
	r.Post("/resume/{entryID}", a.handleResume)
	r.Get("/ws", a.handleWebSocket)
	r.Handle("/metrics", metrics.Handler())
	return r
}

type statusResponse struct {
	notify.Snapshot
	Elapsed string `json:"elapsed"`
	Phase   string `json:"phase"`
}

func (a *App) statusBody() statusResponse {
	s := a.Engine.Snapshot()
	return statusResponse{Snapshot: s, Elapsed: s.Elapsed(), Phase: a.Engine.Phase().String()}
}

func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.statusBody())
}

type startBody struct {
	Description string   `json:"description"`
	WorkspaceID string   `json:"workspaceId"`
	ProjectID   string   `json:"projectId"`
	TaskID      string   `json:"taskId"`
	TagIDs      []string `json:"tagIds"`
	Repo        string   `json:"repo"`
	Branch      string   `json:"branch"`
	Labels      []string `json:"labels"`
}

func (a *App) handleStart(w http.ResponseWriter, r *http.Request) {
	var body startBody
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	_, err := a.Engine.Start(r.Context(), usecase.StartRequest{
		Description: body.Description,
		WorkspaceID: body.WorkspaceID,
		ProjectID:   body.ProjectID,
		TaskID:      body.TaskID,
		TagIDs:      body.TagIDs,
		Repo:        body.Repo,
		Branch:      body.Branch,
		Labels:      body.Labels,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a.statusBody())
}

func (a *App) handleStop(w http.ResponseWriter, r *http.Request) {
	res, err := a.Engine.Stop(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"alreadyStopped": res.AlreadyStopped,
		"wasIdle":        res.WasIdle,
	})
}

func (a *App) handleReconcile(w http.ResponseWriter, r *http.Request) {
	out, err := a.Engine.Reconcile(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"outcome": out, "phase": a.Engine.Phase().String()})
}

type todayResponse struct {
	Day          string  `json:"day"`
	Entries      int     `json:"entries"`
	TotalSec     int64   `json:"totalSec"`
	RunningSec   int64   `json:"runningSec"`
	GoalSec      int64   `json:"goalSec"`
	RemainingSec int64   `json:"remainingSec"`
	Progress     float64 `json:"progress"`
}

func (a *App) handleToday(w http.ResponseWriter, r *http.Request) {
	loc, err := a.cfg.Location()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	t, err := a.Engine.Today(r.Context(), loc)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, todayResponse{
		Day:          t.Day.Format("2006-01-02"),
		Entries:      t.Entries,
		TotalSec:     int64(t.Total().Seconds()),
		RunningSec:   int64(t.Running.Seconds()),
		GoalSec:      int64(t.Goal.Seconds()),
		RemainingSec: int64(t.Remaining().Seconds()),
		Progress:     t.Progress(),
	})
}

type historyItem struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	ProjectID   string     `json:"projectId,omitempty"`
	TaskID      string     `json:"taskId,omitempty"`
	TagIDs      []string   `json:"tagIds,omitempty"`
	Start       time.Time  `json:"start"`
	End         *time.Time `json:"end,omitempty"`
	DurationSec int64      `json:"durationSec"`
}

func (a *App) handleHistory(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid days %q", v))
			return
		}
		days = n
	}
	entries, err := a.Engine.History(r.Context(), days)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	now := time.Now()
	items := make([]historyItem, 0, len(entries))
	for _, te := range entries {
		items = append(items, historyItem{
			ID:          te.ID,
			Description: te.Description,
			ProjectID:   te.ProjectID,
			TaskID:      te.TaskID,
			TagIDs:      te.TagIDs,
			Start:       te.Start,
			End:         te.End,
			DurationSec: int64(te.Duration(now).Seconds()),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *App) handleResume(w http.ResponseWriter, r *http.Request) {
	_, err := a.Engine.Resume(r.Context(), chi.URLParam(r, "entryID"))
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, a.statusBody())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsObserver forwards snapshots to one WebSocket client.
type wsObserver struct {
	send chan any
}

func (o *wsObserver) Render(s notify.Snapshot) {
	o.push(map[string]any{"type": "snapshot", "snapshot": s, "elapsed": s.Elapsed()})
}

func (o *wsObserver) Alert(al notify.Alert) {
	o.push(map[string]any{"type": "alert", "alert": al})
}

// push drops the message when the client is not keeping up.
func (o *wsObserver) push(msg any) {
	select {
	case o.send <- msg:
	default:
	}
}

func (a *App) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	obs := &wsObserver{send: make(chan any, 16)}
	id := a.Notifier.Subscribe(obs)
	obs.Render(a.Engine.Snapshot())

	// The request context ends with the upgrade; the read loop owns the lifetime.
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer func() {
		ping.Stop()
		a.Notifier.Unsubscribe(id)
		conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-obs.send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNetwork), errors.Is(err, domain.ErrNotFound):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"status": "error", "error": err.Error()})
}

// loggingMiddleware provides basic request logging.
func loggingMiddleware(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote", r.RemoteAddr),
				slog.Duration("dur", time.Since(start)),
			)
		})
	}
}
