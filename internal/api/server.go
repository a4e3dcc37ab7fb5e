// Package api exposes the fleet's state over HTTP: heartbeats, the task
// board, and a health endpoint. The server is read-mostly; the only write
// surface is task intake.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/calbera/shepherd/internal/config"
	"github.com/calbera/shepherd/internal/heartbeat"
	"github.com/calbera/shepherd/internal/task"
)

// Server serves the ops API.
type Server struct {
	Config     *config.Config
	Tasks      task.Store
	Heartbeats heartbeat.Store
	Logger     *slog.Logger
	Version    string

	// clock is swappable for tests.
	clock func() time.Time
}

// WithClock injects a deterministic clock.
func (s *Server) WithClock(clock func() time.Time) *Server {
	s.clock = clock
	return s
}

func (s *Server) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/heartbeats", s.handleHeartbeats)
		r.Get("/tasks", s.handleTasks)
		r.Post("/tasks", s.handleCreateTask)
		r.Get("/tasks/{id}", s.handleTask)
	})
	return r
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: s.Version})
}

// heartbeatView decorates a heartbeat with derived liveness fields.
type heartbeatView struct {
	heartbeat.WorkerHeartbeat
	AgeSeconds float64 `json:"ageSeconds"`
	Stale      bool    `json:"stale"`
}

func (s *Server) handleHeartbeats(w http.ResponseWriter, r *http.Request) {
	all, err := s.Heartbeats.List()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	now := s.now()
	threshold := s.Config.Timing.StaleThreshold.Std()

	views := make([]heartbeatView, 0, len(all))
	for _, hb := range all {
		views = append(views, heartbeatView{
			WorkerHeartbeat: hb,
			AgeSeconds:      hb.Age(now).Seconds(),
			Stale:           hb.Stale(now, threshold),
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Slot < views[j].Slot })
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.Tasks.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if lane := r.URL.Query().Get("lane"); lane != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if t.Lane == task.Lane(lane) {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	s.writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.Tasks.Get(r.Context(), id)
	if errors.Is(err, task.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, t)
}

type createTaskRequest struct {
	Title              string        `json:"title"`
	Owner              string        `json:"owner"`
	Priority           task.Priority `json:"priority,omitempty"`
	Problem            string        `json:"problem,omitempty"`
	Scope              string        `json:"scope,omitempty"`
	AcceptanceCriteria []string      `json:"acceptanceCriteria,omitempty"`
	TimeoutMinutes     int           `json:"timeoutMinutes,omitempty"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Title == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("title is required"))
		return
	}
	if req.Owner != "" && !s.Config.HasSlot(req.Owner) {
		s.writeError(w, http.StatusBadRequest, errors.New("owner is not a configured slot"))
		return
	}
	if req.TimeoutMinutes < 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("timeoutMinutes must not be negative"))
		return
	}

	created, err := s.Tasks.Create(r.Context(), task.Task{
		Title:              req.Title,
		Owner:              req.Owner,
		Priority:           req.Priority,
		Problem:            req.Problem,
		Scope:              req.Scope,
		AcceptanceCriteria: req.AcceptanceCriteria,
		TimeoutMinutes:     req.TimeoutMinutes,
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.logger().Info("task created", "task", created.ID, "owner", created.Owner)
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger().Error("response encode failed", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger().Error("request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
