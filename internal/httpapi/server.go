// Package httpapi exposes the Task Registry over HTTP: the three routes
// a worker's MasterClient speaks against, wrapped in a plain
// net/http.ServeMux.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/taskmesh/dispatch/domain/scheduler"
	"github.com/taskmesh/dispatch/infrastructure/logging"
)

// Config configures the Server.
type Config struct {
	// Address is the HTTP listen address (default ":8080").
	Address string

	// ReadTimeout is the HTTP read timeout (default 10s).
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout (default 10s).
	WriteTimeout time.Duration
}

// Server wraps a scheduler.Registry behind the wire contract of
// spec.md §6: POST /task/assign, /task/submit, /task/heartbeat.
type Server struct {
	config     Config
	registry   scheduler.Registry
	httpServer *http.Server
	mux        *http.ServeMux

	// The Server holds no worker identity: no request body carries a
	// worker ID, so AssignTask is always called with anonymousWorkerID.
}

// New constructs a Server backed by registry.
func New(registry scheduler.Registry, cfg Config) *Server {
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	s := &Server{
		config:   cfg,
		registry: registry,
		mux:      http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the server's http.Handler, for use with
// httptest.NewServer in tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/task/assign", s.handleAssign)
	s.mux.HandleFunc("/task/submit", s.handleSubmit)
	s.mux.HandleFunc("/task/heartbeat", s.handleHeartbeat)
}

// Start runs the HTTP server until it returns (always a non-nil error,
// per net/http.Server.ListenAndServe).
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.Address,
		Handler:      s.mux,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// anonymousWorkerID is used when a request carries no worker identity.
// The wire contract of spec.md §6 does not thread one through; the
// registry only uses it for bookkeeping (memory variant: logging
// symmetry; redis variant: the per-worker lease queue key), so every
// HTTP-originated assignment shares this queue.
const anonymousWorkerID = "http"

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	task, ok, err := s.registry.AssignTask(r.Context(), anonymousWorkerID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, kindInternalError)
		logging.Error().
			Add(logging.ErrorField(err)).
			Add(logging.Component("httpapi")).
			Add(logging.Operation("assign_task")).
			Msg("assign task failed")
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.writeJSON(w, http.StatusOK, AssignResponse{
		ID:      task.ID,
		Problem: problemDTO{X: task.Problem.X},
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, kindInternalError)
		return
	}

	err := s.registry.SubmitTask(r.Context(), req.TaskID, scheduler.Solution{XSquared: req.XSquared})
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, scheduler.ErrTaskNotFound):
		s.writeError(w, http.StatusNotFound, kindTaskNotFound)
	default:
		s.writeError(w, http.StatusInternalServerError, kindInternalError)
		logging.Error().
			Add(logging.ErrorField(err)).
			Add(logging.TaskID(req.TaskID)).
			Add(logging.Component("httpapi")).
			Add(logging.Operation("submit_task")).
			Msg("submit task failed")
	}
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, kindInternalError)
		return
	}

	err := s.registry.SubmitHeartbeat(r.Context(), req.TaskID, req.Progress)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, scheduler.ErrTaskNotFound):
		s.writeError(w, http.StatusNotFound, kindTaskNotFound)
	case errors.Is(err, scheduler.ErrInvalidTaskStatus):
		s.writeError(w, http.StatusBadRequest, kindInvalidTaskStatus)
	default:
		s.writeError(w, http.StatusInternalServerError, kindInternalError)
		logging.Error().
			Add(logging.ErrorField(err)).
			Add(logging.TaskID(req.TaskID)).
			Add(logging.Component("httpapi")).
			Add(logging.Operation("submit_heartbeat")).
			Msg("submit heartbeat failed")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind string) {
	s.writeJSON(w, status, ErrorResponse{Kind: kind})
}
