package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/btouchard/oibench/internal/batch"
	"github.com/btouchard/oibench/internal/task"
)

type rootResponse struct {
	BatchID string   `json:"batch_id"`
	Tasks   []string `json:"tasks"`
}

type viewResponse struct {
	BatchID string `json:"batch_id"`
	batch.Snapshot
	Command  task.Command `json:"command"`
	Duration string       `json:"duration,omitempty"`
	Result   *task.Result `json:"result,omitempty"`
}

type stopResponse struct {
	Stopped bool `json:"stopped"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, rootResponse{
		BatchID: s.batch.ID(),
		Tasks:   s.batch.IDs(),
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}

	snap := e.Snapshot()
	resp := viewResponse{
		BatchID:  s.batch.ID(),
		Snapshot: snap,
		Command:  s.batch.Command().Redacted(),
	}
	if !snap.StartedAt.IsZero() {
		resp.Duration = snap.FormatDuration()
	}
	if res, done := e.Result(); done {
		res.Command = res.Command.Redacted()
		resp.Result = &res
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	stopped, err := s.batch.Stop(id)
	if errors.Is(err, batch.ErrUnknownTask) {
		http.Error(w, "unknown task: "+id, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if stopped {
		slog.Info("task log stream stopped by observer", "task_id", id, "remote", r.RemoteAddr)
	}
	writeJSON(w, http.StatusOK, stopResponse{Stopped: stopped})
}

// lookup resolves the taskID URL parameter, answering 404 when unknown.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*batch.Entry, bool) {
	id := chi.URLParam(r, "taskID")
	e, err := s.batch.Lookup(id)
	if err != nil {
		http.Error(w, "unknown task: "+id, http.StatusNotFound)
		return nil, false
	}
	return e, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Debug("writing response", "error", err)
	}
}
