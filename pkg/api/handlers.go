package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/delist-labs/delist/pkg/store"
	"github.com/delist-labs/delist/pkg/webform"
)

const defaultListLimit = 50

// Server exposes the operator surface over a plain ServeMux.
type Server struct {
	actions store.ActionStore
	jobs    store.JobStore
	proofs  store.ProofStore
	queue   *webform.Queue
	logger  *slog.Logger

	// reloadPolicies re-reads capability bundles from disk. Optional.
	reloadPolicies func() error
}

func NewServer(actions store.ActionStore, jobs store.JobStore, proofs store.ProofStore, queue *webform.Queue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{actions: actions, jobs: jobs, proofs: proofs, queue: queue, logger: logger}
}

// WithPolicyReload enables POST /policy/reload.
func (s *Server) WithPolicyReload(reload func() error) *Server {
	s.reloadPolicies = reload
	return s
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /actions", s.handleListActions)
	mux.HandleFunc("GET /actions/{id}", s.handleGetAction)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("POST /jobs/{id}/retry", s.handleRetryJob)
	mux.HandleFunc("POST /jobs/{id}/cancel", s.handleCancelJob)
	mux.HandleFunc("GET /proofs", s.handleListProofs)
	mux.HandleFunc("POST /policy/reload", s.handleReloadPolicies)
	return mux
}

func (s *Server) handleReloadPolicies(w http.ResponseWriter, r *http.Request) {
	if s.reloadPolicies == nil {
		WriteNotFound(w, r, "no capability bundle directory configured")
		return
	}
	if err := s.reloadPolicies(); err != nil {
		WriteError(w, r, http.StatusUnprocessableEntity, "Reload Failed", err.Error())
		return
	}
	s.logger.Info("capability bundles reloaded by operator")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	actions, err := s.actions.ListActions(r.Context(), listLimit(r))
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	action, err := s.actions.GetAction(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, r, "action "+id+" not found")
			return
		}
		WriteInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.jobs.ListJobs(r.Context(), listLimit(r))
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := s.jobs.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, r, "job "+id+" not found")
			return
		}
		WriteInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleRetryJob re-arms a terminally failed job. 409 when the job exists
// but is not in a failed state.
func (s *Server) handleRetryJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.jobs.GetJob(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, r, "job "+id+" not found")
			return
		}
		WriteInternal(w, r, err)
		return
	}
	ok, err := s.queue.Retry(r.Context(), id)
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	if !ok {
		WriteConflict(w, r, "job "+id+" is not in a retryable state")
		return
	}
	s.logger.Info("job re-armed by operator", "job_id", id)
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "queued"})
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Reason string `json:"reason"`
	}
	// An empty body is fine; a malformed one is not.
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		WriteBadRequest(w, r, "malformed JSON body")
		return
	}
	if body.Reason == "" {
		body.Reason = "operator request"
	}

	if _, err := s.jobs.GetJob(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			WriteNotFound(w, r, "job "+id+" not found")
			return
		}
		WriteInternal(w, r, err)
		return
	}
	if err := s.queue.Cancel(r.Context(), id, body.Reason); err != nil {
		WriteInternal(w, r, err)
		return
	}
	s.logger.Info("job cancelled by operator", "job_id", id, "reason", body.Reason)
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cancelled"})
}

func (s *Server) handleListProofs(w http.ResponseWriter, r *http.Request) {
	proofs, err := s.proofs.ListProofs(r.Context(), listLimit(r))
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proofs": proofs})
}

func listLimit(r *http.Request) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			return n
		}
	}
	return defaultListLimit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
