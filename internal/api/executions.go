package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/runbook/internal/model"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodySize      = 1 << 20 // 1 MB
)

// listExecutionsResponse wraps the execution summaries in start order.
type listExecutionsResponse struct {
	Executions []model.Summary `json:"executions"`
	Total      int             `json:"total"`
}

// eventsResponse is the cached-output replay for one execution.
type eventsResponse struct {
	ExecutionID string        `json:"execution_id"`
	Events      []model.Event `json:"events"`
}

// inputRequest is the JSON body for POST /v1/executions/{id}/input.
type inputRequest struct {
	Content string `json:"content"`
}

// listRunsResponse wraps the paginated run-history response.
type listRunsResponse struct {
	Runs   []*model.Run `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	summaries := s.engine.ListAll()
	if summaries == nil {
		summaries = []model.Summary{}
	}

	s.writeJSON(w, http.StatusOK, listExecutionsResponse{
		Executions: summaries,
		Total:      len(summaries),
	})
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, ok := s.engine.GetStatus(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, ok := s.engine.GetStatus(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	events := status.CachedEvents
	if events == nil {
		events = []model.Event{}
	}

	s.writeJSON(w, http.StatusOK, eventsResponse{
		ExecutionID: id,
		Events:      events,
	})
}

func (s *Server) handlePostInput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, ok := s.engine.GetStatus(id); !ok {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	var req inputRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" {
		s.writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	s.engine.WriteInput(id, req.Content)
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// killSettleTimeout bounds how long the kill handler waits for the engine
// loop to record the terminal state before answering with whatever it has.
const killSettleTimeout = 2 * time.Second

func (s *Server) handleKillExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, ok := s.engine.GetStatus(id); !ok {
		s.writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	s.engine.Kill(id)

	// The failed state lands asynchronously, via the killed process's EOF;
	// wait for it so the response reflects the outcome. A run that already
	// timed out stays running and just rides out the deadline.
	deadline := time.Now().Add(killSettleTimeout)
	for {
		status, ok := s.engine.GetStatus(id)
		if !ok {
			s.writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		if status.State != model.StateRunning || time.Now().After(deadline) {
			s.writeJSON(w, http.StatusOK, status)
			return
		}
		select {
		case <-r.Context().Done():
			s.writeJSON(w, http.StatusOK, status)
			return
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", defaultListLimit)
	offset := parseIntQuery(r, "offset", 0)

	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	runs, total, err := s.store.ListRuns(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	if runs == nil {
		runs = []*model.Run{}
	}

	s.writeJSON(w, http.StatusOK, listRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// parseIntQuery parses an integer query parameter with a default value.
func parseIntQuery(r *http.Request, key string, defaultVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
