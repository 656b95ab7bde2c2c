package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/runbook/internal/scripts"
)

// listScriptsResponse wraps the catalog listing.
type listScriptsResponse struct {
	Scripts []scripts.Script `json:"scripts"`
	Total   int              `json:"total"`
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	list := s.catalog.List()
	if list == nil {
		list = []scripts.Script{}
	}

	s.writeJSON(w, http.StatusOK, listScriptsResponse{
		Scripts: list,
		Total:   len(list),
	})
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sc, ok := s.catalog.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "script not found")
		return
	}

	s.writeJSON(w, http.StatusOK, sc)
}
