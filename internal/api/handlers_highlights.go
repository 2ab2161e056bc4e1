package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/docmark/internal/annotation"
	"github.com/dgallion1/docmark/internal/render"
	"github.com/dgallion1/docmark/internal/storage"
	"github.com/go-chi/chi/v5"
)

const maxHighlightBody = 64 << 10

func (s *Server) handleListHighlights(w http.ResponseWriter, r *http.Request) {
	m, ok := s.material(w, r)
	if !ok {
		return
	}
	hs, err := s.db.ListHighlights(r.Context(), m.ID)
	if err != nil {
		jsonError(w, "failed to list highlights: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, hs)
}

func (s *Server) handleCreateHighlight(w http.ResponseWriter, r *http.Request) {
	m, ok := s.material(w, r)
	if !ok {
		return
	}

	var req annotation.CreateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxHighlightBody)).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := req.Validate(render.Format(m.Format).Paginated()); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h, err := s.db.CreateHighlight(r.Context(), m.ID, req)
	if err != nil {
		s.log.Error("create highlight", "material", m.ID, "error", err)
		jsonError(w, "failed to create highlight", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, h)
}

func (s *Server) handleUpdateHighlight(w http.ResponseWriter, r *http.Request) {
	m, ok := s.material(w, r)
	if !ok {
		return
	}

	var u annotation.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxHighlightBody)).Decode(&u); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if u.Color != nil && !u.Color.Valid() {
		jsonError(w, "invalid color: "+string(*u.Color), http.StatusBadRequest)
		return
	}

	h, err := s.db.UpdateHighlight(r.Context(), m.ID, chi.URLParam(r, "highlightID"), u)
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, "highlight not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error("update highlight", "material", m.ID, "error", err)
		jsonError(w, "failed to update highlight", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleDeleteHighlight(w http.ResponseWriter, r *http.Request) {
	m, ok := s.material(w, r)
	if !ok {
		return
	}
	err := s.db.DeleteHighlight(r.Context(), m.ID, chi.URLParam(r, "highlightID"))
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, "highlight not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to delete highlight: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
