package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/docmark/internal/annotation"
	"github.com/dgallion1/docmark/internal/render"
	"github.com/dgallion1/docmark/internal/storage"
	"github.com/go-chi/chi/v5"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	notebookID := chi.URLParam(r, "notebookID")

	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "file is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	filename := sanitizeFilename(header.Filename)
	format, err := render.FormatOf(filename)
	if err != nil {
		jsonError(w, fmt.Sprintf("unsupported file type: %s", filepath.Ext(filename)), http.StatusUnsupportedMediaType)
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		jsonError(w, fmt.Sprintf("file exceeds max size (%d bytes)", s.cfg.MaxUploadBytes), http.StatusRequestEntityTooLarge)
		return
	}

	ctx := r.Context()
	hash := render.ContentHashHex(data)
	if existing, err := s.db.FindMaterialByHash(ctx, notebookID, hash); err == nil {
		writeJSON(w, http.StatusOK, existing)
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.log.Error("dedupe lookup", "notebook", notebookID, "error", err)
		jsonError(w, "failed to store material", http.StatusInternalServerError)
		return
	}

	// Reject documents that cannot be rendered before storing them.
	rendering, err := s.cache.GetOrConvert(data, filename, s.renderOptions())
	if err != nil {
		s.log.Warn("render upload", "filename", filename, "error", err)
		jsonError(w, "cannot render document: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = rendering.Title
	}

	m, err := s.db.CreateMaterial(ctx, annotation.Material{
		NotebookID:  notebookID,
		Title:       title,
		Filename:    filename,
		Format:      string(format),
		ContentHash: hash,
	}, data)
	if err != nil {
		s.log.Error("create material", "notebook", notebookID, "error", err)
		jsonError(w, "failed to store material", http.StatusInternalServerError)
		return
	}
	s.log.Info("material uploaded", "notebook", notebookID, "material", m.ID, "format", format, "size", m.Size)
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleListMaterials(w http.ResponseWriter, r *http.Request) {
	ms, err := s.db.ListMaterials(r.Context(), chi.URLParam(r, "notebookID"))
	if err != nil {
		jsonError(w, "failed to list materials: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	m, ok := s.material(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMaterial(w http.ResponseWriter, r *http.Request) {
	err := s.db.DeleteMaterial(r.Context(), chi.URLParam(r, "notebookID"), chi.URLParam(r, "materialID"))
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, "material not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "failed to delete material: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	m, data, ok := s.materialContent(w, r)
	if !ok {
		return
	}
	contentType := "application/octet-stream"
	if ct, found := render.ContentTypes[render.Format(m.Format)]; found {
		contentType = ct
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", m.Filename))
	w.Write(data)
}

// material loads the material named by the route, writing a 404 when it
// does not exist in the notebook.
func (s *Server) material(w http.ResponseWriter, r *http.Request) (annotation.Material, bool) {
	m, err := s.db.GetMaterial(r.Context(), chi.URLParam(r, "notebookID"), chi.URLParam(r, "materialID"))
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, "material not found", http.StatusNotFound)
		return annotation.Material{}, false
	}
	if err != nil {
		jsonError(w, "failed to load material: "+err.Error(), http.StatusInternalServerError)
		return annotation.Material{}, false
	}
	return m, true
}

func (s *Server) materialContent(w http.ResponseWriter, r *http.Request) (annotation.Material, []byte, bool) {
	m, data, err := s.db.MaterialContent(r.Context(), chi.URLParam(r, "notebookID"), chi.URLParam(r, "materialID"))
	if errors.Is(err, storage.ErrNotFound) {
		jsonError(w, "material not found", http.StatusNotFound)
		return annotation.Material{}, nil, false
	}
	if err != nil {
		jsonError(w, "failed to load material: "+err.Error(), http.StatusInternalServerError)
		return annotation.Material{}, nil, false
	}
	return m, data, true
}

func (s *Server) renderOptions() render.Options {
	return render.Options{FallbackPdftotext: s.cfg.PDFFallbackPdftotext}
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	// Remove any path separators that might have survived.
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
