package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dgallion1/docmark/internal/annotation"
	"github.com/dgallion1/docmark/internal/layout"
	"github.com/dgallion1/docmark/internal/reconcile"
	"github.com/dgallion1/docmark/internal/render"
)

type renderedDocument struct {
	Format  render.Format    `json:"format"`
	Title   string           `json:"title"`
	HTML    string           `json:"html"`
	Applied []string         `json:"applied"`
	Skipped []reconcile.Skip `json:"skipped"`
}

type renderedPage struct {
	renderedDocument
	Page        int                 `json:"page"`
	PageCount   int                 `json:"page_count"`
	Width       float64             `json:"width"`
	Height      float64             `json:"height"`
	OverlayHTML string              `json:"overlay_html"`
	Overlays    []reconcile.Overlay `json:"overlays"`
}

// handleRendered returns the material as HTML with its highlights shown.
// Flowing documents carry in-place markers; PDFs return one page's text
// layer plus an overlay projected at ?scale.
func (s *Server) handleRendered(w http.ResponseWriter, r *http.Request) {
	m, data, ok := s.materialContent(w, r)
	if !ok {
		return
	}
	cached, err := s.cache.GetOrConvert(data, m.Filename, s.renderOptions())
	if errors.Is(err, render.ErrUnsupportedFormat) {
		jsonError(w, err.Error(), http.StatusUnsupportedMediaType)
		return
	}
	if err != nil {
		jsonError(w, "failed to render material: "+err.Error(), http.StatusUnprocessableEntity)
		return
	}
	hs, err := s.db.ListHighlights(r.Context(), m.ID)
	if err != nil {
		jsonError(w, "failed to list highlights: "+err.Error(), http.StatusInternalServerError)
		return
	}

	if cached.Paginated() {
		s.renderPage(w, r, cached, hs)
		return
	}

	start := time.Now()
	doc := cached.Clone()
	res := reconcile.ApplyInPlace(doc.Root, hs, reconcile.InPlaceOptions{CrossBlock: s.cfg.CrossBlockHighlights})
	out, err := render.RenderHTML(doc.Root)
	if err != nil {
		jsonError(w, "failed to serialize rendering", http.StatusInternalServerError)
		return
	}
	s.recordPass(doc.Format, start, res)

	writeJSON(w, http.StatusOK, renderedDocument{
		Format:  doc.Format,
		Title:   doc.Title,
		HTML:    out,
		Applied: nonNil(res.Applied),
		Skipped: nonNil(res.Skipped),
	})
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, doc *render.Rendering, hs []annotation.Highlight) {
	pageNum := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			jsonError(w, "invalid page: "+v, http.StatusBadRequest)
			return
		}
		pageNum = n
	}
	scale := 1.0
	if v := r.URL.Query().Get("scale"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			jsonError(w, "invalid scale: "+v, http.StatusBadRequest)
			return
		}
		scale = f
	}
	page, ok := doc.Page(pageNum)
	if !ok {
		jsonError(w, "page out of range", http.StatusNotFound)
		return
	}

	start := time.Now()
	var origin layout.Point
	m := render.NewLayerMeasurer(page, scale, origin)
	overlays, res := reconcile.Project(page.Layer, pageNum, origin, m, hs)

	layerHTML, err := render.RenderHTML(page.Layer)
	if err != nil {
		jsonError(w, "failed to serialize page", http.StatusInternalServerError)
		return
	}
	overlayHTML, err := render.RenderHTML(reconcile.RenderOverlay(overlays))
	if err != nil {
		jsonError(w, "failed to serialize overlay", http.StatusInternalServerError)
		return
	}
	s.recordPass(doc.Format, start, res)

	writeJSON(w, http.StatusOK, renderedPage{
		renderedDocument: renderedDocument{
			Format:  doc.Format,
			Title:   doc.Title,
			HTML:    layerHTML,
			Applied: nonNil(res.Applied),
			Skipped: nonNil(res.Skipped),
		},
		Page:        pageNum,
		PageCount:   doc.PageCount(),
		Width:       page.Width * scale,
		Height:      page.Height * scale,
		OverlayHTML: overlayHTML,
		Overlays:    nonNil(overlays),
	})
}

func (s *Server) recordPass(f render.Format, start time.Time, res reconcile.Result) {
	if s.stats != nil {
		s.stats.RecordPass(string(f), time.Since(start), len(res.Applied), len(res.Skipped))
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
