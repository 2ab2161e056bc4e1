package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/docmark/internal/config"
	"github.com/dgallion1/docmark/internal/render"
	"github.com/dgallion1/docmark/internal/stats"
	"github.com/dgallion1/docmark/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for docmark.
type Server struct {
	router chi.Router
	db     *storage.DB
	cache  *render.Cache
	stats  *stats.Render
	log    *slog.Logger
	cfg    config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(db *storage.DB, cache *render.Cache, rs *stats.Render, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		db:    db,
		cache: cache,
		stats: rs,
		log:   log,
		cfg:   cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Get("/api/stats/render", s.handleRenderStats)

		r.Route("/api/notebooks/{notebookID}/materials", func(r chi.Router) {
			r.Get("/", s.handleListMaterials)
			r.Post("/upload", s.handleUpload)

			r.Route("/{materialID}", func(r chi.Router) {
				r.Get("/", s.handleGetMaterial)
				r.Delete("/", s.handleDeleteMaterial)
				r.Get("/content", s.handleContent)
				r.Get("/rendered", s.handleRendered)

				r.Get("/highlights", s.handleListHighlights)
				r.Post("/highlights", s.handleCreateHighlight)
				r.Patch("/highlights/{highlightID}", s.handleUpdateHighlight)
				r.Delete("/highlights/{highlightID}", s.handleDeleteHighlight)
			})
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		jsonError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
