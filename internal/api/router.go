package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/iconidentify/tubegrabba/internal/api/handler"
	mw "github.com/iconidentify/tubegrabba/internal/api/middleware"
)

// Handlers groups the HTTP handlers served by the router.
type Handlers struct {
	Download *handler.DownloadHandler
	Export   *handler.ExportHandler
	Health   *handler.HealthHandler
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(h Handlers, corsOrigins []string, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))

	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "Content-Length"},
		MaxAge:         86400,
	}))

	// Health endpoints
	r.Get("/health", h.Health.Live)
	r.Get("/ready", h.Health.Ready)

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.Health.Stats)

		r.Get("/download-options/{videoId}", h.Download.Options)
		r.Get("/download/{videoId}", h.Download.Download)

		r.Get("/metadata/{videoId}", h.Export.Metadata)
		r.Get("/thumbnail/{videoId}", h.Export.Thumbnail)
	})

	return r
}
