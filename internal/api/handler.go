// Package api provides the HTTP handlers and router for the REST API.
package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"basekit/internal/middleware"
	"basekit/internal/service"
)

// Handler holds the services behind the HTTP API.
type Handler struct {
	records *service.RecordService
	admin   *service.AdminService
	schema  *service.SchemaService
	pool    *sql.DB
	logger  *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(records *service.RecordService, admin *service.AdminService, schema *service.SchemaService, pool *sql.DB, logger *slog.Logger) *Handler {
	return &Handler{
		records: records,
		admin:   admin,
		schema:  schema,
		pool:    pool,
		logger:  logger.With("component", "api"),
	}
}

// RouterOptions configures the middleware stack around the handlers.
type RouterOptions struct {
	Auth               func(http.Handler) http.Handler
	CORSAllowedOrigins []string
	RateLimit          middleware.RateLimitConfig
}

// Router assembles the full HTTP stack: request IDs, panic recovery, CORS,
// rate limiting, then token resolution and the API routes. The health check
// sits outside auth and rate limiting so probes are never throttled.
func Router(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimiter(opts.RateLimit))
		r.Use(opts.Auth)

		r.Route("/records/{table}", func(r chi.Router) {
			r.Get("/", h.listRecords)
			r.Post("/", h.createRecord)
			r.Patch("/", h.batchUpdateRecords)
			r.Get("/{id}", h.getRecord)
			r.Patch("/{id}", h.updateRecord)
			r.Delete("/{id}", h.deleteRecord)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole("admin"))
			r.Post("/users/{id}/ban", h.banUser)
			r.Post("/users/{id}/unban", h.unbanUser)
			r.Post("/users/{id}/role", h.setUserRole)
			r.Post("/users/{id}/password", h.setUserPassword)
			r.Post("/schema/reload", h.reloadSchema)
		})
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.pool.PingContext(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
