package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"duck-export/internal/middleware"
)

// RouterConfig holds the transport settings of the HTTP API.
type RouterConfig struct {
	RateLimit            middleware.RateLimitConfig
	MaxConcurrentExports int
	CORSAllowedOrigins   []string
	// Metrics serves GET /metrics when non-nil.
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter mounts the handler's endpoints with the standard middleware
// stack. ctx bounds background work such as rate-limit bookkeeping.
func NewRouter(ctx context.Context, h *APIHandler, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = h.logger
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID", "X-Export-ID", "X-Export-Rows", "X-Export-Chunks"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.RateLimit.RequestsPerSecond > 0 {
			r.Use(middleware.RateLimiter(ctx, cfg.RateLimit))
		}
		r.Post("/queries/validate", h.ValidateQuery)
		r.With(middleware.ConcurrencyLimit(cfg.MaxConcurrentExports)).Post("/exports", h.CreateExport)
	})
	return r
}
