// Package router sets up all HTTP routes and middleware chains for the
// taxonomy API. Reads are open; mutations go through the rate limiter.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"taxonomy/internal/handlers"
	"taxonomy/internal/middleware"
)

// New creates and returns the configured Chi router with all middleware
// and route groups wired up. A nil limiter disables rate limiting; an empty
// allowedOrigins list disables CORS.
func New(categories *handlers.Categories, limiter *middleware.RateLimiter, allowedOrigins []string) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecureHeaders)
	if len(allowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Accept", "Origin", middleware.RequestIDHeader},
			ExposedHeaders: []string{middleware.RequestIDHeader},
			MaxAge:         86400,
		}).Handler)
	}

	// Operational endpoints.
	r.Get("/health", healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/categories", func(r chi.Router) {
		r.Get("/", categories.List)
		r.Get("/tree/{id:[0-9]+}", categories.Tree)
		r.Get("/{id:[0-9]+}", categories.Get)

		// Mutations take the tree lock; keep bursts from one client in check.
		r.Group(func(r chi.Router) {
			if limiter != nil {
				r.Use(limiter.Middleware)
			}
			r.Post("/", categories.Create)
			r.Patch("/{id:[0-9]+}", categories.Update)
			r.Delete("/{id:[0-9]+}", categories.Delete)
		})
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
