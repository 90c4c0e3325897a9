// Package router sets up all HTTP routes and middleware chains for the
// agora API. Routes are split into a public read group, an admin group
// guarded by a bearer token, and the connection monitor endpoints.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agora/internal/handlers"
	"agora/internal/middleware"
)

// Deps holds everything the router wires together.
type Deps struct {
	Categories *handlers.Categories
	Reconcile  *handlers.Reconcile
	Connection *handlers.Connection

	// AdminTokenHash is the bcrypt hash of the admin bearer token. Empty
	// disables the admin routes.
	AdminTokenHash string

	// AdminLimiter throttles admin requests per client. Nil disables it.
	AdminLimiter *middleware.RateLimiter

	// ConnectionLimiter throttles the connection endpoints that trigger
	// backend probes. Nil disables it.
	ConnectionLimiter *middleware.RateLimiter

	// Metrics is the registry served on /metrics and used for HTTP
	// metrics. Nil leaves both out.
	Metrics *prometheus.Registry

	// Backend, when set, is pinged by /health.
	Backend Pinger
}

// Pinger reports whether the data backend answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(d Deps) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)
	if d.Metrics != nil {
		r.Use(middleware.NewHTTPMetrics(d.Metrics).Middleware)
	}

	// Health check and metrics, no auth.
	r.Get("/health", healthHandler(d.Backend))
	if d.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		// Public reads. The admin group below adds write methods on the
		// same paths.
		r.Get("/categories", d.Categories.List)
		r.Get("/sidebar", d.Categories.Sidebar)

		// Connection monitor.
		r.Route("/connection", func(r chi.Router) {
			r.Get("/", d.Connection.State)
			r.Get("/ws", d.Connection.Stream)
			r.Group(func(r chi.Router) {
				if d.ConnectionLimiter != nil {
					r.Use(d.ConnectionLimiter.Middleware)
				}
				r.Post("/check", d.Connection.Check)
				r.Get("/wait", d.Connection.Wait)
			})
		})

		// Admin area.
		r.Group(func(r chi.Router) {
			if d.AdminLimiter != nil {
				r.Use(d.AdminLimiter.Middleware)
			}
			r.Use(middleware.RequireAdmin(d.AdminTokenHash))

			r.Post("/categories", d.Categories.Create)
			r.Post("/categories/reorder", d.Categories.Reorder)
			r.Get("/categories/deleted", d.Categories.ListDeleted)
			r.Post("/categories/deleted/{id}/restore", d.Categories.Restore)
			r.Put("/categories/{id}", d.Categories.Update)
			r.Delete("/categories/{id}", d.Categories.Delete)

			r.Post("/reconcile/sync", d.Reconcile.Sync)
			r.Post("/reconcile/cleanup", d.Reconcile.Cleanup)
			r.Post("/reconcile/repair", d.Reconcile.Repair)
		})
	})

	return r
}

// healthPingTimeout bounds the backend ping behind /health.
const healthPingTimeout = 2 * time.Second

// healthHandler reports whether the process is up and, when a backend is
// given, whether it answers a ping. The ping is not retried.
func healthHandler(backend Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if backend != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthPingTimeout)
			defer cancel()
			if err := backend.Ping(ctx); err != nil {
				slog.Warn("health ping failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
}
