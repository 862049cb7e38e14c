// Package api provides HTTP API server components.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/wayfare/wayfare/config"
	"github.com/wayfare/wayfare/pkg/api/handlers"
	"github.com/wayfare/wayfare/pkg/api/middleware"
	"github.com/wayfare/wayfare/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Trip handles trip saga endpoints
	Trip *handlers.TripHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// WebSocket streams saga lifecycle events
	WebSocket *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}

	RegisterRoutes(r, cfg, handlers)

	return r
}

// RegisterRoutes registers all API routes. The wait endpoint is left
// outside the request timeout middleware; it enforces its own bound.
func RegisterRoutes(r chi.Router, cfg *config.Config, h *Handlers) {
	timeout := middleware.Timeout(cfg.Server.HTTP.ReadTimeout)

	r.Route("/api/v1", func(r chi.Router) {
		if h.Trip != nil {
			r.Route("/trips", func(r chi.Router) {
				r.With(timeout).Post("/", h.Trip.SubmitTrip)
				r.With(timeout).Get("/", h.Trip.ListTrips)
				r.With(timeout).Get("/{id}", h.Trip.GetTrip)
				r.Get("/{id}/wait", h.Trip.WaitTrip)
			})
		}

		if h.WebSocket != nil {
			r.Get("/events", h.WebSocket.ServeHTTP)
		}
	})

	if h.Health != nil {
		r.Get("/health", h.Health.Health)
		r.Get("/ready", h.Health.Ready)
	}
}
