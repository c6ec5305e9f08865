/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/workers/*    Worker management, sessions, policy, payments
  /api/sessions/*   Session state transitions
  /api/payments/*   Payment revision/removal
  /api/policy/*     Global policy
  /api/payroll/*    Aggregate summary

SECURITY NOTE:
  Identity comes from X-Actor / X-Actor-Role headers set by a trusting
  gateway; there is no authentication middleware here.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor", "X-Actor-Role"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Worker routes
		r.Route("/workers", func(r chi.Router) {
			r.Get("/", h.ListWorkers)
			r.Post("/", h.CreateWorker)
			r.Get("/{username}", h.GetWorker)

			r.Post("/{username}/sessions", h.StartSession)
			r.Get("/{username}/sessions", h.ListSessions)
			r.Get("/{username}/status", h.GetStatus)

			r.Get("/{username}/policy", h.GetEffectivePolicy)
			r.Put("/{username}/policy", h.SetOverride)
			r.Delete("/{username}/policy", h.ClearOverride)

			r.Post("/{username}/payments", h.CreatePayment)
			r.Get("/{username}/payments", h.ListPayments)
			r.Get("/{username}/payroll", h.GetWorkerSummary)
		})

		// Session transition routes
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/{id}/pause", h.PauseSession)
			r.Post("/{id}/resume", h.ResumeSession)
			r.Post("/{id}/end", h.EndSession)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Patch("/{id}", h.RevisePayment)
			r.Delete("/{id}", h.RemovePayment)
		})

		// Global policy routes
		r.Route("/policy", func(r chi.Router) {
			r.Get("/global", h.GetGlobalPolicy)
			r.Put("/global", h.UpdateGlobalPolicy)
		})

		// Aggregate payroll routes
		r.Route("/payroll", func(r chi.Router) {
			r.Get("/summary", h.GetAggregateSummary)
		})
	})

	return r
}
