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
  4. CORS:       Cross-origin requests for the back-office frontend

ROUTE GROUPS:
  /api/agents/*      Agent directory and per-agent ledger
  /api/schedules/*   Commission schedule rows
  /api/policies/*    Policy registration and commission processing
  /api/debts/*       Debt snapshot mirror
  /api/payouts/*     Preview, commit, send

SECURITY NOTE:
  No authentication middleware currently. All endpoints are assumed to sit
  behind the agency's internal gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Agent routes
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Post("/", h.CreateAgent)
			r.Get("/{id}", h.GetAgent)
			r.Put("/{id}/active", h.SetAgentActive)
			r.Put("/{id}/destination", h.SetDestination)
			r.Get("/{id}/ledger", h.GetAgentLedger)
		})

		// Schedule routes
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.ListSchedules)
			r.Post("/", h.CreateSchedule)
		})

		// Policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}", h.GetPolicy)
			r.Post("/{id}/commissions", h.ProcessPolicy)
		})

		// Debt routes
		r.Route("/debts", func(r chi.Router) {
			r.Get("/{agentId}", h.GetDebt)
			r.Put("/{agentId}", h.SetDebt)
		})

		// Payout routes
		r.Route("/payouts", func(r chi.Router) {
			r.Post("/preview", h.PreviewPayout)
			r.Post("/commit", h.CommitPayout)
			r.Get("/{id}", h.GetBatch)
			r.Post("/{id}/send", h.SendBatch)
		})

		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
