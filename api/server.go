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
  3. RequestID:  Unique ID per request, echoed as the correlation id
  4. CORS:       Cross-origin requests for frontend
  5. Actor:      Resolves the caller from gateway-injected headers

ROUTE GROUPS:
  /api/entries/*        Time entry CRUD, audit trail, status ledger
  /api/statements/*     Assembly, approval workflow, scoped listings
  /api/rates/*          Rate lookup and rollover
  /api/surcharges/*     Holiday surcharge rules (admin)
  /api/quarters         Billing quarters
  /api/limits/*         Quarterly hour limits

SECURITY NOTE:
  Actor identity comes from headers the gateway injects. The router
  rejects requests without an actor id; it does not verify the headers
  themselves. See actor.go.

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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID", "X-Managed-Departments", "X-Actor-Office", "X-Actor-Admin"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(actorMiddleware)

		// Time entry routes
		r.Route("/entries", func(r chi.Router) {
			r.Post("/", h.CreateEntry)
			r.Get("/drafts", h.ListDrafts)
			r.Get("/{id}", h.GetEntry)
			r.Put("/{id}", h.UpdateEntry)
			r.Delete("/{id}", h.DeleteEntry)
			r.Get("/{id}/audit", h.GetEntryAudit)
			r.Get("/{id}/history", h.GetEntryHistory)
		})

		// Statement routes
		r.Route("/statements", func(r chi.Router) {
			r.Post("/", h.AssembleStatements)
			r.Get("/mine", h.ListMyStatements)
			r.Get("/pending", h.ListPendingStatements)
			r.Get("/approved", h.ListApprovedStatements)
			r.Get("/payouts", h.ListPayouts)
			r.Get("/history", h.ListHistory)
			r.Post("/finalize-bulk", h.FinalizeBulk)
			r.Get("/{id}", h.GetStatement)
			r.Post("/{id}/entries", h.AddStatementEntry)
			r.Post("/{id}/approve", h.ApproveStatement)
			r.Post("/{id}/reject", h.RejectStatement)
			r.Post("/{id}/finalize", h.FinalizeStatement)
		})

		// Rate routes
		r.Route("/rates", func(r chi.Router) {
			r.Get("/current", h.ListCurrentRates)
			r.Get("/history", h.ListRateHistory)
			r.Post("/", h.UpdateRate)
		})

		// Surcharge routes
		r.Route("/surcharges", func(r chi.Router) {
			r.Get("/", h.ListSurcharges)
			r.Post("/", h.CreateSurcharge)
			r.Put("/{id}", h.UpdateSurcharge)
			r.Delete("/{id}", h.DeleteSurcharge)
		})

		// Quarter routes
		r.Route("/quarters", func(r chi.Router) {
			r.Get("/", h.ListQuarters)
			r.Post("/", h.SaveQuarter)
		})

		// Limit routes
		r.Route("/limits", func(r chi.Router) {
			r.Post("/", h.SetLimit)
			r.Get("/overview", h.LimitOverview)
		})
	})

	return r
}
