/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for a dashboard frontend

ROUTE GROUPS:
  /api/tenants/{id}/*   Ledger and settings operations
  /api/admin/*          Admin operations
  /share/{id}/{date}    Token-gated read-only bill

SECURITY NOTE:
  The /share route is the only endpoint with its own gate (the signed
  token). Everything under /api trusts the caller, the way the engine
  trusts its command layer.

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
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/tenants/{id}", func(r chi.Router) {
			// Lifecycle
			r.Post("/start", h.StartDay)
			r.Post("/stop", h.StopDay)
			r.Post("/clear", h.ClearToday)

			// Recording
			r.Post("/transactions", h.RecordTransaction)
			r.Post("/corrections", h.RecordCorrection)
			r.Post("/returns", h.RecordReturn)
			r.Get("/bill", h.GetBill)
			r.Post("/sync", h.SyncNetAmounts)

			// Settings
			r.Route("/settings", func(r chi.Router) {
				r.Post("/rates", h.SetFeeRate)
				r.Post("/forex", h.SetForexRate)
				r.Post("/display", h.SetDisplayMode)
				r.Post("/decimals", h.SetDecimals)
			})
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/rollover", h.TriggerRollover)
		})
	})

	// Read-only share surface
	r.Get("/share/{id}/{date}", h.SharedBill)

	return r
}
