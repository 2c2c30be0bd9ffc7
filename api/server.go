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
  /api/orgs/*          Organization management
  /api/drivers/*       Driver/carrier management and settlements
  /api/profiles/*      Compensation profiles
  /api/assignments/*   Profile assignments and stars
  /api/loads/*         Loads, legs, splits, recalculation
  /api/items/*         Line item lock/delete
  /api/admin/*         Sweeps and audit records
  /api/scenarios/*     Demo scenarios

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Organization routes
		r.Route("/orgs", func(r chi.Router) {
			r.Get("/", h.ListOrganizations)
			r.Post("/", h.CreateOrganization)
		})

		// Driver routes
		r.Route("/drivers", func(r chi.Router) {
			r.Get("/", h.ListDrivers)
			r.Post("/", h.CreateDriver)
			r.Get("/{id}", h.GetDriver)
			r.Get("/{id}/assignments", h.GetDriverAssignments)
			r.Get("/{id}/settlement", h.GetDriverSettlement)
		})

		// Profile routes
		r.Route("/profiles", func(r chi.Router) {
			r.Get("/", h.ListProfiles)
			r.Post("/", h.CreateProfile)
			r.Get("/{id}", h.GetProfile)
			r.Post("/{id}/default", h.SetDefaultProfile)
		})

		// Assignment routes
		r.Route("/assignments", func(r chi.Router) {
			r.Post("/", h.CreateAssignment)
			r.Post("/{id}/star", h.StarAssignment)
			r.Delete("/{id}", h.DeleteAssignment)
		})

		// Load routes
		r.Route("/loads", func(r chi.Router) {
			r.Get("/", h.ListLoads)
			r.Post("/", h.CreateLoad)
			r.Get("/{id}", h.GetLoad)
			r.Post("/{id}/split", h.SplitLeg)
			r.Post("/{id}/recalc", h.RecalculateLoad)
			r.Put("/{id}/legs/{legID}", h.UpdateLeg)
			r.Post("/{id}/legs/{legID}/recalc", h.RecalculateLeg)
			r.Get("/{id}/legs/{legID}/pay", h.GetLegPay)
			r.Post("/{id}/legs/{legID}/items", h.AddManualItem)
		})

		// Item routes
		r.Route("/items", func(r chi.Router) {
			r.Post("/{id}/lock", h.LockItem)
			r.Delete("/{id}", h.DeleteItem)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
			r.Get("/recalc-runs", h.ListRecalcRuns)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
