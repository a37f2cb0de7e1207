/*
server.go - HTTP router and middleware configuration

PURPOSE:

	Configures the HTTP router (chi), middleware stack, and route definitions.
	This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
 1. Logger:     Request logging
 2. Recoverer:  Panic recovery (500 instead of crash)
 3. RequestID:  Unique ID per request for tracing
 4. CORS:       Cross-origin requests for the dashboard frontend
 5. Identity:   Caller extraction from trusted headers (all /api routes)

ROUTE GROUPS:

	/api/sessions/*    Clock in/out, remarks, summary, break start
	/api/breaks/*      Break end, notes
	/api/calls, /api/deposits  Activity logging
	/api/me/*          Caller-scoped reads
	/api/admin/*       Admin reads and configuration (RequireAdmin)
	/api/register      Profile creation
	/healthz           Liveness probe, no identity required

SEE ALSO:
  - handlers.go: Handler implementations
  - identity.go: Identity/RequireAdmin middleware
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
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-User-ID", "X-User-Role"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(Identity)

		// Session routes
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.ClockIn)
			r.Post("/{id}/clock-out", h.ClockOut)
			r.Put("/{id}/remarks", h.UpdateRemarks)
			r.Get("/{id}/summary", h.GetSummary)
			r.Post("/{id}/breaks", h.StartBreak)
		})

		// Break routes
		r.Route("/breaks", func(r chi.Router) {
			r.Post("/{id}/end", h.EndBreak)
			r.Put("/{id}/notes", h.UpdateBreakNotes)
		})

		// Activity routes
		r.Post("/calls", h.LogCall)
		r.Post("/deposits", h.LogDeposit)

		// Caller-scoped reads
		r.Route("/me", func(r chi.Router) {
			r.Get("/allowances", h.GetAllowances)
			r.Get("/stats", h.GetStats)
			r.Get("/sessions", h.GetHistory)
		})

		r.Post("/register", h.Register)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin)
			r.Get("/kpis", h.GetKpis)
			r.Get("/sessions/open", h.GetLiveSessions)
			r.Get("/settings", h.GetSettings)
			r.Put("/settings", h.UpdateSettings)
			r.Get("/allowances", h.GetAdminAllowances)
			r.Put("/allowances", h.UpdateAllowance)
			r.Get("/call-options", h.GetCallOptions)
			r.Put("/call-options", h.SaveCallOption)
			r.Get("/profiles", h.ListProfiles)
			r.Put("/profiles/{id}", h.UpdateProfile)
		})
	})

	return r
}
