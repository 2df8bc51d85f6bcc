/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the back office

ROUTE GROUPS:
  /api/venues, /api/concierges, /api/partners   Party management
  /api/bookings/*                               Confirmation and earnings
  /api/users/*                                  Per-user earnings
  /api/admin/*                                  Batch recalculation
  /api/reports/*                                XLSX exports
  /api/reset                                    Database reset (dev only)

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

// RouterOptions tunes the router. Zero values fall back to local defaults.
type RouterOptions struct {
	AllowedOrigins []string
	// EnableReset mounts POST /api/reset.
	EnableReset bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/venues", h.CreateVenue)
		r.Post("/concierges", h.CreateConcierge)

		r.Route("/partners", func(r chi.Router) {
			r.Post("/", h.CreatePartner)
			r.Get("/{id}", h.GetPartner)
		})

		r.Route("/bookings", func(r chi.Router) {
			r.Post("/", h.CreateBooking)
			r.Get("/{id}", h.GetBooking)
			r.Post("/{id}/confirm", h.ConfirmBooking)
			r.Post("/{id}/recalculate", h.RecalculateBooking)
			r.Post("/{id}/preview", h.PreviewBooking)
			r.Get("/{id}/earnings", h.GetBookingEarnings)
		})

		r.Get("/users/{id}/earnings", h.GetUserEarnings)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/recalculate", h.Recalculate)
			r.Post("/partners/{id}/reset", h.ResetPartner)
			r.Get("/policy", h.GetPolicy)
		})

		r.Get("/reports/earnings.xlsx", h.EarningsReport)

		if opts.EnableReset {
			r.Post("/reset", h.ResetDatabase)
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
