/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/users        Registration
  /api/user         Current user's profile (auth)
  /api/auth/*       Session management (auth)
  /api/ideas/*      Ideas and voting (voting requires auth)

AUTHENTICATION:
  Bearer session tokens, validated by RequireUser against the session
  store. Idea listing and lookup are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: session middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ideaforge/vote-engine/session"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, sessions session.Store) *chi.Mux {
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

	requireUser := RequireUser(sessions)

	r.Route("/api", func(r chi.Router) {
		// Registration is the only unauthenticated user endpoint.
		r.Post("/users", h.Register)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Get("/user", h.GetCurrentUser)
			r.Post("/auth/logout", h.Logout)
		})

		r.Route("/ideas", func(r chi.Router) {
			r.Get("/", h.ListIdeas)
			r.Get("/{ideaId}", h.GetIdea)

			r.Group(func(r chi.Router) {
				r.Use(requireUser)
				r.Post("/", h.CreateIdea)
				r.Post("/{ideaId}/vote", h.Vote)
			})
		})
	})

	return r
}
