package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignite/outreach-crm/internal/auth"
)

// RouteOptions carries the optional pieces of the router.
type RouteOptions struct {
	// AuthManager enables Google session login; nil disables it.
	AuthManager *auth.AuthManager
	// APIKey protects /api when AuthManager is nil, and opens the person
	// news endpoint when it is not.
	APIKey         string
	CORSOrigins    []string
	Health         *HealthChecker
	MetricsHandler http.Handler
}

var defaultCORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all routes.
func SetupRoutes(h *Handlers, opts RouteOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	// CORS - allow credentials for auth cookies
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := opts.Health
	if health == nil {
		health = NewHealthChecker(nil, nil)
	}
	r.Get("/health", health.HandleHealth)
	r.Get("/health/ready", health.HandleReadiness)

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	am := opts.AuthManager
	if am != nil {
		r.Get("/auth/login", am.HandleLogin)
		r.Get("/auth/callback", am.HandleCallback)
		r.Get("/auth/logout", am.HandleLogout)
		r.Get("/auth/user", am.HandleUserInfo)
	}

	var protect, protectNews func(http.Handler) http.Handler
	switch {
	case am != nil:
		protect, protectNews = am.RequireAuth, am.RequireAuthOrAPIKey
	case opts.APIKey != "":
		protect = auth.RequireAPIKey(opts.APIKey)
		protectNews = protect
	}

	guard := func(r chi.Router, mw func(http.Handler) http.Handler) {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/people", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				guard(r, protectNews)
				r.Get("/{id}/news", h.PersonNews)
			})
			r.Group(func(r chi.Router) {
				guard(r, protect)
				r.Get("/", h.ListPeople)
				r.Post("/", h.CreatePerson)
				r.Get("/{id}", h.GetPerson)
				r.Put("/{id}", h.UpdatePerson)
				r.Delete("/{id}", h.DeletePerson)
			})
		})

		r.Group(func(r chi.Router) {
			guard(r, protect)

			r.Get("/stats", h.GetStats)

			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", h.ListAccounts)
				r.Post("/", h.CreateAccount)
				r.Get("/{id}", h.GetAccount)
				r.Put("/{id}", h.UpdateAccount)
				r.Delete("/{id}", h.DeleteAccount)
			})

			r.Route("/triggers", func(r chi.Router) {
				r.Get("/", h.ListTriggers)
				r.Post("/", h.CreateTrigger)
				r.Get("/{id}", h.GetTrigger)
				r.Put("/{id}", h.UpdateTrigger)
				r.Delete("/{id}", h.DeleteTrigger)
				r.Post("/{id}/ignore", h.IgnoreTrigger)
			})

			r.Route("/messages", func(r chi.Router) {
				r.Get("/", h.ListMessages)
				r.Post("/", h.CreateMessage)
				r.Post("/promote-drafts", h.PromoteDrafts)
				r.Get("/{id}", h.GetMessage)
				r.Put("/{id}", h.UpdateMessage)
				r.Delete("/{id}", h.DeleteMessage)
				r.Post("/{id}/queue", h.QueueMessage)
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", h.ListConversations)
				r.Post("/", h.CreateConversation)
				r.Get("/{id}", h.GetConversation)
				r.Put("/{id}", h.UpdateConversation)
				r.Delete("/{id}", h.DeleteConversation)
			})

			if h.jobs != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.Get("/", h.ListJobs)
					r.Post("/{name}/run", h.RunJob)
					r.Post("/{name}/start", h.StartJob)
					r.Post("/{name}/stop", h.StopJob)
				})
			}
		})
	})

	return r
}

func jobName(r *http.Request) string {
	return chi.URLParam(r, "name")
}
