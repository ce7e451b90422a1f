package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mw "github.com/kiranshivaraju/jobleaser/internal/api/middleware"
	"github.com/kiranshivaraju/jobleaser/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	LoginHandler        http.HandlerFunc
	ConfirmLoginHandler http.HandlerFunc
	NextJobHandler      http.HandlerFunc
	ReportResultHandler http.HandlerFunc
	JobStatusHandler    http.HandlerFunc

	CreateAgentHandler http.HandlerFunc
	ListAgentsHandler  http.HandlerFunc
	ImportJobsHandler  http.HandlerFunc
	RequeueJobHandler  http.HandlerFunc
	JobStatsHandler    http.HandlerFunc
	CreatePoolHandler  http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		response.Error(w, http.StatusNotFound, "RESOURCE_NOT_FOUND", "Route not found", nil)
	})

	// Public routes
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))
	r.Post("/api/v1/auth/login", orNotImplemented(deps.LoginHandler))

	// Agent routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Post("/api/v1/auth/confirm-login", orNotImplemented(deps.ConfirmLoginHandler))
		r.Get("/api/v1/jobs/next", orNotImplemented(deps.NextJobHandler))
		r.Post("/api/v1/jobs/result", orNotImplemented(deps.ReportResultHandler))
		r.Get("/api/v1/jobs/{jobID}", orNotImplemented(deps.JobStatusHandler))
	})

	// Admin routes
	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(deps.Auth.RequireAdmin)

		r.Post("/agents", orNotImplemented(deps.CreateAgentHandler))
		r.Get("/agents", orNotImplemented(deps.ListAgentsHandler))
		r.Post("/jobs", orNotImplemented(deps.ImportJobsHandler))
		r.Get("/jobs/stats", orNotImplemented(deps.JobStatsHandler))
		r.Post("/jobs/{jobID}/requeue", orNotImplemented(deps.RequeueJobHandler))
		r.Post("/sequence-pools", orNotImplemented(deps.CreatePoolHandler))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
