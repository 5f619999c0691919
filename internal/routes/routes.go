package routes

import (
	"net/http"

	"github.com/BradenHooton/loginguard/internal/auth"
	"github.com/BradenHooton/loginguard/internal/handlers"
	"github.com/BradenHooton/loginguard/internal/middleware"
	"github.com/BradenHooton/loginguard/internal/models"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
	"github.com/go-chi/chi/v5"
)

// RouteConfig carries the pieces RegisterRoutes wires together
type RouteConfig struct {
	Security       *handlers.SecurityHandler
	Health         *handlers.HealthHandler
	Metrics        http.Handler
	TokenValidator auth.TokenValidator // nil disables dashboard authentication
	AnalyzeLimit   middleware.RateLimitConfig
	DashboardLimit middleware.RateLimitConfig
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, cfg RouteConfig) {
	authEnabled := cfg.TokenValidator != nil

	router.NotFound(pkghttp.NotFoundHandler)
	router.MethodNotAllowed(pkghttp.MethodNotAllowedHandler)

	router.Get("/health", cfg.Health.Health)
	if cfg.Metrics != nil {
		router.Handle("/metrics", cfg.Metrics)
	}

	// Called by the authentication front end for every attempt
	router.With(middleware.RateLimitByIP(cfg.AnalyzeLimit)).Post("/security/analyze-login", cfg.Security.AnalyzeLogin)

	// Dashboard routes
	router.Group(func(r chi.Router) {
		r.Use(auth.DashboardAuth(cfg.TokenValidator))
		r.Use(middleware.RateLimitByOperator(cfg.DashboardLimit))

		r.Get("/security/stats", cfg.Security.GetStats)
		r.Get("/security/dashboard", cfg.Security.GetDashboard)
		r.Get("/security/attacks", cfg.Security.GetRecentAttacks)
		r.Get("/security/events", cfg.Security.GetRecentEvents)
		r.Get("/security/login-stats", cfg.Security.GetLoginStats)
		r.Get("/security/ledger/stats", cfg.Security.GetLedgerStats)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin, authEnabled))
			r.Delete("/security/events/recent", cfg.Security.ClearRecentEvents)
		})
	})
}
