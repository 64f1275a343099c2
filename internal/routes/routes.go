package routes

import (
	"log/slog"

	"github.com/BradenHooton/scribe/internal/auth"
	"github.com/BradenHooton/scribe/internal/handlers"
	"github.com/BradenHooton/scribe/internal/metrics"
	"github.com/BradenHooton/scribe/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// unauthenticatedLimit caps requests per IP before token validation
const unauthenticatedLimit = 300

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	userHandler *handlers.AdminUserHandler,
	campaignHandler *handlers.CampaignHandler,
	auditHandler *handlers.AuditHandler,
	tokenManager *auth.TokenManager,
	userRepo auth.UserRepository,
	adminLimit middleware.RateLimitConfig,
	logger *slog.Logger,
) {
	router.Handle("/metrics", metrics.Handler())

	// Admin routes: valid token, then a live admin account
	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(middleware.RateLimitConfig{RequestsPerMinute: unauthenticatedLimit}))
		r.Use(auth.AuthMiddleware(tokenManager))
		r.Use(middleware.RateLimitByAdmin(adminLimit))
		r.Use(auth.RequireAdmin(userRepo, logger))

		userHandler.RegisterRoutes(r)
		campaignHandler.RegisterRoutes(r)
		auditHandler.RegisterRoutes(r)
	})
}
