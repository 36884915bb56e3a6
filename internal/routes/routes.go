package routes

import (
	"log/slog"

	"github.com/BradenHooton/turnstile/internal/auth"
	"github.com/BradenHooton/turnstile/internal/handlers"
	"github.com/BradenHooton/turnstile/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RouteConfig carries the per-group rate limits
type RouteConfig struct {
	WebhookLimit middleware.RateLimitConfig
	ServiceLimit middleware.RateLimitConfig
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	attemptHandler *handlers.AttemptHandler,
	webhookHandler *handlers.WebhookHandler,
	tokenManager *auth.TokenManager,
	config RouteConfig,
	logger *slog.Logger,
) {
	// Public routes - authenticated by payload signature
	router.With(middleware.RateLimitByIP(config.WebhookLimit)).Post("/webhooks/{provider}", webhookHandler.Receive)

	// Internal attempt API - service token required
	router.Route("/v1/attempts", func(r chi.Router) {
		r.Use(auth.ServiceAuth(tokenManager, logger))
		r.Use(middleware.RateLimitByService(config.ServiceLimit))

		r.Post("/check", attemptHandler.Check)
		r.Post("/", attemptHandler.Record)
		r.Delete("/", attemptHandler.Clear)
		r.Get("/summary", attemptHandler.Summary)
	})
}
