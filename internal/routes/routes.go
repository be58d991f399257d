package routes

import (
	"log/slog"

	"github.com/ehgzao/Shipper-sub001/internal/handlers"
	"github.com/ehgzao/Shipper-sub001/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes. Every /v1 endpoint
// requires the service API key; the attempt and captcha endpoints
// additionally get per-IP back-pressure.
func RegisterRoutes(
	router chi.Router,
	securityHandler *handlers.SecurityHandler,
	auditHandler *handlers.AuditHandler,
	apiKey string,
	ingressLimit middleware.RateLimitConfig,
	logger *slog.Logger,
) {
	router.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireAPIKey(apiKey, logger))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(ingressLimit))
			r.Post("/login-attempts", securityHandler.RecordAttempt)
			r.Post("/captcha/verify", securityHandler.VerifyCaptcha)
		})

		r.Get("/lockouts/{email}", securityHandler.LockoutStatus)
		r.Post("/rate-limits/check", securityHandler.CheckRateLimit)

		r.Post("/audit-logs", auditHandler.CreateAuditLog)
		r.Get("/audit-logs", auditHandler.ListAuditLogs)
	})
}
