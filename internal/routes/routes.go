package routes

import (
	"github.com/BradenHooton/bastion/internal/auth"
	"github.com/BradenHooton/bastion/internal/handlers"
	"github.com/BradenHooton/bastion/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Handlers groups the HTTP handlers mounted under /v1
type Handlers struct {
	Guard     *handlers.GuardHandler
	TwoFactor *handlers.TwoFactorHandler
	Profiles  *handlers.ProfileHandler
	Audit     *handlers.AuditHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, tokens auth.TokenValidator, rateLimit middleware.RateLimitConfig) {
	router.Route("/v1", func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokens))

		// Called by the login flow of the identity service
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleService))
			r.Use(middleware.RateLimitByCaller(rateLimit))
			r.Use(middleware.RateLimitByForwardedClient(rateLimit))

			r.Post("/guard/check", h.Guard.Check)
			r.Post("/guard/failures", h.Guard.RecordFailure)
			r.Post("/guard/successes", h.Guard.RecordSuccess)
			r.Post("/profiles", h.Profiles.Provision)
			r.Post("/2fa/verify", h.TwoFactor.Verify)
			r.Post("/audit/events", h.Audit.RecordEvent)
		})

		// End users managing their own second factor
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleUser, auth.RoleAdmin))
			r.Use(middleware.RateLimitByUser(rateLimit))

			r.Post("/2fa/setup", h.TwoFactor.Setup)
			r.Post("/2fa/enable", h.TwoFactor.Enable)
			r.Post("/2fa/disable", h.TwoFactor.Disable)
			r.Post("/2fa/backup-codes", h.TwoFactor.RegenerateBackupCodes)
			r.Get("/2fa/status", h.TwoFactor.Status)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))
			r.Use(middleware.RateLimitByUser(rateLimit))

			r.Get("/audit/users/{id}", h.Audit.UserLogs)
			r.Get("/audit/failed-logins", h.Audit.FailedLogins)
			r.Get("/audit/suspicious", h.Audit.Suspicious)
			r.Get("/audit/stats", h.Audit.Stats)
			r.Get("/profiles/{id}", h.Profiles.Get)
			r.Post("/profiles/{id}/unlock", h.Profiles.Unlock)
		})
	})
}
