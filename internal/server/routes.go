package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bobmcallan/gatekeep/internal/permission"
)

// routes builds the chi router. Everything is served under /api.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		recoveryMiddleware(s.logger),
		corsMiddleware,
		correlationIDMiddleware,
		loggingMiddleware(s.logger, s.app.Metrics),
	)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	guard := func(names ...string) func(http.Handler) http.Handler {
		return s.RequirePermissions(permission.Permissions(names...))
	}

	r.Route("/api", func(r chi.Router) {
		// System
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleVersion)
		r.Method(http.MethodGet, "/metrics", s.app.Metrics.Handler())

		// Session auth
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/verify-email", s.handleVerifyEmail)
			r.Post("/resend-verification-by-email", s.handleResendVerificationByEmail)
			r.Post("/forgot-password", s.handleForgotPassword)
			r.Post("/reset-password", s.handleResetPassword)
			r.Get("/{provider}/config", s.handleFederatedConfig)
			r.Post("/{provider}/login", s.handleFederatedLogin)

			r.Group(func(r chi.Router) {
				r.Use(s.requireSession)
				r.Post("/logout", s.handleLogout)
				r.Get("/me", s.handleMe)
				r.Post("/resend-verification", s.handleResendVerification)
			})
		})

		// Authorization server
		r.Route("/oauth", func(r chi.Router) {
			r.Get("/authorize", s.handleAuthorizeInfo)
			r.With(s.requireSession).Post("/authorize", s.handleAuthorizeConsent)
			r.Post("/token", s.handleToken)
			r.Post("/token/refresh", s.handleTokenRefresh)
			r.Get("/me", s.handleOAuthMe)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)

			r.Get("/user/grants", s.handleListGrants)
			r.Delete("/user/grants", s.handleRevokeGrant)

			r.Route("/applications", func(r chi.Router) {
				r.Get("/", s.handleListApplications)
				r.Post("/", s.handleCreateApplication)
				r.Get("/{id}", s.handleGetApplication)
				r.Patch("/{id}", s.handleUpdateApplication)
				r.Delete("/{id}", s.handleDeleteApplication)
				r.Post("/{id}/regenerate-secret", s.handleRegenerateSecret)
			})

			r.Route("/profile", func(r chi.Router) {
				r.Patch("/password", s.handleChangePassword)
				r.Post("/oauth/{provider}", s.handleLinkProvider)
				r.Delete("/oauth/{provider}", s.handleUnlinkProvider)
			})

			// Administration
			r.Route("/users", func(r chi.Router) {
				r.With(guard(permission.UserRead)).Get("/", s.handleAdminListUsers)
				r.With(guard(permission.UserCreate)).Post("/", s.handleAdminCreateUser)
				r.With(guard(permission.UserRead)).Get("/{id}", s.handleAdminGetUser)
				r.With(guard(permission.UserUpdate)).Patch("/{id}", s.handleAdminUpdateUser)
				r.With(guard(permission.UserAssignRole)).Patch("/{id}/roles", s.handleAdminSetUserRoles)
				r.With(guard(permission.UserDelete)).Delete("/{id}", s.handleAdminDeleteUser)
			})
			r.Route("/roles", func(r chi.Router) {
				r.With(guard(permission.RoleRead)).Get("/", s.handleAdminListRoles)
				r.With(guard(permission.RoleCreate)).Post("/", s.handleAdminCreateRole)
				r.With(guard(permission.RoleRead)).Get("/{id}", s.handleAdminGetRole)
				r.With(guard(permission.RoleUpdate)).Patch("/{id}", s.handleAdminUpdateRole)
				r.With(guard(permission.RoleAssignPermission)).Patch("/{id}/permissions", s.handleAdminSetRolePermissions)
				r.With(s.RequirePermissions(permission.Requirement{
					Permissions: []string{permission.RoleDelete},
					Roles:       permission.SuperAdmin.Roles,
				})).Delete("/{id}", s.handleAdminDeleteRole)
			})
			r.Route("/permissions", func(r chi.Router) {
				r.Use(guard(permission.PermissionRead))
				r.Get("/", s.handleAdminListPermissions)
				r.Get("/modules", s.handleAdminListPermissionModules)
			})
		})
	})
	return r
}
