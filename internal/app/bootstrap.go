package app

import (
	"context"
	"fmt"
)

// ensureBuiltins makes sure the built-in permissions and system roles exist,
// so that registration can assign the default role on a fresh database. No
// user is created here.
func (a *App) ensureBuiltins(ctx context.Context) error {
	res, err := a.AdminService.Seed(ctx, "", "")
	if err != nil {
		return fmt.Errorf("failed to ensure built-in roles: %w", err)
	}
	if res.Permissions > 0 || res.Roles > 0 {
		a.Logger.Info().
			Int("permissions", res.Permissions).
			Int("roles", res.Roles).
			Msg("Built-in permissions and roles created")
	}
	return nil
}

// Seed creates the built-in data and, when email is set, the super-admin.
func (a *App) Seed(ctx context.Context, email, password string) error {
	if (email == "") != (password == "") {
		return fmt.Errorf("admin email and password must be given together")
	}
	res, err := a.AdminService.Seed(ctx, email, password)
	if err != nil {
		return err
	}
	if res.AdminUser {
		a.Logger.Warn().Str("email", email).Msg("Super admin created")
	}
	return nil
}
