package admin

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
	"github.com/bobmcallan/gatekeep/internal/permission"
)

// SeedResult counts what a seed run created.
type SeedResult struct {
	Permissions int
	Roles       int
	AdminUser   bool
}

// Seed creates the built-in permissions and system roles, and a super-admin
// when adminEmail is set. Running it again only fills in what is missing;
// system roles get their built-in permissions back.
func (s *Service) Seed(ctx context.Context, adminEmail, adminPassword string) (*SeedResult, error) {
	res := &SeedResult{}
	roles := s.storage.RoleStore()
	now := s.now()

	permIDs := make(map[string]string, len(permission.Builtin))
	for _, def := range permission.Builtin {
		p, err := roles.GetPermissionByName(ctx, def.Name)
		if errors.Is(err, interfaces.ErrNotFound) {
			p = &models.Permission{
				ID:          uuid.NewString(),
				Name:        def.Name,
				Module:      def.Module,
				DisplayName: def.DisplayName,
				CreatedAt:   now,
			}
			if err := roles.CreatePermission(ctx, p); err != nil {
				return nil, fmt.Errorf("failed to create permission %s: %w", def.Name, err)
			}
			res.Permissions++
		} else if err != nil {
			return nil, fmt.Errorf("failed to load permission %s: %w", def.Name, err)
		}
		permIDs[def.Name] = p.ID
	}

	var superAdminID string
	for _, def := range permission.BuiltinRoles {
		role, err := roles.GetRoleByName(ctx, def.Name)
		if errors.Is(err, interfaces.ErrNotFound) {
			role = &models.Role{
				ID:          uuid.NewString(),
				Name:        def.Name,
				DisplayName: def.DisplayName,
				Description: def.Description,
				IsSystem:    true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := roles.CreateRole(ctx, role); err != nil {
				return nil, fmt.Errorf("failed to create role %s: %w", def.Name, err)
			}
			res.Roles++
		} else if err != nil {
			return nil, fmt.Errorf("failed to load role %s: %w", def.Name, err)
		}

		want := make([]string, 0, len(def.Permissions))
		for _, name := range def.Permissions {
			want = append(want, permIDs[name])
		}
		want = slices.Compact(slices.Sorted(slices.Values(append(want, role.PermissionIDs...))))
		if !slices.Equal(want, role.PermissionIDs) {
			if err := roles.SetRolePermissions(ctx, role.ID, want); err != nil {
				return nil, fmt.Errorf("failed to set permissions of %s: %w", def.Name, err)
			}
		}
		if def.Name == models.RoleSuperAdmin {
			superAdminID = role.ID
		}
	}

	if adminEmail != "" {
		created, err := s.seedAdmin(ctx, common.NormalizeEmail(adminEmail), adminPassword, superAdminID)
		if err != nil {
			return nil, err
		}
		res.AdminUser = created
	}

	s.logger.Info().
		Int("permissions_created", res.Permissions).
		Int("roles_created", res.Roles).
		Bool("admin_created", res.AdminUser).
		Msg("Seed complete")
	return res, nil
}

// seedAdmin creates the super-admin, or grants SUPER_ADMIN to an existing
// account with that email. It reports whether a user was created.
func (s *Service) seedAdmin(ctx context.Context, email, password, superAdminID string) (bool, error) {
	existing, err := s.storage.UserStore().GetUserByEmail(ctx, email)
	if err == nil {
		if existing.HasRole(superAdminID) {
			return false, nil
		}
		if err := s.storage.UserStore().SetUserRoles(ctx, existing.ID, append(existing.RoleIDs, superAdminID)); err != nil {
			return false, fmt.Errorf("failed to grant super admin: %w", err)
		}
		s.logger.Info().Str("user_id", existing.ID).Msg("Granted super admin to existing user")
		return false, nil
	}
	if !errors.Is(err, interfaces.ErrNotFound) {
		return false, fmt.Errorf("failed to look up admin: %w", err)
	}

	if _, err := s.CreateUser(ctx, models.AdminUserInput{
		Email:    email,
		Password: password,
		Name:     "Administrator",
		RoleIDs:  []string{superAdminID},
	}); err != nil {
		return false, err
	}
	return true, nil
}
