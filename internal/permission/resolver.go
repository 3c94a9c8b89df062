package permission

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
)

// Resolver loads roles and permissions for users from the store. Nothing is
// cached; every call reads current state.
type Resolver struct {
	roles interfaces.RoleStore
}

// NewResolver creates a Resolver.
func NewResolver(roles interfaces.RoleStore) *Resolver {
	return &Resolver{roles: roles}
}

// Resolve returns the user with roles and permissions expanded. Role IDs that
// no longer exist are skipped.
func (r *Resolver) Resolve(ctx context.Context, user *models.User) (*models.UserWithRoles, error) {
	out := &models.UserWithRoles{User: *user, Roles: []models.RoleWithPermissions{}}
	if len(user.RoleIDs) == 0 {
		return out, nil
	}

	perms, err := r.permissionIndex(ctx)
	if err != nil {
		return nil, err
	}
	for _, id := range user.RoleIDs {
		role, err := r.roles.GetRole(ctx, id)
		if errors.Is(err, interfaces.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load role %s: %w", id, err)
		}
		out.Roles = append(out.Roles, expand(role, perms))
	}
	return out, nil
}

// ResolveRole expands a single role.
func (r *Resolver) ResolveRole(ctx context.Context, role *models.Role) (*models.RoleWithPermissions, error) {
	perms, err := r.permissionIndex(ctx)
	if err != nil {
		return nil, err
	}
	rwp := expand(role, perms)
	return &rwp, nil
}

func (r *Resolver) permissionIndex(ctx context.Context) (map[string]*models.Permission, error) {
	list, err := r.roles.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	idx := make(map[string]*models.Permission, len(list))
	for _, p := range list {
		idx[p.ID] = p
	}
	return idx, nil
}

func expand(role *models.Role, perms map[string]*models.Permission) models.RoleWithPermissions {
	rwp := models.RoleWithPermissions{Role: *role, Permissions: []models.Permission{}}
	for _, pid := range role.PermissionIDs {
		if p, ok := perms[pid]; ok {
			rwp.Permissions = append(rwp.Permissions, *p)
		}
	}
	return rwp
}

// Principal converts a resolved user into the request principal.
func Principal(u *models.UserWithRoles, accessToken string) *common.AuthenticatedPrincipal {
	p := &common.AuthenticatedPrincipal{
		UserID:      u.ID,
		Email:       u.Email,
		Roles:       make([]common.PrincipalRole, 0, len(u.Roles)),
		AccessToken: accessToken,
	}
	for _, r := range u.Roles {
		pr := common.PrincipalRole{Name: r.Name, Permissions: make([]string, 0, len(r.Permissions))}
		for _, perm := range r.Permissions {
			pr.Permissions = append(pr.Permissions, perm.Name)
		}
		p.Roles = append(p.Roles, pr)
	}
	return p
}
