package admin

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
)

var (
	errRoleNotFound = common.NotFound("role not found")
	roleNamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,49}$`)
)

func (s *Service) loadRole(ctx context.Context, id string) (*models.Role, error) {
	r, err := s.storage.RoleStore().GetRole(ctx, id)
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, errRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load role: %w", err)
	}
	return r, nil
}

// ListRoles returns every role with its permissions.
func (s *Service) ListRoles(ctx context.Context) ([]*models.RoleWithPermissions, error) {
	roles, err := s.storage.RoleStore().ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	out := make([]*models.RoleWithPermissions, 0, len(roles))
	for _, r := range roles {
		rwp, err := s.resolver.ResolveRole(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, rwp)
	}
	return out, nil
}

func (s *Service) GetRole(ctx context.Context, id string) (*models.RoleWithPermissions, error) {
	r, err := s.loadRole(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.resolver.ResolveRole(ctx, r)
}

// CreateRole creates a custom role. Names are upper snake case.
func (s *Service) CreateRole(ctx context.Context, in models.RoleInput) (*models.RoleWithPermissions, error) {
	name := strings.ToUpper(strings.TrimSpace(in.Name))
	if !roleNamePattern.MatchString(name) {
		return nil, common.BadRequest("role name must be 2-50 characters of A-Z, 0-9 and _")
	}
	now := s.now()
	role := &models.Role{
		ID:          uuid.NewString(),
		Name:        name,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if role.DisplayName == "" {
		role.DisplayName = name
	}
	if err := s.storage.RoleStore().CreateRole(ctx, role); err != nil {
		if errors.Is(err, interfaces.ErrDuplicate) {
			return nil, common.Conflict("role name already exists")
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	if len(in.PermissionIDs) > 0 {
		return s.SetRolePermissions(ctx, role.ID, in.PermissionIDs)
	}
	s.logger.Info().Str("role", name).Msg("Role created")
	return s.resolver.ResolveRole(ctx, role)
}

// UpdateRole changes a role's display name and description. Names are fixed.
func (s *Service) UpdateRole(ctx context.Context, id string, in models.RoleUpdate) (*models.RoleWithPermissions, error) {
	r, err := s.loadRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.DisplayName != nil {
		dn := strings.TrimSpace(*in.DisplayName)
		if dn == "" {
			return nil, common.BadRequest("displayName must not be empty")
		}
		r.DisplayName = dn
	}
	if in.Description != nil {
		r.Description = *in.Description
	}
	r.UpdatedAt = s.now()
	if err := s.storage.RoleStore().SaveRole(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to save role: %w", err)
	}
	return s.resolver.ResolveRole(ctx, r)
}

// SetRolePermissions replaces a role's permission set. Holders of the role
// see the change on their next request.
func (s *Service) SetRolePermissions(ctx context.Context, id string, permissionIDs []string) (*models.RoleWithPermissions, error) {
	if _, err := s.loadRole(ctx, id); err != nil {
		return nil, err
	}
	known, err := s.storage.RoleStore().ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	ids := make(map[string]bool, len(known))
	for _, p := range known {
		ids[p.ID] = true
	}
	for _, pid := range permissionIDs {
		if !ids[pid] {
			return nil, common.BadRequestf("unknown permission: %s", pid)
		}
	}
	if err := s.storage.RoleStore().SetRolePermissions(ctx, id, permissionIDs); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return nil, errRoleNotFound
		}
		return nil, fmt.Errorf("failed to set role permissions: %w", err)
	}
	s.logger.Info().Str("role_id", id).Int("permissions", len(permissionIDs)).Msg("Role permissions replaced")
	return s.GetRole(ctx, id)
}

// DeleteRole removes a custom role that no user holds.
func (s *Service) DeleteRole(ctx context.Context, id string) error {
	r, err := s.loadRole(ctx, id)
	if err != nil {
		return err
	}
	if r.IsSystem {
		return common.BadRequest("system roles cannot be deleted")
	}
	n, err := s.storage.UserStore().CountUsersWithRole(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count role holders: %w", err)
	}
	if n > 0 {
		return common.Conflict(fmt.Sprintf("role is assigned to %d users", n))
	}
	if err := s.storage.RoleStore().DeleteRole(ctx, id); err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			return errRoleNotFound
		}
		return fmt.Errorf("failed to delete role: %w", err)
	}
	s.logger.Info().Str("role", r.Name).Msg("Role deleted")
	return nil
}

func (s *Service) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	perms, err := s.storage.RoleStore().ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return perms, nil
}

// ListPermissionModules groups permissions by module, in the order the store
// lists them.
func (s *Service) ListPermissionModules(ctx context.Context) ([]models.PermissionModule, error) {
	perms, err := s.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	var modules []models.PermissionModule
	index := make(map[string]int)
	for _, p := range perms {
		i, ok := index[p.Module]
		if !ok {
			i = len(modules)
			index[p.Module] = i
			modules = append(modules, models.PermissionModule{Module: p.Module})
		}
		modules[i].Permissions = append(modules[i].Permissions, *p)
	}
	return modules, nil
}
