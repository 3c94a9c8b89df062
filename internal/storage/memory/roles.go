package memory

import (
	"context"
	"slices"
	"sort"

	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
)

func (s *Store) GetRole(_ context.Context, roleID string) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID]
	if !ok {
		return nil, interfaces.ErrNotFound
	}
	return copyRole(r), nil
}

func (s *Store) GetRoleByName(_ context.Context, name string) (*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			return copyRole(r), nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *Store) ListRoles(_ context.Context) ([]*models.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, copyRole(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateRole(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == role.Name {
			return interfaces.ErrDuplicate
		}
	}
	if _, ok := s.roles[role.ID]; ok {
		return interfaces.ErrDuplicate
	}
	s.roles[role.ID] = copyRole(role)
	return nil
}

func (s *Store) SaveRole(_ context.Context, role *models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.roles {
		if r.Name == role.Name && id != role.ID {
			return interfaces.ErrDuplicate
		}
	}
	s.roles[role.ID] = copyRole(role)
	return nil
}

func (s *Store) DeleteRole(_ context.Context, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return interfaces.ErrNotFound
	}
	delete(s.roles, roleID)
	for _, u := range s.users {
		u.RoleIDs = slices.DeleteFunc(u.RoleIDs, func(id string) bool { return id == roleID })
	}
	return nil
}

func (s *Store) SetRolePermissions(_ context.Context, roleID string, permissionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[roleID]
	if !ok {
		return interfaces.ErrNotFound
	}
	for _, id := range permissionIDs {
		if _, ok := s.permissions[id]; !ok {
			return interfaces.ErrNotFound
		}
	}
	r.PermissionIDs = slices.Compact(slices.Sorted(slices.Values(permissionIDs)))
	return nil
}

func (s *Store) GetPermissionByName(_ context.Context, name string) (*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.permissions {
		if p.Name == name {
			return copyOf(p), nil
		}
	}
	return nil, interfaces.ErrNotFound
}

func (s *Store) CreatePermission(_ context.Context, perm *models.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.permissions {
		if p.Name == perm.Name {
			return interfaces.ErrDuplicate
		}
	}
	s.permissions[perm.ID] = copyOf(perm)
	return nil
}

func (s *Store) ListPermissions(_ context.Context) ([]*models.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Permission, 0, len(s.permissions))
	for _, p := range s.permissions {
		out = append(out, copyOf(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Module != out[j].Module {
			return out[i].Module < out[j].Module
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}
