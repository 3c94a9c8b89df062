package permission

import (
	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/models"
)

// Set is the flattened view of a principal's roles and permissions.
type Set struct {
	roles       map[string]struct{}
	permissions map[string]struct{}
}

// NewSet flattens roles[].permissions[] into a Set.
func NewSet(roles []models.RoleWithPermissions) Set {
	s := Set{roles: make(map[string]struct{}), permissions: make(map[string]struct{})}
	for _, r := range roles {
		s.roles[r.Name] = struct{}{}
		for _, p := range r.Permissions {
			s.permissions[p.Name] = struct{}{}
		}
	}
	return s
}

// FromPrincipal builds a Set from an authenticated principal.
func FromPrincipal(p *common.AuthenticatedPrincipal) Set {
	s := Set{roles: make(map[string]struct{}), permissions: make(map[string]struct{})}
	if p == nil {
		return s
	}
	for _, r := range p.Roles {
		s.roles[r.Name] = struct{}{}
		for _, name := range r.Permissions {
			s.permissions[name] = struct{}{}
		}
	}
	return s
}

// Has reports whether the permission is present.
func (s Set) Has(name string) bool {
	_, ok := s.permissions[name]
	return ok
}

// HasAll reports whether every required permission is present. An empty
// requirement is always satisfied.
func (s Set) HasAll(required ...string) bool {
	for _, name := range required {
		if !s.Has(name) {
			return false
		}
	}
	return true
}

// HasRole reports whether the named role is held.
func (s Set) HasRole(name string) bool {
	_, ok := s.roles[name]
	return ok
}

// Len returns the number of distinct permissions.
func (s Set) Len() int {
	return len(s.permissions)
}

// Requirement is a declarative access rule attached to a route.
type Requirement struct {
	Permissions []string
	Roles       []string // any of
}

// Permissions builds a requirement on every named permission.
func Permissions(names ...string) Requirement {
	return Requirement{Permissions: names}
}

// AnyRole builds a requirement satisfied by holding one of the named roles.
func AnyRole(names ...string) Requirement {
	return Requirement{Roles: names}
}

// SuperAdmin is the requirement for super-admin only operations.
var SuperAdmin = AnyRole(models.RoleSuperAdmin)

// Check returns Forbidden when the principal does not satisfy r.
func (r Requirement) Check(p *common.AuthenticatedPrincipal) error {
	if p == nil {
		return common.Forbidden("insufficient permissions")
	}
	s := FromPrincipal(p)
	if len(r.Roles) > 0 {
		held := false
		for _, name := range r.Roles {
			if s.HasRole(name) {
				held = true
				break
			}
		}
		if !held {
			return common.Forbidden("insufficient permissions")
		}
	}
	if !s.HasAll(r.Permissions...) {
		return common.Forbidden("insufficient permissions")
	}
	return nil
}
