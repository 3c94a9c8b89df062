// Package permission resolves a user's roles into permission sets and checks
// declarative requirements against them.
package permission

import "github.com/bobmcallan/gatekeep/internal/models"

// Permission modules.
const (
	ModuleUser       = "user"
	ModuleRole       = "role"
	ModulePermission = "permission"
)

// Permission names, module:action.
const (
	UserRead       = "user:read"
	UserCreate     = "user:create"
	UserUpdate     = "user:update"
	UserDelete     = "user:delete"
	UserAssignRole = "user:assign-role"

	RoleRead             = "role:read"
	RoleCreate           = "role:create"
	RoleUpdate           = "role:update"
	RoleDelete           = "role:delete"
	RoleAssignPermission = "role:assign-permission"

	PermissionRead = "permission:read"
)

// Definition describes a built-in permission.
type Definition struct {
	Name        string
	Module      string
	DisplayName string
}

// Builtin lists every permission the system seeds, in display order.
var Builtin = []Definition{
	{UserRead, ModuleUser, "View users"},
	{UserCreate, ModuleUser, "Create users"},
	{UserUpdate, ModuleUser, "Update users"},
	{UserDelete, ModuleUser, "Delete users"},
	{UserAssignRole, ModuleUser, "Assign roles"},
	{RoleRead, ModuleRole, "View roles"},
	{RoleCreate, ModuleRole, "Create roles"},
	{RoleUpdate, ModuleRole, "Update roles"},
	{RoleDelete, ModuleRole, "Delete roles"},
	{RoleAssignPermission, ModuleRole, "Assign permissions"},
	{PermissionRead, ModulePermission, "View permissions"},
}

// RoleDefinition describes a built-in system role.
type RoleDefinition struct {
	Name        string
	DisplayName string
	Description string
	Permissions []string
}

func allNames() []string {
	names := make([]string, 0, len(Builtin))
	for _, d := range Builtin {
		names = append(names, d.Name)
	}
	return names
}

var readOnly = []string{UserRead, RoleRead, PermissionRead}

// BuiltinRoles lists the system roles and their default permissions.
var BuiltinRoles = []RoleDefinition{
	{models.RoleSuperAdmin, "Super administrator", "Full access, including super-admin only operations", allNames()},
	{models.RoleAdmin, "Administrator", "Manages users and roles", allNames()},
	{models.RoleFrontend, "Frontend developer", "Default role for new users", readOnly},
	{models.RoleBackend, "Backend developer", "", readOnly},
	{models.RoleTester, "Tester", "", readOnly},
}
