package permission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/models"
	"github.com/bobmcallan/gatekeep/internal/storage/memory"
)

func role(name string, perms ...string) models.RoleWithPermissions {
	r := models.RoleWithPermissions{Role: models.Role{Name: name}}
	for _, p := range perms {
		r.Permissions = append(r.Permissions, models.Permission{Name: p})
	}
	return r
}

func TestSet_HasAll(t *testing.T) {
	s := NewSet([]models.RoleWithPermissions{
		role(models.RoleFrontend, UserRead, RoleRead),
		role(models.RoleTester, PermissionRead, UserRead),
	})

	assert.True(t, s.HasAll())
	assert.True(t, s.HasAll(UserRead))
	assert.True(t, s.HasAll(UserRead, RoleRead, PermissionRead))
	assert.False(t, s.HasAll(UserRead, UserDelete))
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.HasRole(models.RoleTester))
	assert.False(t, s.HasRole(models.RoleAdmin))
}

func TestSet_NoRoles(t *testing.T) {
	s := NewSet(nil)
	assert.True(t, s.HasAll())
	assert.False(t, s.HasAll(UserRead))
}

func TestRequirement_Check(t *testing.T) {
	admin := &common.AuthenticatedPrincipal{UserID: "a", Roles: []common.PrincipalRole{
		{Name: models.RoleAdmin, Permissions: []string{UserRead, UserDelete}},
	}}
	super := &common.AuthenticatedPrincipal{UserID: "s", Roles: []common.PrincipalRole{
		{Name: models.RoleSuperAdmin},
	}}

	assert.NoError(t, Permissions(UserRead, UserDelete).Check(admin))

	err := Permissions(RoleCreate).Check(admin)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindForbidden))
	assert.Contains(t, err.Error(), "insufficient permissions")

	assert.Error(t, SuperAdmin.Check(admin))
	assert.NoError(t, SuperAdmin.Check(super))
	assert.Error(t, Permissions().Check(nil))
}

func TestBuiltinRoles(t *testing.T) {
	byName := map[string]RoleDefinition{}
	for _, r := range BuiltinRoles {
		byName[r.Name] = r
	}
	assert.Len(t, byName[models.RoleSuperAdmin].Permissions, len(Builtin))
	assert.Len(t, byName[models.RoleAdmin].Permissions, len(Builtin))
	assert.ElementsMatch(t, []string{UserRead, RoleRead, PermissionRead}, byName[models.DefaultRole].Permissions)
}

func TestResolver_ResolveAndPrincipal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, store.CreatePermission(ctx, &models.Permission{ID: "p1", Name: UserRead, Module: ModuleUser}))
	require.NoError(t, store.CreatePermission(ctx, &models.Permission{ID: "p2", Name: RoleRead, Module: ModuleRole}))
	require.NoError(t, store.CreateRole(ctx, &models.Role{ID: "r1", Name: models.RoleFrontend, PermissionIDs: []string{"p1", "p2"}}))

	user := &models.User{ID: "u1", Email: "a@example.com", RoleIDs: []string{"r1", "gone"}}
	resolved, err := NewResolver(store).Resolve(ctx, user)
	require.NoError(t, err)
	require.Len(t, resolved.Roles, 1, "dangling role ids are skipped")
	assert.ElementsMatch(t, []string{UserRead, RoleRead}, resolved.PermissionNames())

	p := Principal(resolved, "tok")
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "tok", p.AccessToken)
	assert.True(t, FromPrincipal(p).HasAll(UserRead, RoleRead))

	// Permissions are read live: revoking from the role takes effect at once.
	require.NoError(t, store.SetRolePermissions(ctx, "r1", []string{"p1"}))
	resolved, err = NewResolver(store).Resolve(ctx, user)
	require.NoError(t, err)
	assert.False(t, NewSet(resolved.Roles).HasAll(RoleRead))
}
