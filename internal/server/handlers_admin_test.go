package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatekeep/internal/models"
)

const (
	rootEmail    = "root@example.com"
	rootPassword = "R00tPassword"
)

func (ts *testServer) superAdmin() authBody {
	ts.t.Helper()
	require.NoError(ts.t, ts.app.Seed(context.Background(), rootEmail, rootPassword))
	return ts.login(rootEmail, rootPassword)
}

// roleID looks up a role by name through the API.
func (ts *testServer) roleID(token, name string) string {
	ts.t.Helper()
	rec := ts.do(http.MethodGet, "/api/roles", token, nil)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	for _, r := range decode[[]models.RoleWithPermissions](ts.t, rec) {
		if r.Name == name {
			return r.ID
		}
	}
	ts.t.Fatalf("role %s not found", name)
	return ""
}

func (ts *testServer) permissionID(token, name string) string {
	ts.t.Helper()
	rec := ts.do(http.MethodGet, "/api/permissions", token, nil)
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	for _, p := range decode[[]models.Permission](ts.t, rec) {
		if p.Name == name {
			return p.ID
		}
	}
	ts.t.Fatalf("permission %s not found", name)
	return ""
}

func TestAdminRoutes_RequirePermissions(t *testing.T) {
	ts := newTestServer(t)
	user := ts.signUp("plain@example.com")

	rec := ts.do(http.MethodGet, "/api/users", user.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/api/users", user.AccessToken, map[string]string{
		"email": "x@example.com", "password": "Passw0rd!", "name": "X",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminUsers_Lifecycle(t *testing.T) {
	ts := newTestServer(t)
	root := ts.superAdmin()

	rec := ts.do(http.MethodPost, "/api/users", root.AccessToken, map[string]any{
		"email": "staff@example.com", "password": "Staff1Pass", "name": "Staff", "emailVerified": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.UserWithRoles](t, rec)
	require.Len(t, created.Roles, 1)
	assert.Equal(t, models.DefaultRole, created.Roles[0].Name)

	staff := ts.login("staff@example.com", "Staff1Pass")

	rec = ts.do(http.MethodPatch, "/api/users/"+created.ID, root.AccessToken, map[string]any{"status": "SUSPENDED"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/auth/me", staff.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/users/"+root.User.ID, root.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/users/"+created.ID, root.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodGet, "/api/users/"+created.ID, root.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRoles_ChangesApplyImmediately(t *testing.T) {
	ts := newTestServer(t)
	root := ts.superAdmin()
	user := ts.signUp("auditor@example.com")

	rec := ts.do(http.MethodPost, "/api/roles", root.AccessToken, map[string]any{
		"name": "auditor", "permissionIds": []string{ts.permissionID(root.AccessToken, "user:create")},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	role := decode[models.RoleWithPermissions](t, rec)
	assert.Equal(t, "AUDITOR", role.Name)

	rec = ts.do(http.MethodPatch, "/api/users/"+user.User.ID+"/roles", root.AccessToken, map[string]any{
		"roleIds": []string{role.ID},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The existing access token sees the new role on its next request.
	rec = ts.do(http.MethodPost, "/api/users", user.AccessToken, map[string]string{
		"email": "made@example.com", "password": "Passw0rd!", "name": "Made",
	})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodDelete, "/api/roles/"+role.ID, root.AccessToken, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(http.MethodPatch, "/api/users/"+user.User.ID+"/roles", root.AccessToken, map[string]any{
		"roleIds": []string{ts.roleID(root.AccessToken, models.DefaultRole)},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/roles/"+role.ID, root.AccessToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestAdminRoles_DeleteNeedsSuperAdmin(t *testing.T) {
	ts := newTestServer(t)
	root := ts.superAdmin()

	rec := ts.do(http.MethodPost, "/api/users", root.AccessToken, map[string]any{
		"email": "admin@example.com", "password": "Adm1nPass", "name": "Admin",
		"roleIds": []string{ts.roleID(root.AccessToken, models.RoleAdmin)},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	admin := ts.login("admin@example.com", "Adm1nPass")

	rec = ts.do(http.MethodPost, "/api/roles", admin.AccessToken, map[string]any{"name": "TEMP"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	temp := decode[models.RoleWithPermissions](t, rec)

	rec = ts.do(http.MethodDelete, "/api/roles/"+temp.ID, admin.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/roles/"+ts.roleID(root.AccessToken, models.RoleTester), root.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminPermissionModules(t *testing.T) {
	ts := newTestServer(t)
	root := ts.superAdmin()

	rec := ts.do(http.MethodGet, "/api/permissions/modules", root.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	modules := decode[[]models.PermissionModule](t, rec)
	var names []string
	for _, m := range modules {
		names = append(names, m.Module)
	}
	assert.ElementsMatch(t, []string{"user", "role", "permission"}, names)
}
