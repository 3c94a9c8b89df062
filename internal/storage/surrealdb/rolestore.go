package surrealdb

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

const (
	roleFields       = "role_id, name, display_name, description, is_system, permission_ids, created_at, updated_at"
	permissionFields = "permission_id, name, module, display_name, description, created_at"
)

type roleRow struct {
	RoleID        string    `json:"role_id"`
	Name          string    `json:"name"`
	DisplayName   string    `json:"display_name"`
	Description   string    `json:"description"`
	IsSystem      bool      `json:"is_system"`
	PermissionIDs []string  `json:"permission_ids"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toRoleRow(r *models.Role) roleRow {
	perms := r.PermissionIDs
	if perms == nil {
		perms = []string{}
	}
	return roleRow{
		RoleID:        r.ID,
		Name:          r.Name,
		DisplayName:   r.DisplayName,
		Description:   r.Description,
		IsSystem:      r.IsSystem,
		PermissionIDs: perms,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

func (r *roleRow) toModel() *models.Role {
	return &models.Role{
		ID:            r.RoleID,
		Name:          r.Name,
		DisplayName:   r.DisplayName,
		Description:   r.Description,
		IsSystem:      r.IsSystem,
		PermissionIDs: r.PermissionIDs,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type permissionRow struct {
	PermissionID string    `json:"permission_id"`
	Name         string    `json:"name"`
	Module       string    `json:"module"`
	DisplayName  string    `json:"display_name"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r *permissionRow) toModel() *models.Permission {
	return &models.Permission{
		ID:          r.PermissionID,
		Name:        r.Name,
		Module:      r.Module,
		DisplayName: r.DisplayName,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
	}
}

// RoleStore implements interfaces.RoleStore using SurrealDB.
type RoleStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewRoleStore creates a new RoleStore.
func NewRoleStore(db *surrealdb.DB, logger *common.Logger) *RoleStore {
	return &RoleStore{db: db, logger: logger}
}

func (s *RoleStore) GetRole(ctx context.Context, roleID string) (*models.Role, error) {
	sql := "SELECT " + roleFields + " FROM $rid"
	row, err := queryOne[roleRow](ctx, s.db, sql, map[string]any{"rid": recordID(tableRole, roleID)})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *RoleStore) GetRoleByName(ctx context.Context, name string) (*models.Role, error) {
	sql := "SELECT " + roleFields + " FROM role WHERE name = $name LIMIT 1"
	row, err := queryOne[roleRow](ctx, s.db, sql, map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *RoleStore) ListRoles(ctx context.Context) ([]*models.Role, error) {
	rows, err := queryRows[roleRow](ctx, s.db, "SELECT "+roleFields+" FROM role ORDER BY name ASC", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	roles := make([]*models.Role, 0, len(rows))
	for i := range rows {
		roles = append(roles, rows[i].toModel())
	}
	return roles, nil
}

func (s *RoleStore) CreateRole(ctx context.Context, role *models.Role) error {
	vars := map[string]any{
		"rid":  recordID(tableRole, role.ID),
		"data": toRoleRow(role),
	}
	if err := exec(ctx, s.db, "CREATE $rid CONTENT $data", vars); err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	return nil
}

func (s *RoleStore) SaveRole(ctx context.Context, role *models.Role) error {
	vars := map[string]any{
		"rid":  recordID(tableRole, role.ID),
		"data": toRoleRow(role),
	}
	if err := exec(ctx, s.db, "UPSERT $rid CONTENT $data", vars); err != nil {
		return fmt.Errorf("failed to save role: %w", err)
	}
	return nil
}

// DeleteRole removes the role and detaches it from every user.
func (s *RoleStore) DeleteRole(ctx context.Context, roleID string) error {
	sql := `BEGIN TRANSACTION;
		LET $gone = (DELETE $rid RETURN BEFORE);
		IF array::len($gone) = 0 { THROW "` + throwNotFound + `" };
		UPDATE user SET role_ids -= $id WHERE role_ids CONTAINS $id;
		COMMIT TRANSACTION;`
	vars := map[string]any{
		"rid": recordID(tableRole, roleID),
		"id":  roleID,
	}
	if err := exec(ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return nil
}

func (s *RoleStore) SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error {
	ids := slices.Compact(slices.Sorted(slices.Values(permissionIDs)))
	if ids == nil {
		ids = []string{}
	}
	sql := `BEGIN TRANSACTION;
		LET $r = (SELECT role_id FROM $rid);
		IF array::len($r) = 0 { THROW "` + throwNotFound + `" };
		LET $found = (SELECT VALUE permission_id FROM permission WHERE permission_id IN $ids);
		IF array::len($found) != array::len($ids) { THROW "` + throwNotFound + `" };
		UPDATE $rid SET permission_ids = $ids, updated_at = $now;
		COMMIT TRANSACTION;`
	vars := map[string]any{
		"rid": recordID(tableRole, roleID),
		"ids": ids,
		"now": time.Now(),
	}
	if err := exec(ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to set role permissions: %w", err)
	}
	return nil
}

func (s *RoleStore) GetPermissionByName(ctx context.Context, name string) (*models.Permission, error) {
	sql := "SELECT " + permissionFields + " FROM permission WHERE name = $name LIMIT 1"
	row, err := queryOne[permissionRow](ctx, s.db, sql, map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *RoleStore) CreatePermission(ctx context.Context, perm *models.Permission) error {
	vars := map[string]any{
		"rid": recordID(tablePermission, perm.ID),
		"data": permissionRow{
			PermissionID: perm.ID,
			Name:         perm.Name,
			Module:       perm.Module,
			DisplayName:  perm.DisplayName,
			Description:  perm.Description,
			CreatedAt:    perm.CreatedAt,
		},
	}
	if err := exec(ctx, s.db, "CREATE $rid CONTENT $data", vars); err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	return nil
}

func (s *RoleStore) ListPermissions(ctx context.Context) ([]*models.Permission, error) {
	sql := "SELECT " + permissionFields + " FROM permission ORDER BY module ASC, name ASC"
	rows, err := queryRows[permissionRow](ctx, s.db, sql, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	perms := make([]*models.Permission, 0, len(rows))
	for i := range rows {
		perms = append(perms, rows[i].toModel())
	}
	return perms, nil
}

// Compile-time check
var _ interfaces.RoleStore = (*RoleStore)(nil)
