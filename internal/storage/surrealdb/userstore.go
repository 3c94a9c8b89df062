package surrealdb

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

const userFields = "user_id, email, password_hash, name, avatar, status, email_verified, role_ids, last_login_at, created_at, updated_at"

// userRow is the DB-level representation of a user.
type userRow struct {
	UserID        string     `json:"user_id"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"password_hash"`
	Name          string     `json:"name"`
	Avatar        string     `json:"avatar"`
	Status        string     `json:"status"`
	EmailVerified bool       `json:"email_verified"`
	RoleIDs       []string   `json:"role_ids"`
	LastLoginAt   *time.Time `json:"last_login_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func toUserRow(u *models.User) userRow {
	roles := u.RoleIDs
	if roles == nil {
		roles = []string{}
	}
	return userRow{
		UserID:        u.ID,
		Email:         strings.ToLower(strings.TrimSpace(u.Email)),
		PasswordHash:  u.PasswordHash,
		Name:          u.Name,
		Avatar:        u.Avatar,
		Status:        string(u.Status),
		EmailVerified: u.EmailVerified,
		RoleIDs:       roles,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

func (r *userRow) toModel() *models.User {
	return &models.User{
		ID:            r.UserID,
		Email:         r.Email,
		PasswordHash:  r.PasswordHash,
		Name:          r.Name,
		Avatar:        r.Avatar,
		Status:        models.UserStatus(r.Status),
		EmailVerified: r.EmailVerified,
		RoleIDs:       r.RoleIDs,
		LastLoginAt:   r.LastLoginAt,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// UserStore implements interfaces.UserStore using SurrealDB.
type UserStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

// NewUserStore creates a new UserStore.
func NewUserStore(db *surrealdb.DB, logger *common.Logger) *UserStore {
	return &UserStore{db: db, logger: logger}
}

func (s *UserStore) GetUser(ctx context.Context, userID string) (*models.User, error) {
	sql := "SELECT " + userFields + " FROM $rid"
	row, err := queryOne[userRow](ctx, s.db, sql, map[string]any{"rid": recordID(tableUser, userID)})
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	sql := "SELECT " + userFields + " FROM user WHERE email = $email LIMIT 1"
	vars := map[string]any{"email": strings.ToLower(strings.TrimSpace(email))}
	row, err := queryOne[userRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *UserStore) CreateUser(ctx context.Context, user *models.User) error {
	vars := map[string]any{
		"rid":  recordID(tableUser, user.ID),
		"data": toUserRow(user),
	}
	if err := exec(ctx, s.db, "CREATE $rid CONTENT $data", vars); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *UserStore) SaveUser(ctx context.Context, user *models.User) error {
	vars := map[string]any{
		"rid":  recordID(tableUser, user.ID),
		"data": toUserRow(user),
	}
	if err := exec(ctx, s.db, "UPSERT $rid CONTENT $data", vars); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *UserStore) ListUsers(ctx context.Context, opts interfaces.ListOptions) ([]*models.User, int, error) {
	opts = opts.Normalize()
	where := ""
	vars := map[string]any{
		"limit": opts.PageSize,
		"start": opts.Offset(),
	}
	if kw := strings.ToLower(strings.TrimSpace(opts.Keyword)); kw != "" {
		where = " WHERE string::contains(string::lowercase(email), $kw) OR string::contains(string::lowercase(name), $kw)"
		vars["kw"] = kw
	}

	total, err := queryCount(ctx, s.db, "SELECT count() AS count FROM user"+where+" GROUP ALL", vars)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	sql := "SELECT " + userFields + " FROM user" + where + " ORDER BY created_at DESC, user_id ASC LIMIT $limit START $start"
	rows, err := queryRows[userRow](ctx, s.db, sql, vars)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]*models.User, 0, len(rows))
	for i := range rows {
		users = append(users, rows[i].toModel())
	}
	return users, total, nil
}

// DeleteUser removes the user and everything hanging off it, including
// applications the user owns and tokens other users hold for them.
func (s *UserStore) DeleteUser(ctx context.Context, userID string) error {
	sql := `BEGIN TRANSACTION;
		LET $gone = (DELETE $rid RETURN BEFORE);
		IF array::len($gone) = 0 { THROW "` + throwNotFound + `" };
		LET $apps = (SELECT VALUE app_id FROM application WHERE user_id = $id);
		DELETE application WHERE user_id = $id;
		DELETE oauth_code WHERE user_id = $id OR application_id IN $apps;
		DELETE oauth_access_token WHERE user_id = $id OR application_id IN $apps;
		DELETE oauth_refresh_token WHERE user_id = $id OR application_id IN $apps;
		DELETE user_application_grant WHERE user_id = $id OR application_id IN $apps;
		DELETE session_refresh_token WHERE user_id = $id;
		DELETE verification_token WHERE user_id = $id;
		DELETE oauth_account WHERE user_id = $id;
		COMMIT TRANSACTION;`
	vars := map[string]any{
		"rid": recordID(tableUser, userID),
		"id":  userID,
	}
	if err := exec(ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return nil
}

func (s *UserStore) SetUserRoles(ctx context.Context, userID string, roleIDs []string) error {
	ids := slices.Compact(slices.Sorted(slices.Values(roleIDs)))
	if ids == nil {
		ids = []string{}
	}
	sql := `BEGIN TRANSACTION;
		LET $u = (SELECT user_id FROM $rid);
		IF array::len($u) = 0 { THROW "` + throwNotFound + `" };
		LET $found = (SELECT VALUE role_id FROM role WHERE role_id IN $ids);
		IF array::len($found) != array::len($ids) { THROW "` + throwNotFound + `" };
		UPDATE $rid SET role_ids = $ids, updated_at = $now;
		COMMIT TRANSACTION;`
	vars := map[string]any{
		"rid": recordID(tableUser, userID),
		"ids": ids,
		"now": time.Now(),
	}
	if err := exec(ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to set user roles: %w", err)
	}
	return nil
}

func (s *UserStore) CountUsersWithRole(ctx context.Context, roleID string) (int, error) {
	sql := "SELECT count() AS count FROM user WHERE role_ids CONTAINS $role_id GROUP ALL"
	n, err := queryCount(ctx, s.db, sql, map[string]any{"role_id": roleID})
	if err != nil {
		return 0, fmt.Errorf("failed to count users with role: %w", err)
	}
	return n, nil
}

// Compile-time check
var _ interfaces.UserStore = (*UserStore)(nil)
