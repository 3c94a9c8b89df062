package models

import "time"

// UserStatus is the lifecycle state of a user account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusInactive  UserStatus = "INACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// Valid reports whether s is a known status.
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspended:
		return true
	}
	return false
}

// User represents an identity record. PasswordHash is empty for accounts that
// only sign in through a federated provider.
type User struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	Name          string     `json:"name"`
	Avatar        string     `json:"avatar,omitempty"`
	Status        UserStatus `json:"status"`
	EmailVerified bool       `json:"emailVerified"`
	RoleIDs       []string   `json:"-"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// HasPassword reports whether the user can sign in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// HasRole reports whether roleID is assigned to the user.
func (u *User) HasRole(roleID string) bool {
	for _, id := range u.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Role groups permissions. System roles cannot be deleted.
type Role struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	DisplayName   string    `json:"displayName"`
	Description   string    `json:"description,omitempty"`
	IsSystem      bool      `json:"isSystem"`
	PermissionIDs []string  `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Permission is a named capability of the form module:action.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Module      string    `json:"module"`
	DisplayName string    `json:"displayName"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RoleWithPermissions is a role with its permissions resolved.
type RoleWithPermissions struct {
	Role
	Permissions []Permission `json:"permissions"`
}

// UserWithRoles is a user with roles and permissions resolved. It is the
// shape returned to clients and the input to permission resolution.
type UserWithRoles struct {
	User
	Roles []RoleWithPermissions `json:"roles"`
}

// PermissionNames returns the distinct permission names across all roles.
func (u *UserWithRoles) PermissionNames() []string {
	seen := make(map[string]struct{})
	var names []string
	for _, r := range u.Roles {
		for _, p := range r.Permissions {
			if _, ok := seen[p.Name]; ok {
				continue
			}
			seen[p.Name] = struct{}{}
			names = append(names, p.Name)
		}
	}
	return names
}

// Well-known role names.
const (
	RoleSuperAdmin = "SUPER_ADMIN"
	RoleAdmin      = "ADMIN"
	RoleFrontend   = "FRONTEND"
	RoleBackend    = "BACKEND"
	RoleTester     = "TESTER"

	// DefaultRole is assigned to newly registered users.
	DefaultRole = RoleFrontend
)
