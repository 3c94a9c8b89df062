// Package interfaces defines service contracts for Gatekeep
package interfaces

import (
	"context"
	"errors"

	"github.com/bobmcallan/gatekeep/internal/models"
)

// Sentinel errors returned by every store implementation.
var (
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique key (email, role name, client ID,
	// provider identity) already exists.
	ErrDuplicate = errors.New("duplicate record")
	// ErrCodeClaimed is returned when an authorization code was consumed by a
	// concurrent exchange.
	ErrCodeClaimed = errors.New("authorization code already claimed")
	// ErrTokenRevoked is returned when a refresh token lost a rotation race.
	ErrTokenRevoked = errors.New("token already revoked")
)

// ListOptions controls pagination for list queries. Page is 1-based.
type ListOptions struct {
	Page     int
	PageSize int
	Keyword  string
}

// Normalize clamps paging to sane bounds.
func (o ListOptions) Normalize() ListOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	if o.PageSize < 1 {
		o.PageSize = 10
	}
	if o.PageSize > 100 {
		o.PageSize = 100
	}
	return o
}

// Offset returns the number of records to skip.
func (o ListOptions) Offset() int {
	return (o.Page - 1) * o.PageSize
}

// StorageManager coordinates the credential store.
type StorageManager interface {
	UserStore() UserStore
	RoleStore() RoleStore
	ApplicationStore() ApplicationStore
	OAuthStore() OAuthStore
	SessionStore() SessionStore
	VerificationStore() VerificationStore
	AccountStore() AccountStore

	// Lifecycle
	Close() error
}

// UserStore manages user identity records.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	// GetUserByEmail looks up by normalized (lowercase) email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// CreateUser fails with ErrDuplicate if the email is taken.
	CreateUser(ctx context.Context, user *models.User) error
	SaveUser(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context, opts ListOptions) ([]*models.User, int, error)
	// DeleteUser removes the user together with its sessions, tokens, grants,
	// linked accounts and owned applications in one transaction.
	DeleteUser(ctx context.Context, userID string) error
	// SetUserRoles replaces the user's role assignments atomically.
	SetUserRoles(ctx context.Context, userID string, roleIDs []string) error
	CountUsersWithRole(ctx context.Context, roleID string) (int, error)
}

// RoleStore manages roles and permissions.
type RoleStore interface {
	GetRole(ctx context.Context, roleID string) (*models.Role, error)
	GetRoleByName(ctx context.Context, name string) (*models.Role, error)
	ListRoles(ctx context.Context) ([]*models.Role, error)
	// CreateRole fails with ErrDuplicate if the name is taken.
	CreateRole(ctx context.Context, role *models.Role) error
	SaveRole(ctx context.Context, role *models.Role) error
	DeleteRole(ctx context.Context, roleID string) error
	// SetRolePermissions replaces the role's permission set atomically.
	SetRolePermissions(ctx context.Context, roleID string, permissionIDs []string) error

	GetPermissionByName(ctx context.Context, name string) (*models.Permission, error)
	// CreatePermission fails with ErrDuplicate if the name is taken.
	CreatePermission(ctx context.Context, perm *models.Permission) error
	ListPermissions(ctx context.Context) ([]*models.Permission, error)
}

// ApplicationStore manages OAuth client applications.
type ApplicationStore interface {
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	GetApplicationByClientID(ctx context.Context, clientID string) (*models.Application, error)
	// CreateApplication fails with ErrDuplicate if the client ID is taken.
	CreateApplication(ctx context.Context, app *models.Application) error
	SaveApplication(ctx context.Context, app *models.Application) error
	ListApplicationsByUser(ctx context.Context, userID string, opts ListOptions) ([]*models.Application, int, error)
	// DeleteApplication removes the application with its codes, tokens and
	// grants in one transaction.
	DeleteApplication(ctx context.Context, id string) error
}

// OAuthStore manages authorization codes, client tokens and grants.
// Composite methods are atomic: either every step is applied or none is.
type OAuthStore interface {
	SaveAuthorizationCode(ctx context.Context, code *models.AuthorizationCode) error
	GetAuthorizationCode(ctx context.Context, code string) (*models.AuthorizationCode, error)
	DeleteAuthorizationCode(ctx context.Context, code string) error

	// ExchangeAuthorizationCode claims (deletes) the code, revokes every
	// active refresh token for the pair's {application, user}, stores the new
	// access and refresh tokens and upserts the grant. Returns ErrCodeClaimed
	// if the code no longer exists.
	ExchangeAuthorizationCode(ctx context.Context, code string, pair *models.OAuthTokenPair) error

	GetAccessToken(ctx context.Context, token string) (*models.OAuthAccessToken, error)
	DeleteAccessToken(ctx context.Context, token string) error
	GetRefreshToken(ctx context.Context, token string) (*models.OAuthRefreshToken, error)

	// RotateOAuthRefreshToken revokes oldToken only if it is still active and
	// stores the new pair. Returns ErrTokenRevoked if it lost the race.
	RotateOAuthRefreshToken(ctx context.Context, oldToken string, pair *models.OAuthTokenPair) error

	// CountActiveRefreshTokens counts non-revoked refresh tokens for the pair.
	CountActiveRefreshTokens(ctx context.Context, applicationID, userID string) (int, error)

	GetGrant(ctx context.Context, userID, applicationID string) (*models.UserApplicationGrant, error)
	ListGrantsByUser(ctx context.Context, userID string) ([]*models.UserApplicationGrant, error)
	// RevokeGrant deletes the grant and the pair's access tokens, and revokes
	// the pair's refresh tokens.
	RevokeGrant(ctx context.Context, userID, applicationID string) error
}

// SessionStore manages first-party session refresh-token records.
type SessionStore interface {
	CreateSessionRefreshToken(ctx context.Context, token *models.SessionRefreshToken) error
	GetSessionRefreshToken(ctx context.Context, id string) (*models.SessionRefreshToken, error)
	// RotateSessionRefreshToken revokes oldID only if it is still active and
	// stores next. Returns ErrTokenRevoked if it lost the race.
	RotateSessionRefreshToken(ctx context.Context, oldID string, next *models.SessionRefreshToken) error
	RevokeSessionRefreshToken(ctx context.Context, id string) error
	// RevokeUserSessionRefreshTokens revokes every active record of the user
	// and returns how many were revoked.
	RevokeUserSessionRefreshTokens(ctx context.Context, userID string) (int, error)
}

// VerificationStore manages single-use email verification and password reset tokens.
type VerificationStore interface {
	SaveVerificationToken(ctx context.Context, token *models.VerificationToken) error
	// ConsumeVerificationToken atomically deletes and returns the token of the
	// given type. Returns ErrNotFound if absent or of another type.
	ConsumeVerificationToken(ctx context.Context, token string, typ models.VerificationType) (*models.VerificationToken, error)
	DeleteUserVerificationTokens(ctx context.Context, userID string, typ models.VerificationType) error
}

// AccountStore manages federated identity links.
type AccountStore interface {
	GetAccount(ctx context.Context, provider models.Provider, providerID string) (*models.OAuthAccount, error)
	ListAccountsByUser(ctx context.Context, userID string) ([]*models.OAuthAccount, error)
	// SaveAccount upserts by {provider, providerID}.
	SaveAccount(ctx context.Context, account *models.OAuthAccount) error
	DeleteAccount(ctx context.Context, userID string, provider models.Provider) error
	// CreateUserWithAccount creates a user and its first linked account in one
	// transaction. Returns ErrDuplicate if the email or identity is taken.
	CreateUserWithAccount(ctx context.Context, user *models.User, account *models.OAuthAccount) error
}
