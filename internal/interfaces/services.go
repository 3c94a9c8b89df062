// Package interfaces defines service contracts for Gatekeep
package interfaces

import (
	"context"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/models"
)

// SessionService handles first-party authentication and account self-service.
type SessionService interface {
	Register(ctx context.Context, email, password, name string) (*models.User, error)
	Login(ctx context.Context, email, password, userAgent, ipAddress string) (*models.AuthResult, error)
	RefreshTokens(ctx context.Context, refreshToken, userAgent, ipAddress string) (*models.SessionTokens, error)
	Logout(ctx context.Context, userID, accessToken, refreshToken string) error
	Authenticate(ctx context.Context, accessToken string) (*common.AuthenticatedPrincipal, error)

	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, userID string) error
	ResendVerificationByEmail(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error

	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error

	FederatedConfig(provider models.Provider) (*models.FederatedConfig, error)
	FederatedLogin(ctx context.Context, provider models.Provider, code, state, userAgent, ipAddress string) (*models.AuthResult, error)
	LinkFederated(ctx context.Context, userID string, provider models.Provider, code, state string) (*models.OAuthAccount, error)
	UnlinkFederated(ctx context.Context, userID string, provider models.Provider) error
}

// OAuthService is the authorization server for third-party applications.
type OAuthService interface {
	Authorize(ctx context.Context, clientID, redirectURI string) (*models.AuthorizeInfo, error)
	CreateAuthorizationCode(ctx context.Context, userID, clientID, redirectURI string) (*models.IssuedCode, error)
	ExchangeToken(ctx context.Context, req models.TokenRequest) (*models.OAuthTokenResponse, error)
	RefreshToken(ctx context.Context, req models.RefreshRequest) (*models.OAuthTokenResponse, error)
	GetUserByAccessToken(ctx context.Context, accessToken string) (*models.UserInfo, error)
	RevokeGrant(ctx context.Context, userID, applicationID string) error
	ListGrants(ctx context.Context, userID string) ([]*models.GrantView, error)

	CreateApplication(ctx context.Context, userID string, in models.ApplicationInput) (*models.ApplicationWithSecret, error)
	ListApplications(ctx context.Context, userID string, opts ListOptions) (*models.Page[*models.Application], error)
	GetApplication(ctx context.Context, userID, id string) (*models.Application, error)
	UpdateApplication(ctx context.Context, userID, id string, in models.ApplicationUpdate) (*models.Application, error)
	RegenerateSecret(ctx context.Context, userID, id string) (*models.ApplicationWithSecret, error)
	DeleteApplication(ctx context.Context, userID, id string) error
}

// AdminService manages users, roles and permissions.
type AdminService interface {
	ListUsers(ctx context.Context, opts ListOptions) (*models.Page[*models.UserWithRoles], error)
	GetUser(ctx context.Context, id string) (*models.UserWithRoles, error)
	CreateUser(ctx context.Context, in models.AdminUserInput) (*models.UserWithRoles, error)
	UpdateUser(ctx context.Context, id string, in models.AdminUserUpdate) (*models.UserWithRoles, error)
	SetUserRoles(ctx context.Context, id string, roleIDs []string) (*models.UserWithRoles, error)
	DeleteUser(ctx context.Context, actorID, id string) error

	ListRoles(ctx context.Context) ([]*models.RoleWithPermissions, error)
	GetRole(ctx context.Context, id string) (*models.RoleWithPermissions, error)
	CreateRole(ctx context.Context, in models.RoleInput) (*models.RoleWithPermissions, error)
	UpdateRole(ctx context.Context, id string, in models.RoleUpdate) (*models.RoleWithPermissions, error)
	SetRolePermissions(ctx context.Context, id string, permissionIDs []string) (*models.RoleWithPermissions, error)
	DeleteRole(ctx context.Context, id string) error

	ListPermissions(ctx context.Context) ([]*models.Permission, error)
	ListPermissionModules(ctx context.Context) ([]models.PermissionModule, error)
}
