package models

// AuthResult is returned by password and federated login.
type AuthResult struct {
	AccessToken  string         `json:"accessToken"`
	RefreshToken string         `json:"refreshToken"`
	User         *UserWithRoles `json:"user"`
}

// SessionTokens is a freshly minted session token pair.
type SessionTokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Profile is the signed-in user's own view of their account.
type Profile struct {
	*UserWithRoles
	Permissions    []string   `json:"permissions"`
	HasPassword    bool       `json:"hasPassword"`
	LinkedAccounts []Provider `json:"linkedAccounts"`
}

// FederatedConfig is the public half of a provider's OAuth settings.
type FederatedConfig struct {
	Provider     Provider `json:"provider"`
	Enabled      bool     `json:"enabled"`
	ClientID     string   `json:"clientId,omitempty"`
	CallbackURL  string   `json:"callbackUrl,omitempty"`
	AuthorizeURL string   `json:"authorizeUrl,omitempty"`
	State        string   `json:"state,omitempty"`
}

// ApplicationSummary is the minimal application descriptor shown to end users.
type ApplicationSummary struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Logo     string `json:"logo,omitempty"`
	Homepage string `json:"homepage,omitempty"`
}

// Summary returns the public descriptor of the application.
func (a *Application) Summary() ApplicationSummary {
	return ApplicationSummary{ID: a.ID, Name: a.Name, Logo: a.Logo, Homepage: a.Homepage}
}

// AuthorizeInfo is the pre-consent metadata for an authorization request.
type AuthorizeInfo struct {
	Application ApplicationSummary `json:"application"`
	RedirectURI string             `json:"redirectUri"`
	ClientID    string             `json:"clientId"`
	State       string             `json:"state,omitempty"`
}

// IssuedCode is the result of a successful consent.
type IssuedCode struct {
	Code        string
	Application *Application
}

// TokenRequest is an authorization_code grant request.
type TokenRequest struct {
	Code         string `json:"code"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	RedirectURI  string `json:"redirectUri"`
	GrantType    string `json:"grantType"`
}

// RefreshRequest is a refresh_token grant request.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	GrantType    string `json:"grantType"`
}

// OAuthTokenResponse is returned by the token endpoints.
type OAuthTokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
}

// UserInfo is the /oauth/me payload.
type UserInfo struct {
	User        UserInfoUser       `json:"user"`
	Application ApplicationSummary `json:"application"`
}

// UserInfoUser is the subset of the user exposed to client applications.
type UserInfoUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	Avatar        string `json:"avatar,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}

// GrantView is a grant with its application descriptor.
type GrantView struct {
	ApplicationID string             `json:"applicationId"`
	Application   ApplicationSummary `json:"application"`
	CreatedAt     string             `json:"createdAt"`
	UpdatedAt     string             `json:"updatedAt"`
}

// ApplicationInput creates an application.
type ApplicationInput struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Logo         string   `json:"logo"`
	Homepage     string   `json:"homepage"`
	RedirectURIs []string `json:"redirectUris"`
}

// ApplicationUpdate is a partial application update. Nil fields are unchanged.
type ApplicationUpdate struct {
	Name         *string  `json:"name"`
	Description  *string  `json:"description"`
	Logo         *string  `json:"logo"`
	Homepage     *string  `json:"homepage"`
	RedirectURIs []string `json:"redirectUris"`
	IsActive     *bool    `json:"isActive"`
}

// ApplicationWithSecret carries the plaintext client secret. It is only
// returned on create and on secret regeneration.
type ApplicationWithSecret struct {
	*Application
	ClientSecret string `json:"clientSecret"`
}

// Page is one page of a paginated list.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
}

// AdminUserInput creates a user from the admin surface. EmailVerified
// defaults to true when omitted.
type AdminUserInput struct {
	Email         string   `json:"email"`
	Password      string   `json:"password"`
	Name          string   `json:"name"`
	RoleIDs       []string `json:"roleIds"`
	EmailVerified *bool    `json:"emailVerified"`
}

// AdminUserUpdate is a partial admin update of a user.
type AdminUserUpdate struct {
	Name          *string     `json:"name"`
	Avatar        *string     `json:"avatar"`
	Status        *UserStatus `json:"status"`
	EmailVerified *bool       `json:"emailVerified"`
}

// RoleInput creates a role.
type RoleInput struct {
	Name          string   `json:"name"`
	DisplayName   string   `json:"displayName"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permissionIds"`
}

// RoleUpdate is a partial role update.
type RoleUpdate struct {
	DisplayName *string `json:"displayName"`
	Description *string `json:"description"`
}

// PermissionModule groups permissions by module.
type PermissionModule struct {
	Module      string       `json:"module"`
	Permissions []Permission `json:"permissions"`
}
