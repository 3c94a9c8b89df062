package models

import "time"

// Application is a registered OAuth client owned by a user.
type Application struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"clientId"`
	ClientSecret string    `json:"-"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Logo         string    `json:"logo,omitempty"`
	Homepage     string    `json:"homepage,omitempty"`
	RedirectURIs []string  `json:"redirectUris"`
	IsActive     bool      `json:"isActive"`
	UserID       string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// AllowsRedirect reports whether uri is registered. Matching is exact string
// equality with no normalization.
func (a *Application) AllowsRedirect(uri string) bool {
	for _, u := range a.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// AuthorizationCode binds a user's consent to one application and redirect URI.
// It is single-use.
type AuthorizationCode struct {
	Code          string    `json:"code"`
	ApplicationID string    `json:"applicationId"`
	UserID        string    `json:"userId"`
	RedirectURI   string    `json:"redirectUri"`
	ExpiresAt     time.Time `json:"expiresAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Expired reports whether the code is past its expiry at now.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// OAuthAccessToken is an opaque client access token, looked up by value.
type OAuthAccessToken struct {
	Token         string    `json:"token"`
	ApplicationID string    `json:"applicationId"`
	UserID        string    `json:"userId"`
	ExpiresAt     time.Time `json:"expiresAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Expired reports whether the token is past its expiry at now.
func (t *OAuthAccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// OAuthRefreshToken is an opaque client refresh token. Rotation revokes it.
type OAuthRefreshToken struct {
	Token         string    `json:"token"`
	ApplicationID string    `json:"applicationId"`
	UserID        string    `json:"userId"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Revoked       bool      `json:"revoked"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Expired reports whether the token is past its expiry at now.
func (t *OAuthRefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// OAuthTokenPair is the pair minted by code exchange or refresh.
type OAuthTokenPair struct {
	Access  OAuthAccessToken
	Refresh OAuthRefreshToken
}

// UserApplicationGrant records that a user has authorized an application.
type UserApplicationGrant struct {
	UserID        string    `json:"userId"`
	ApplicationID string    `json:"applicationId"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
