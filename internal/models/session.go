package models

import "time"

// SessionRefreshToken backs a first-party refresh JWT. One record exists per
// login, so a user may hold several concurrent sessions.
type SessionRefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Token     string    `json:"-"`
	UserAgent string    `json:"userAgent,omitempty"`
	IPAddress string    `json:"ipAddress,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the record is past its expiry at now.
func (t *SessionRefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// VerificationType distinguishes tokens that share the verification table.
type VerificationType string

const (
	VerificationEmail         VerificationType = "EMAIL_VERIFICATION"
	VerificationPasswordReset VerificationType = "PASSWORD_RESET"
)

// TTL returns how long a token of this type stays valid.
func (t VerificationType) TTL() time.Duration {
	if t == VerificationPasswordReset {
		return time.Hour
	}
	return 24 * time.Hour
}

// VerificationToken is a single-use token for email verification or password reset.
type VerificationToken struct {
	Token     string           `json:"token"`
	UserID    string           `json:"userId"`
	Type      VerificationType `json:"type"`
	ExpiresAt time.Time        `json:"expiresAt"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Expired reports whether the token is past its expiry at now.
func (t *VerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Provider names a federated identity provider.
type Provider string

const (
	ProviderGitHub   Provider = "GITHUB"
	ProviderDingTalk Provider = "DINGTALK"
)

// ParseProvider maps a URL segment such as "github" to a Provider.
func ParseProvider(s string) (Provider, bool) {
	switch s {
	case "github", "GITHUB":
		return ProviderGitHub, true
	case "dingtalk", "DINGTALK":
		return ProviderDingTalk, true
	}
	return "", false
}

// OAuthAccount links a user to an identity at a federated provider.
type OAuthAccount struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Provider     Provider  `json:"provider"`
	ProviderID   string    `json:"providerId"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FederatedIdentity is what a provider client returns after a code exchange.
type FederatedIdentity struct {
	Provider     Provider
	ProviderID   string
	Email        string
	Name         string
	Avatar       string
	AccessToken  string
	RefreshToken string
}
