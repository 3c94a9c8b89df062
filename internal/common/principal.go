package common

import (
	"context"
)

// PrincipalRole is a role held by the authenticated principal together with
// the permission names it grants.
type PrincipalRole struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// AuthenticatedPrincipal is the resolved identity behind a session access token.
// It is rebuilt from the store on every request.
type AuthenticatedPrincipal struct {
	UserID      string          `json:"id"`
	Email       string          `json:"email"`
	Roles       []PrincipalRole `json:"roles"`
	AccessToken string          `json:"-"`
}

// RoleNames returns the names of the principal's roles.
func (p *AuthenticatedPrincipal) RoleNames() []string {
	names := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		names = append(names, r.Name)
	}
	return names
}

type contextKey int

const (
	principalKey contextKey = iota
)

// WithPrincipal stores an AuthenticatedPrincipal in the request context.
func WithPrincipal(ctx context.Context, p *AuthenticatedPrincipal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext retrieves the AuthenticatedPrincipal from context, or nil if absent.
func PrincipalFromContext(ctx context.Context) *AuthenticatedPrincipal {
	p, _ := ctx.Value(principalKey).(*AuthenticatedPrincipal)
	return p
}

// ResolveUserID returns the authenticated user's ID, or "" when the request is anonymous.
func ResolveUserID(ctx context.Context) string {
	if p := PrincipalFromContext(ctx); p != nil {
		return p.UserID
	}
	return ""
}
