package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestApplication_AllowsRedirect_ExactMatch(t *testing.T) {
	app := &Application{RedirectURIs: []string{"https://x.com/cb", "http://localhost:5173/callback"}}

	assert.True(t, app.AllowsRedirect("https://x.com/cb"))
	assert.True(t, app.AllowsRedirect("http://localhost:5173/callback"))
	assert.False(t, app.AllowsRedirect("https://x.com/cb/"), "trailing slash must not match")
	assert.False(t, app.AllowsRedirect("HTTPS://x.com/cb"), "scheme case must not be normalized")
	assert.False(t, app.AllowsRedirect(""))
}

func TestUserWithRoles_PermissionNamesDeduplicates(t *testing.T) {
	u := &UserWithRoles{
		Roles: []RoleWithPermissions{
			{Role: Role{Name: RoleAdmin}, Permissions: []Permission{{Name: "user:read"}, {Name: "role:read"}}},
			{Role: Role{Name: RoleTester}, Permissions: []Permission{{Name: "user:read"}}},
		},
	}
	assert.ElementsMatch(t, []string{"user:read", "role:read"}, u.PermissionNames())
}

func TestVerificationType_TTL(t *testing.T) {
	assert.Equal(t, 24*time.Hour, VerificationEmail.TTL())
	assert.Equal(t, time.Hour, VerificationPasswordReset.TTL())
}

func TestExpiry_BoundaryIsExpired(t *testing.T) {
	now := time.Now()
	code := &AuthorizationCode{ExpiresAt: now}
	assert.True(t, code.Expired(now))
	assert.False(t, code.Expired(now.Add(-time.Second)))
}

func TestParseProvider(t *testing.T) {
	p, ok := ParseProvider("github")
	assert.True(t, ok)
	assert.Equal(t, ProviderGitHub, p)

	p, ok = ParseProvider("dingtalk")
	assert.True(t, ok)
	assert.Equal(t, ProviderDingTalk, p)

	_, ok = ParseProvider("google")
	assert.False(t, ok)
}
