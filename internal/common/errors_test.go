package common

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf_UnwrapsServiceErrors(t *testing.T) {
	base := Unauthorized("email not verified")
	wrapped := fmt.Errorf("login: %w", base.WithCode("EMAIL_NOT_VERIFIED"))

	assert.Equal(t, KindUnauthorized, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindUnauthorized))

	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", e.Code)
	assert.Empty(t, base.Code, "WithCode must not mutate the receiver")
}

func TestError_MessageOnly(t *testing.T) {
	assert.EqualError(t, BadRequest("invalid authorization code"), "invalid authorization code")
	assert.EqualError(t, Unauthorized("email not verified").WithCode("EMAIL_NOT_VERIFIED"), "email not verified")
	assert.EqualError(t, fmt.Errorf("login: %w", Forbidden("insufficient permissions")), "login: insufficient permissions")
	assert.Equal(t, "bad_request", KindBadRequest.String())
}

func TestKindOf_PlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(fmt.Errorf("db down")))
	assert.False(t, IsKind(nil, KindInternal))
}

func TestPrincipal_RoundTrip(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, PrincipalFromContext(ctx))
	assert.Equal(t, "", ResolveUserID(ctx))

	p := &AuthenticatedPrincipal{
		UserID: "user-123",
		Email:  "a@x.com",
		Roles:  []PrincipalRole{{Name: "ADMIN", Permissions: []string{"user:read"}}},
	}
	ctx = WithPrincipal(ctx, p)

	got := PrincipalFromContext(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "user-123", ResolveUserID(ctx))
	assert.Equal(t, []string{"ADMIN"}, got.RoleNames())
}
