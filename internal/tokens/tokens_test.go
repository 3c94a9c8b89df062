package tokens

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)
	return c
}

func TestNewCodec_RejectsBadConfig(t *testing.T) {
	_, err := NewCodec("", "x", time.Minute, time.Minute)
	assert.Error(t, err)
	_, err = NewCodec("same", "same", time.Minute, time.Minute)
	assert.Error(t, err)
	_, err = NewCodec("a", "b", 0, time.Minute)
	assert.Error(t, err)
}

func TestCodec_TTLs(t *testing.T) {
	c := newTestCodec(t)
	assert.Equal(t, 15*time.Minute, c.AccessTTL())
	assert.Equal(t, 7*24*time.Hour, c.RefreshTTL())
}

func TestAccessRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	signed, exp, err := c.SignAccess("user-1", "a@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 2*time.Second)

	claims, err := c.ParseAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "a@example.com", claims.Email)
	assert.InDelta(t, (15 * time.Minute).Seconds(), c.Remaining(claims).Seconds(), 2)
}

func TestRefreshRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	signed, _, err := c.SignRefresh("user-1", "rec-9")
	require.NoError(t, err)

	claims, err := c.ParseRefresh(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "rec-9", claims.TokenID)
}

func TestSecretsAreNotInterchangeable(t *testing.T) {
	c := newTestCodec(t)
	access, _, err := c.SignAccess("user-1", "a@example.com")
	require.NoError(t, err)
	refresh, _, err := c.SignRefresh("user-1", "rec-1")
	require.NoError(t, err)

	_, err = c.ParseRefresh(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = c.ParseAccess(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccess_Expired(t *testing.T) {
	c := newTestCodec(t)
	signed, _, err := c.SignAccess("user-1", "a@example.com")
	require.NoError(t, err)

	c.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	_, err = c.ParseAccess(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccess_RejectsOtherAlgorithms(t *testing.T) {
	c := newTestCodec(t)
	claims := AccessClaims{
		Email: "a@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = c.ParseAccess(none)
	assert.ErrorIs(t, err, ErrInvalidToken)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("access-secret"))
	require.NoError(t, err)
	_, err = c.ParseAccess(hs512)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAccess_Garbage(t *testing.T) {
	c := newTestCodec(t)
	for _, in := range []string{"", "not.a.jwt", "a.b"} {
		_, err := c.ParseAccess(in)
		assert.ErrorIs(t, err, ErrInvalidToken, in)
	}
}

func TestRandomHex(t *testing.T) {
	a, err := RandomHex(CodeBytes)
	require.NoError(t, err)
	b, err := RandomHex(CodeBytes)
	require.NoError(t, err)
	assert.Len(t, a, 48)
	assert.NotEqual(t, a, b)
}

func TestHash(t *testing.T) {
	h := Hash("token")
	assert.Len(t, h, 64)
	assert.Equal(t, h, Hash("token"))
	assert.NotEqual(t, h, Hash("token2"))
	assert.True(t, Equal("abc", "abc"))
	assert.False(t, Equal("abc", "abd"))
}

func TestStateSigner(t *testing.T) {
	s := NewStateSigner("state-secret")
	state, err := s.Issue("GITHUB")
	require.NoError(t, err)

	require.NoError(t, s.Verify(state, "GITHUB"))
	assert.Error(t, s.Verify(state, "DINGTALK"))
	assert.Error(t, NewStateSigner("other").Verify(state, "GITHUB"))
	assert.Error(t, s.Verify("garbage", "GITHUB"))

	payload, sig, _ := strings.Cut(state, ".")
	assert.Error(t, s.Verify(payload+"x."+sig, "GITHUB"))

	s.now = func() time.Time { return time.Now().Add(StateTTL + time.Minute) }
	assert.Error(t, s.Verify(state, "GITHUB"))
}

func TestSignAccess_TokensAreDistinct(t *testing.T) {
	c := newTestCodec(t)
	fixed := time.Now()
	c.now = func() time.Time { return fixed }

	a, _, err := c.SignAccess("user-1", "a@example.com")
	require.NoError(t, err)
	b, _, err := c.SignAccess("user-1", "a@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "two logins in the same second must not share a token")
}
