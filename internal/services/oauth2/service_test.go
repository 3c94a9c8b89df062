package oauth2

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatekeep/internal/common"
	"github.com/bobmcallan/gatekeep/internal/interfaces"
	"github.com/bobmcallan/gatekeep/internal/metrics"
	"github.com/bobmcallan/gatekeep/internal/models"
	"github.com/bobmcallan/gatekeep/internal/storage/memory"
)

const callback = "https://app.example.com/callback"

type fixture struct {
	svc   *Service
	store *memory.Store
	user  *models.User
	app   *models.ApplicationWithSecret
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	user := &models.User{
		ID: "u1", Email: "alice@example.com", Name: "Alice",
		Status: models.UserStatusActive, EmailVerified: true, CreatedAt: time.Now(),
	}
	require.NoError(t, store.CreateUser(ctx, user))

	svc := NewService(store, metrics.New(), common.NewSilentLogger())
	app, err := svc.CreateApplication(ctx, "owner", models.ApplicationInput{
		Name:         "Demo",
		Homepage:     "https://app.example.com",
		RedirectURIs: []string{callback},
	})
	require.NoError(t, err)
	return &fixture{svc: svc, store: store, user: user, app: app}
}

func (f *fixture) code(t *testing.T) string {
	t.Helper()
	issued, err := f.svc.CreateAuthorizationCode(context.Background(), f.user.ID, f.app.ClientID, callback)
	require.NoError(t, err)
	return issued.Code
}

func (f *fixture) tokenRequest(code string) models.TokenRequest {
	return models.TokenRequest{
		Code:         code,
		ClientID:     f.app.ClientID,
		ClientSecret: f.app.ClientSecret,
		RedirectURI:  callback,
		GrantType:    GrantAuthorizationCode,
	}
}

func (f *fixture) refreshRequest(token string) models.RefreshRequest {
	return models.RefreshRequest{
		RefreshToken: token,
		ClientID:     f.app.ClientID,
		ClientSecret: f.app.ClientSecret,
		GrantType:    GrantRefreshToken,
	}
}

func TestAuthorize(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	info, err := f.svc.Authorize(ctx, f.app.ClientID, callback)
	require.NoError(t, err)
	assert.Equal(t, "Demo", info.Application.Name)
	assert.Equal(t, callback, info.RedirectURI)

	_, err = f.svc.Authorize(ctx, f.app.ClientID, callback+"/")
	assert.EqualError(t, err, "invalid redirect uri")

	_, err = f.svc.Authorize(ctx, "unknown", callback)
	assert.True(t, common.IsKind(err, common.KindNotFound))

	inactive := false
	_, err = f.svc.UpdateApplication(ctx, "owner", f.app.ID, models.ApplicationUpdate{IsActive: &inactive})
	require.NoError(t, err)
	_, err = f.svc.Authorize(ctx, f.app.ClientID, callback)
	assert.EqualError(t, err, "application is disabled")
}

func TestExchangeToken_CodeIsSingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.code(t)

	resp, err := f.svc.ExchangeToken(ctx, f.tokenRequest(code))
	require.NoError(t, err)
	assert.Equal(t, 3600, resp.ExpiresIn)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)

	_, err = f.svc.ExchangeToken(ctx, f.tokenRequest(code))
	assert.EqualError(t, err, "invalid authorization code")
	assert.True(t, common.IsKind(err, common.KindBadRequest))

	info, err := f.svc.GetUserByAccessToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", info.User.Email)
	assert.Equal(t, "Demo", info.Application.Name)
}

func TestExchangeToken_ConcurrentExchangeHasOneWinner(t *testing.T) {
	f := newFixture(t)
	code := f.code(t)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.ExchangeToken(context.Background(), f.tokenRequest(code)); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestExchangeToken_ChecksInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.tokenRequest(f.code(t))
	req.GrantType = "password"
	_, err := f.svc.ExchangeToken(ctx, req)
	assert.EqualError(t, err, "unsupported grant type")

	req = f.tokenRequest("nope")
	_, err = f.svc.ExchangeToken(ctx, req)
	assert.EqualError(t, err, "invalid authorization code")

	// client id and secret are both wrong; the client id is reported
	req = f.tokenRequest(f.code(t))
	req.ClientID = "other"
	req.ClientSecret = "wrong"
	_, err = f.svc.ExchangeToken(ctx, req)
	assert.EqualError(t, err, "client id mismatch")

	req = f.tokenRequest(f.code(t))
	req.ClientSecret = "wrong"
	req.RedirectURI = "https://evil.example.com"
	_, err = f.svc.ExchangeToken(ctx, req)
	assert.EqualError(t, err, "invalid client secret")

	req = f.tokenRequest(f.code(t))
	req.RedirectURI = callback + "/"
	_, err = f.svc.ExchangeToken(ctx, req)
	assert.EqualError(t, err, "redirect uri mismatch")

	code := f.code(t)
	inactive := false
	_, err = f.svc.UpdateApplication(ctx, "owner", f.app.ID, models.ApplicationUpdate{IsActive: &inactive})
	require.NoError(t, err)
	_, err = f.svc.ExchangeToken(ctx, f.tokenRequest(code))
	assert.EqualError(t, err, "application is disabled")
}

func TestExchangeToken_ExpiredCodeIsDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.code(t)

	f.svc.now = func() time.Time { return time.Now().Add(CodeTTL + time.Second) }
	_, err := f.svc.ExchangeToken(ctx, f.tokenRequest(code))
	assert.EqualError(t, err, "authorization code expired")

	_, err = f.store.GetAuthorizationCode(ctx, code)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestExchangeToken_RevokesPriorRefreshTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.ExchangeToken(ctx, f.tokenRequest(f.code(t)))
	require.NoError(t, err)
	_, err = f.svc.ExchangeToken(ctx, f.tokenRequest(f.code(t)))
	require.NoError(t, err)

	n, err := f.store.CountActiveRefreshTokens(ctx, f.app.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = f.svc.RefreshToken(ctx, f.refreshRequest(first.RefreshToken))
	assert.EqualError(t, err, "invalid refresh token")
}

func TestRefreshToken_Rotates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.ExchangeToken(ctx, f.tokenRequest(f.code(t)))
	require.NoError(t, err)

	next, err := f.svc.RefreshToken(ctx, f.refreshRequest(pair.RefreshToken))
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = f.svc.RefreshToken(ctx, f.refreshRequest(pair.RefreshToken))
	assert.EqualError(t, err, "invalid refresh token")

	req := f.refreshRequest(next.RefreshToken)
	req.ClientSecret = "wrong"
	_, err = f.svc.RefreshToken(ctx, req)
	assert.EqualError(t, err, "invalid client secret")

	req = f.refreshRequest(next.RefreshToken)
	req.GrantType = GrantAuthorizationCode
	_, err = f.svc.RefreshToken(ctx, req)
	assert.EqualError(t, err, "unsupported grant type")

	_, err = f.svc.RefreshToken(ctx, f.refreshRequest(next.RefreshToken))
	assert.NoError(t, err)
}

func TestRefreshToken_ConcurrentRotationHasOneWinner(t *testing.T) {
	f := newFixture(t)
	pair, err := f.svc.ExchangeToken(context.Background(), f.tokenRequest(f.code(t)))
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.RefreshToken(context.Background(), f.refreshRequest(pair.RefreshToken)); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestGetUserByAccessToken_ExpiredIsDeleted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.ExchangeToken(ctx, f.tokenRequest(f.code(t)))
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(AccessTokenTTL + time.Minute) }
	_, err = f.svc.GetUserByAccessToken(ctx, pair.AccessToken)
	assert.EqualError(t, err, "access token expired")

	_, err = f.store.GetAccessToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = f.svc.GetUserByAccessToken(ctx, "unknown")
	assert.True(t, common.IsKind(err, common.KindBadRequest))
}

func TestRevokeGrant_InvalidatesTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.ExchangeToken(ctx, f.tokenRequest(f.code(t)))
	require.NoError(t, err)

	grants, err := f.svc.ListGrants(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, f.app.ID, grants[0].ApplicationID)

	require.NoError(t, f.svc.RevokeGrant(ctx, f.user.ID, f.app.ID))

	_, err = f.svc.GetUserByAccessToken(ctx, pair.AccessToken)
	assert.True(t, common.IsKind(err, common.KindBadRequest))
	_, err = f.svc.RefreshToken(ctx, f.refreshRequest(pair.RefreshToken))
	assert.Error(t, err)

	err = f.svc.RevokeGrant(ctx, f.user.ID, f.app.ID)
	assert.True(t, common.IsKind(err, common.KindNotFound))

	grants, err = f.svc.ListGrants(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestApplications_OwnerScoping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.GetApplication(ctx, "intruder", f.app.ID)
	assert.True(t, common.IsKind(err, common.KindNotFound))

	name := "Renamed"
	_, err = f.svc.UpdateApplication(ctx, "intruder", f.app.ID, models.ApplicationUpdate{Name: &name})
	assert.True(t, common.IsKind(err, common.KindForbidden))
	assert.True(t, common.IsKind(f.svc.DeleteApplication(ctx, "intruder", f.app.ID), common.KindForbidden))

	updated, err := f.svc.UpdateApplication(ctx, "owner", f.app.ID, models.ApplicationUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, []string{callback}, updated.RedirectURIs)

	page, err := f.svc.ListApplications(ctx, "owner", interfaces.ListOptions{Page: 1, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 100, page.PageSize)
}

func TestApplications_RedirectValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bad := [][]string{
		nil,
		{"not a url"},
		{"ftp://example.com/cb"},
		{"/relative/cb"},
		{"https://a.example.com/1", "https://a.example.com/2", "https://a.example.com/3",
			"https://a.example.com/4", "https://a.example.com/5", "https://a.example.com/6"},
	}
	for _, uris := range bad {
		_, err := f.svc.CreateApplication(ctx, "owner", models.ApplicationInput{Name: "X", RedirectURIs: uris})
		assert.True(t, common.IsKind(err, common.KindBadRequest), "uris %v", uris)
	}
}

func TestRegenerateSecret_InvalidatesOldSecret(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.code(t)
	old := f.app.ClientSecret

	regenerated, err := f.svc.RegenerateSecret(ctx, "owner", f.app.ID)
	require.NoError(t, err)
	assert.NotEqual(t, old, regenerated.ClientSecret)

	_, err = f.svc.ExchangeToken(ctx, f.tokenRequest(code))
	assert.EqualError(t, err, "invalid client secret")

	f.app.ClientSecret = regenerated.ClientSecret
	_, err = f.svc.ExchangeToken(ctx, f.tokenRequest(code))
	assert.NoError(t, err)
}

func TestDeleteApplication_Cascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pair, err := f.svc.ExchangeToken(ctx, f.tokenRequest(f.code(t)))
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteApplication(ctx, "owner", f.app.ID))

	_, err = f.svc.GetUserByAccessToken(ctx, pair.AccessToken)
	assert.Error(t, err)
	grants, err := f.svc.ListGrants(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}
