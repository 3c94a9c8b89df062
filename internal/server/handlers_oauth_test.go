package server

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatekeep/internal/models"
)

const testCallback = "https://client.example.com/callback"

type appBody struct {
	ID           string `json:"id"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

func (ts *testServer) createApp(token string) appBody {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/applications", token, map[string]any{
		"name":         "Client",
		"homepage":     "https://client.example.com",
		"redirectUris": []string{testCallback},
	})
	require.Equal(ts.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[appBody](ts.t, rec)
}

// consent approves the application and returns the issued code.
func (ts *testServer) consent(token, clientID string) string {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/oauth/authorize", token, map[string]string{
		"clientId": clientID, "redirectUri": testCallback, "state": "xyz",
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode[consentResponse](ts.t, rec)
	u, err := url.Parse(body.RedirectURL)
	require.NoError(ts.t, err)
	assert.Equal(ts.t, "xyz", u.Query().Get("state"))
	assert.True(ts.t, strings.HasPrefix(body.RedirectURL, testCallback+"?"))
	return u.Query().Get("code")
}

func TestOAuthFlow_EndToEnd(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.signUp("dev@example.com")
	user := ts.signUp("user@example.com")
	client := ts.createApp(owner.AccessToken)
	require.NotEmpty(t, client.ClientSecret)

	rec := ts.do(http.MethodGet, "/api/oauth/authorize?clientId="+client.ClientID+
		"&redirectUri="+url.QueryEscape(testCallback)+"&state=abc", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	info := decode[models.AuthorizeInfo](t, rec)
	assert.Equal(t, "Client", info.Application.Name)
	assert.Equal(t, "abc", info.State)

	code := ts.consent(user.AccessToken, client.ClientID)
	exchange := models.TokenRequest{
		Code: code, ClientID: client.ClientID, ClientSecret: client.ClientSecret,
		RedirectURI: testCallback, GrantType: "authorization_code",
	}
	rec = ts.do(http.MethodPost, "/api/oauth/token", "", exchange)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	tok := decode[models.OAuthTokenResponse](t, rec)
	assert.Equal(t, 3600, tok.ExpiresIn)
	assert.Equal(t, "Bearer", tok.TokenType)

	// Codes are single-use.
	rec = ts.do(http.MethodPost, "/api/oauth/token", "", exchange)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/oauth/me", tok.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	me := decode[models.UserInfo](t, rec)
	assert.Equal(t, "user@example.com", me.User.Email)
	assert.Equal(t, "Client", me.Application.Name)

	rec = ts.do(http.MethodGet, "/api/user/grants", user.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	grants := decode[[]models.GrantView](t, rec)
	require.Len(t, grants, 1)
	assert.Equal(t, client.ID, grants[0].ApplicationID)

	rec = ts.do(http.MethodDelete, "/api/user/grants?applicationId="+client.ID, user.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodGet, "/api/oauth/me", tok.AccessToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOAuthToken_FormEncodedRefresh(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.signUp("dev@example.com")
	client := ts.createApp(owner.AccessToken)
	code := ts.consent(owner.AccessToken, client.ClientID)

	rec := ts.do(http.MethodPost, "/api/oauth/token", "", models.TokenRequest{
		Code: code, ClientID: client.ClientID, ClientSecret: client.ClientSecret,
		RedirectURI: testCallback, GrantType: "authorization_code",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[models.OAuthTokenResponse](t, rec)

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {first.RefreshToken},
		"client_id":     {client.ClientID},
		"client_secret": {client.ClientSecret},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/oauth/token/refresh", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	second := decode[models.OAuthTokenResponse](t, rr)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The rotated refresh token is spent.
	rec = ts.do(http.MethodPost, "/api/oauth/token/refresh", "", models.RefreshRequest{
		RefreshToken: first.RefreshToken, ClientID: client.ClientID,
		ClientSecret: client.ClientSecret, GrantType: "refresh_token",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOAuthAuthorize_Rejections(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.signUp("dev@example.com")
	client := ts.createApp(owner.AccessToken)

	rec := ts.do(http.MethodGet, "/api/oauth/authorize?client_id="+client.ClientID+
		"&redirect_uri="+url.QueryEscape("https://evil.example.com/cb"), "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodGet, "/api/oauth/authorize?client_id=missing&redirect_uri="+url.QueryEscape(testCallback), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPost, "/api/oauth/authorize", "", map[string]string{
		"clientId": client.ClientID, "redirectUri": testCallback,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodGet, "/api/oauth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApplications_OwnerScoped(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.signUp("owner@example.com")
	other := ts.signUp("other@example.com")
	client := ts.createApp(owner.AccessToken)

	rec := ts.do(http.MethodGet, "/api/applications/"+client.ID, other.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodPatch, "/api/applications/"+client.ID, other.AccessToken, map[string]any{"name": "Hijack"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/api/applications", other.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, rec)["total"])

	rec = ts.do(http.MethodPatch, "/api/applications/"+client.ID, owner.AccessToken, map[string]any{"name": "Renamed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Renamed", decode[map[string]any](t, rec)["name"])

	rec = ts.do(http.MethodPost, "/api/applications/"+client.ID+"/regenerate-secret", owner.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, client.ClientSecret, decode[appBody](t, rec).ClientSecret)

	rec = ts.do(http.MethodDelete, "/api/applications/"+client.ID, owner.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(http.MethodGet, "/api/applications/"+client.ID, owner.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
