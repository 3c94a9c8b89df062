package dingtalk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatekeep/internal/models"
)

func newServer(t *testing.T, info map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1.0/oauth2/userAccessToken", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req tokenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "authorization_code", req.GrantType)
		assert.Equal(t, "key", req.ClientID)
		if req.Code != "auth-code" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(errorResponse{Code: "invalidAuthCode", Message: "code invalid"})
			return
		}
		_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "dt-at", RefreshToken: "dt-rt", ExpireIn: 7200})
	})
	mux.HandleFunc("/v1.0/contact/users/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dt-at", r.Header.Get("x-acs-dingtalk-access-token"))
		_ = json.NewEncoder(w).Encode(info)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExchange(t *testing.T) {
	srv := newServer(t, map[string]any{"nick": "Zhang", "unionId": "U1", "email": "Zhang@Example.com", "avatarUrl": "https://a/z.png"})
	c := NewClient("key", "secret", "https://app/cb", WithBaseURL(srv.URL))

	id, err := c.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderDingTalk, id.Provider)
	assert.Equal(t, "U1", id.ProviderID)
	assert.Equal(t, "zhang@example.com", id.Email)
	assert.Equal(t, "dt-rt", id.RefreshToken)
}

func TestExchange_PlaceholderEmail(t *testing.T) {
	srv := newServer(t, map[string]any{"nick": "Li", "unionId": "U2"})
	c := NewClient("key", "secret", "", WithBaseURL(srv.URL))

	id, err := c.Exchange(context.Background(), "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "u2@"+PlaceholderEmailDomain, id.Email)
}

func TestExchange_Errors(t *testing.T) {
	srv := newServer(t, map[string]any{"nick": "nobody"})
	c := NewClient("key", "secret", "", WithBaseURL(srv.URL))

	_, err := c.Exchange(context.Background(), "wrong")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalidAuthCode", apiErr.Code)

	_, err = c.Exchange(context.Background(), "auth-code")
	assert.ErrorIs(t, err, ErrNoIdentity)
}

func TestAuthorizeURL(t *testing.T) {
	c := NewClient("key", "secret", "https://app/cb")
	u, err := url.Parse(c.AuthorizeURL("s1"))
	require.NoError(t, err)
	assert.Equal(t, "login.dingtalk.com", u.Host)
	assert.Equal(t, "key", u.Query().Get("client_id"))
	assert.Equal(t, "openid", u.Query().Get("scope"))
	assert.Equal(t, "s1", u.Query().Get("state"))
}
