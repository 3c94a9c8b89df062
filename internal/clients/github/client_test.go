package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatekeep/internal/models"
)

type fakeGitHub struct {
	user       map[string]any
	emails     []map[string]any
	emailsCode int
}

func (f *fakeGitHub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		assert.Equal(t, "cid", r.Form.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "gho_token", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer gho_token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(f.user)
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		if f.emailsCode != 0 {
			w.WriteHeader(f.emailsCode)
			return
		}
		_ = json.NewEncoder(w).Encode(f.emails)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestExchange_PublicEmail(t *testing.T) {
	f := &fakeGitHub{user: map[string]any{"id": 42, "login": "octo", "email": "octo@example.com", "avatar_url": "https://a/x.png"}}
	srv := f.server(t)
	c := NewClient("cid", "secret", "https://app/cb", WithBaseURL(srv.URL))

	id, err := c.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, models.ProviderGitHub, id.Provider)
	assert.Equal(t, "42", id.ProviderID)
	assert.Equal(t, "octo@example.com", id.Email)
	assert.Equal(t, "octo", id.Name, "login is used when name is empty")
	assert.Equal(t, "gho_token", id.AccessToken)
}

func TestExchange_PrimaryVerifiedEmail(t *testing.T) {
	f := &fakeGitHub{
		user: map[string]any{"id": 7, "login": "x", "name": "X Person"},
		emails: []map[string]any{
			{"email": "unverified@example.com", "primary": true, "verified": false},
			{"email": "secondary@example.com", "primary": false, "verified": true},
			{"email": "primary@example.com", "primary": true, "verified": true},
		},
	}
	c := NewClient("cid", "secret", "", WithBaseURL(f.server(t).URL))

	id, err := c.Exchange(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, "primary@example.com", id.Email)
	assert.Equal(t, "X Person", id.Name)
}

func TestExchange_NoEmail(t *testing.T) {
	f := &fakeGitHub{user: map[string]any{"id": 7, "login": "x"}, emailsCode: http.StatusForbidden}
	c := NewClient("cid", "secret", "", WithBaseURL(f.server(t).URL))

	_, err := c.Exchange(context.Background(), "good-code")
	assert.ErrorIs(t, err, ErrNoVerifiedEmail)
}

func TestExchange_BadCode(t *testing.T) {
	f := &fakeGitHub{}
	c := NewClient("cid", "secret", "", WithBaseURL(f.server(t).URL))

	_, err := c.Exchange(context.Background(), "bad-code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "github code exchange failed")
}

func TestAuthorizeURL(t *testing.T) {
	c := NewClient("cid", "secret", "https://app/cb")
	u, err := url.Parse(c.AuthorizeURL("st4te"))
	require.NoError(t, err)

	assert.Equal(t, "github.com", u.Host)
	q := u.Query()
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "st4te", q.Get("state"))
	assert.Equal(t, "https://app/cb", q.Get("redirect_uri"))
	assert.Equal(t, "read:user user:email", q.Get("scope"))
}
