package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/gatekeep/internal/app"
	"github.com/bobmcallan/gatekeep/internal/common"
)

// captureMailer records the last token sent to each address.
type captureMailer struct {
	mu     sync.Mutex
	verify map[string]string
	reset  map[string]string
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{verify: map[string]string{}, reset: map[string]string{}}
}

func (m *captureMailer) SendVerificationEmail(_ context.Context, email, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verify[email] = token
	return nil
}

func (m *captureMailer) SendPasswordResetEmail(_ context.Context, email, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset[email] = token
	return nil
}

func (m *captureMailer) verifyToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verify[email]
}

func (m *captureMailer) resetToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reset[email]
}

type testServer struct {
	t       *testing.T
	app     *app.App
	handler http.Handler
	mailer  *captureMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Environment = "test"
	cfg.Storage.Backend = "memory"
	cfg.Auth.BcryptCost = 4

	mailer := newCaptureMailer()
	a, err := app.New(context.Background(), cfg, common.NewSilentLogger(),
		app.WithMailer(mailer), app.WithIdentityProviders())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	return &testServer{t: t, app: a, handler: NewServer(a).Handler(), mailer: mailer}
}

// do sends a request with an optional JSON body and bearer token.
func (ts *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	ts.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(ts.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type authBody struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// signUp registers, verifies and logs in a user.
func (ts *testServer) signUp(email string) authBody {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": email, "password": "Passw0rd!", "name": "Test User",
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(http.MethodPost, "/api/auth/verify-email", "", map[string]string{
		"token": ts.mailer.verifyToken(email),
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())

	return ts.login(email, "Passw0rd!")
}

func (ts *testServer) login(email, password string) authBody {
	ts.t.Helper()
	rec := ts.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(ts.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[authBody](ts.t, rec)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestVersion(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/version", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, common.GetVersion(), body["version"])
	assert.Contains(t, body, "commit")
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/health", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint_RecordsRoutePattern(t *testing.T) {
	ts := newTestServer(t)
	ts.signUp("metrics@example.com")

	rec := ts.do(http.MethodGet, "/api/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `gatekeep_http_requests_total{method="POST",route="/api/auth/login",status="200"}`), body)
	assert.Contains(t, body, `gatekeep_auth_events_total{event="login",outcome="success"}`)
}
