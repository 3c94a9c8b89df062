package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthEvent_CountsByOutcome(t *testing.T) {
	m := New()

	m.AuthEvent(EventLogin, nil)
	m.AuthEvent(EventLogin, nil)
	m.AuthEvent(EventLogin, errors.New("bad password"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authEvents.WithLabelValues(EventLogin, OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authEvents.WithLabelValues(EventLogin, OutcomeFailure)))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.AuthEvent(EventLogin, nil)
		m.ObserveRequest(http.MethodGet, "/api/health", 200, time.Millisecond)
	})
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/api/health", http.StatusOK, 5*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `gatekeep_http_requests_total{method="GET",route="/api/health",status="200"} 1`)
	assert.Contains(t, text, `route="unmatched"`)
	assert.Contains(t, text, "gatekeep_http_request_duration_seconds_bucket")
	assert.Contains(t, text, "go_goroutines")
}
