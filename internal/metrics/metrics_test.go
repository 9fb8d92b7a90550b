package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	m := New()

	m.SignInStarted("google")
	m.SignInStarted("google")
	m.CallbackHandled("google", "success")
	m.CallbackHandled("github", "state_mismatch")
	m.VerificationHandled("google", "validated")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.signInStarted.WithLabelValues("google")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callbacksHandled.WithLabelValues("google", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callbacksHandled.WithLabelValues("github", "state_mismatch")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.callbacksHandled.WithLabelValues("google", "exchange_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verificationHandled.WithLabelValues("google", "validated")))
}

func TestRecordHTTPRequest(t *testing.T) {
	m := New()
	m.RecordHTTPRequest(http.MethodGet, "GET /ping", http.StatusOK, 3*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "GET /ping", "200")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.CallbackHandled("google", "success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `identity_bot_oauth_callbacks_total{provider="google",result="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
