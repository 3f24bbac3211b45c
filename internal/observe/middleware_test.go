package observe_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/hecklerbot/heckler/internal/observe"
)

func newTestMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	return m
}

func TestMiddleware_PassesThroughAndRecords(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)

	handler := observe.Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/clips/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
}

func TestNewMetrics_AllInstruments(t *testing.T) {
	t.Parallel()
	m := newTestMetrics(t)
	if m.TranscriptionDuration == nil || m.HTTPRequestDuration == nil ||
		m.TranscriptsHandled == nil || m.ClipsPlayed == nil ||
		m.RateLimited == nil || m.ActiveSpeakers == nil {
		t.Error("all instruments should be initialised")
	}
}
