package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/sakif/jamspace/internal/telemetry"
)

func TestLogger_RecordsRoutePatternAndStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(Logger(logger))
	r.Get("/api/jams/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("nope"))
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/jams/abc123", nil))

	line := buf.String()
	assert.Contains(t, line, "level=WARN")
	assert.Contains(t, line, "route=/api/jams/{id}")
	assert.Contains(t, line, "path=/api/jams/abc123")
	assert.Contains(t, line, "status=404")
	assert.Contains(t, line, "bytes=4")
	assert.NotContains(t, line, `requestID=""`)
}

func TestLogger_UnmatchedRoute(t *testing.T) {
	var buf bytes.Buffer
	r := chi.NewRouter()
	r.Use(Logger(slog.New(slog.NewTextHandler(&buf, nil))))
	r.Get("/health", func(http.ResponseWriter, *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.True(t, strings.Contains(buf.String(), "route=unmatched"), buf.String())
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rw := wrap(httptest.NewRecorder())
	rw.Write([]byte("ok"))
	rw.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, rw.statusCode)
}

func TestMetrics_CountsByRoute(t *testing.T) {
	telemetry.Init()

	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/api/jams/{id}/participants", func(w http.ResponseWriter, r *http.Request) {})

	c := telemetry.HTTPRequests.WithLabelValues(http.MethodGet, "/api/jams/{id}/participants", "200")
	before := testutil.ToFloat64(c)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/jams/a/participants", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/jams/b/participants", nil))

	assert.Equal(t, float64(2), testutil.ToFloat64(c)-before)
}
