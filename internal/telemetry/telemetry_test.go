package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/media_relay/internal/logctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledTelemetryIsNoop(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	boom := errors.New("boom")

	assert.NotPanics(t, func() {
		tel.JobStarted(ctx, "telegram")
		tel.JobRejected(ctx, "telegram")
		tel.RecordJob(ctx, "telegram", "completed", time.Second)
		tel.RecordDirectRelay(ctx, "success")
		tel.RecordTransferBytes(ctx, "download", 10)
		tel.RecordRelayOperation("telegram", "relay_url", "error")
		tel.RecordSystemError("coordinator", "panic")
	})

	assert.ErrorIs(t, tel.InstrumentRelayOperation(ctx, "putio", "upload", func(context.Context) error { return boom }), boom)
	assert.NoError(t, tel.InstrumentDBOperation(ctx, "track", func(context.Context) error { return nil }))

	outcome, n, err := tel.InstrumentPhase(ctx, "download", func(context.Context) (string, int64, error) {
		return "completed", 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "completed", outcome)
	assert.Equal(t, int64(42), n)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestNilTelemetryIsNoop(t *testing.T) {
	var tel *Telemetry

	ctx := context.Background()
	assert.NotPanics(t, func() {
		tel.RecordJob(ctx, "http", "failed", time.Millisecond)
		tel.RecordHTTPRequest(http.MethodGet, "/", "2xx", time.Millisecond)
		_ = tel.Tracer()
	})
	assert.NoError(t, tel.InstrumentOperation(ctx, "op", "test", func(context.Context) error { return nil }))
}

func TestEnabledTelemetryExposesMetrics(t *testing.T) {
	ctx := context.Background()

	tel, err := New(ctx, Config{Enabled: true, ServiceName: "media_relay_test", ServiceVersion: "test"})
	require.NoError(t, err)
	defer tel.Shutdown(ctx)

	tel.JobStarted(ctx, "http")
	tel.RecordJob(ctx, "http", "completed", 2*time.Second)

	_, _, err = tel.InstrumentPhase(ctx, "upload", func(context.Context) (string, int64, error) {
		return "completed", 1024, nil
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "jobs_total")
	assert.Contains(t, body, "transfer_bytes_total")
}

func TestHTTPMiddleware_UsesRoutePattern(t *testing.T) {
	tel, err := New(context.Background(), Config{Enabled: true, ServiceName: "media_relay_mw"})
	require.NoError(t, err)
	defer tel.Shutdown(context.Background())

	r := chi.NewRouter()
	r.Use(NewHTTPMiddleware(tel).Middleware)
	r.Get("/jobs/{requester}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/http:alice", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	metrics := httptest.NewRecorder()
	tel.Handler().ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metrics.Body.String(), `path="/jobs/{requester}"`)
	assert.NotContains(t, metrics.Body.String(), "http:alice")
}

func TestGetStatusClass(t *testing.T) {
	tests := map[int]string{
		200: "2xx",
		204: "2xx",
		302: "3xx",
		404: "4xx",
		503: "5xx",
		100: "unknown",
	}

	for code, want := range tests {
		assert.Equal(t, want, getStatusClass(code), code)
	}
}

func TestRequestID(t *testing.T) {
	var seen string

	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", seen)
	assert.Equal(t, "", GetRequestID(context.Background()))
}

func TestHTTPLogging_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{status: http.StatusOK, level: "INFO"},
		{status: http.StatusNotFound, level: "WARN"},
		{status: http.StatusInternalServerError, level: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			h := RequestID(HTTPLogging(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			})))

			req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
			req = req.WithContext(logctx.WithLogger(req.Context(), logger))
			h.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, float64(tt.status), entry["status"])
			assert.NotEmpty(t, entry["request_id"])
		})
	}
}
