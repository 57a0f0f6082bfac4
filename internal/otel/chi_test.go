package otel

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	prev := otel.GetTracerProvider()
	sr := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return sr
}

func attrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func TestMiddleware_RecordsRoute(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		status     int
		wantRoute  string
		wantStatus codes.Code
	}{
		{"action lookup", "/v1/actions/plan_abc", http.StatusOK, "/v1/actions/{id}", codes.Unset},
		{"engage failure", "/v1/engage", http.StatusInternalServerError, "/v1/engage", codes.Error},
		{"tenant mismatch", "/v1/actions/plan_other", http.StatusNotFound, "/v1/actions/{id}", codes.Unset},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr := recordSpans(t)
			r := chi.NewRouter()
			r.Use(middleware.RequestID)
			r.Use(Middleware())
			handler := func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{}`))
			}
			r.Get("/v1/actions/{id}", handler)
			r.Get("/v1/engage", handler)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, rec.Code)

			spans := sr.Ended()
			require.Len(t, spans, 1)
			s := spans[0]
			assert.Equal(t, "http.request", s.Name())
			got := attrs(s)
			assert.Equal(t, tt.wantRoute, got["http.route"].AsString())
			assert.Equal(t, tt.path, got["url.path"].AsString())
			assert.Equal(t, int64(tt.status), got["http.response.status_code"].AsInt64())
			assert.Equal(t, int64(2), got["http.response.body.size"].AsInt64())
			assert.NotEmpty(t, got["http.request_id"].AsString())
			assert.Equal(t, tt.wantStatus, s.Status().Code)
		})
	}
}

func TestMiddleware_ImplicitOK(t *testing.T) {
	sr := recordSpans(t)
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	got := attrs(spans[0])
	assert.Equal(t, "/health", got["http.route"].AsString())
	assert.Equal(t, int64(http.StatusOK), got["http.response.status_code"].AsInt64())
	_, hasID := got["http.request_id"]
	assert.False(t, hasID)
}
