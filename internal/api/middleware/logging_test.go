package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func serveLogged(t *testing.T, target string) string {
	t.Helper()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := chi.NewRouter()
	r.Use(Logger(logger))
	ok := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) }
	r.Get("/api/sessions/{id}/messages", ok)
	r.Get("/api/stream", ok)
	r.Get("/metrics", ok)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return buf.String()
}

func TestLoggerEmitsRoutePatternAndPath(t *testing.T) {
	out := serveLogged(t, "/api/sessions/3f6cfa32-6a2f-47e8-9f6d-aaaaaaaaaaaa/messages")

	assert.Contains(t, out, `"route":"/api/sessions/{id}/messages"`)
	assert.Contains(t, out, `"path":"/api/sessions/3f6cfa32-6a2f-47e8-9f6d-aaaaaaaaaaaa/messages"`)
	assert.Contains(t, out, `"status":200`)
}

func TestLoggerNeverLogsQueryStrings(t *testing.T) {
	out := serveLogged(t, "/api/stream?token=seekrit-operator-token")

	assert.NotEmpty(t, out)
	assert.NotContains(t, out, "seekrit-operator-token")
	assert.NotContains(t, out, "token=")
}

func TestLoggerSkipsMetricsScrapes(t *testing.T) {
	out := serveLogged(t, "/metrics")
	assert.Empty(t, out)
}
