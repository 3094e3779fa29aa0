package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthChecker_Check(t *testing.T) {
	hc := NewHealthChecker().
		Register("database", PingFunc(func(ctx context.Context) error { return nil })).
		Register("redis", nil)

	status := hc.Check(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Checks["database"])
	assert.Equal(t, "not configured", status.Checks["redis"])

	hc.Register("redis", PingFunc(func(ctx context.Context) error { return errors.New("connection refused") }))
	status = hc.Check(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "unhealthy: connection refused", status.Checks["redis"])
}

func TestHealthChecker_HealthHandler(t *testing.T) {
	hc := NewHealthChecker().
		Register("database", PingFunc(func(ctx context.Context) error { return errors.New("down") }))

	rec := httptest.NewRecorder()
	hc.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"unhealthy: down"`)
}

func TestHTTPMiddleware_PassesThrough(t *testing.T) {
	h := HTTPMiddleware("test", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
