package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Status    string            `json:"status"`
}

// Pinger is a dependency that can report its reachability.
// *pgxpool.Pool satisfies it directly.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

// Ping calls f
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// HealthChecker manages health checks for the service
type HealthChecker struct {
	checks  map[string]Pinger
	timeout time.Duration
}

// NewHealthChecker creates a new HealthChecker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]Pinger),
		timeout: 2 * time.Second,
	}
}

// Register adds a named dependency. A nil pinger is reported as "not configured".
func (h *HealthChecker) Register(name string, p Pinger) *HealthChecker {
	h.checks[name] = p
	return h
}

// Check performs health checks and returns the status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	checks := make(map[string]string, len(h.checks))
	overallStatus := "healthy"

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		p := h.checks[name]
		if p == nil {
			checks[name] = "not configured"
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := p.Ping(checkCtx)
		cancel()

		if err != nil {
			checks[name] = "unhealthy: " + err.Error()
			overallStatus = "unhealthy"
		} else {
			checks[name] = "healthy"
		}
	}

	return HealthStatus{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Checks:    checks,
	}
}

// HealthHandler returns an HTTP handler for health checks
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if status.Status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		_ = json.NewEncoder(w).Encode(status)
	}
}

// WatchGRPC mirrors the check result into a gRPC health server until ctx is done
func (h *HealthChecker) WatchGRPC(ctx context.Context, srv *health.Server, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		serving := healthpb.HealthCheckResponse_SERVING
		if h.Check(ctx).Status != "healthy" {
			serving = healthpb.HealthCheckResponse_NOT_SERVING
		}
		srv.SetServingStatus("", serving)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
