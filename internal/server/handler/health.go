package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is a dependency whose reachability the health check reports.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	deps    map[string]Pinger
	timeout time.Duration
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler that pings each named dependency.
func NewHealthHandler(deps map[string]Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{deps: deps, timeout: 2 * time.Second, logger: logHandler(logger, "health")}
}

type healthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck reports "ok" when every dependency answers, and 503 with the
// failing checks otherwise.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK
	if len(h.deps) > 0 {
		resp.Checks = make(map[string]string, len(h.deps))
	}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "handler: dependency unhealthy",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}
