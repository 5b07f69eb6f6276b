package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/oleg-messenger/oleg/internal/store"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass", "fail" or "skip"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string           `json:"status"` // "healthy" or "degraded"
	Version     string           `json:"version"`
	Region      string           `json:"region,omitempty"`
	Instance    string           `json:"instance,omitempty"`
	Checks      map[string]Check `json:"checks"`
	Connections int              `json:"connections"`
	Timestamp   string           `json:"timestamp"`
}

// Health handles the health check endpoint. Redis and the database mirror are
// optional; only a configured dependency that fails degrades the service.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	// Check the relational mirror
	if h.mirror.Enabled() {
		start := time.Now()
		if err := h.mirror.Ping(ctx); err != nil {
			checks[h.mirror.Driver()] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
		} else {
			checks[h.mirror.Driver()] = Check{Status: "pass", Latency: time.Since(start).String()}
		}
	} else {
		checks["database"] = Check{Status: "skip", Message: "not configured"}
	}

	// Check Redis
	if h.redis != nil {
		start := time.Now()
		if err := store.PingRedis(ctx, h.redis); err != nil {
			checks["redis"] = Check{Status: "fail", Message: "connection failed"}
			allHealthy = false
		} else {
			checks["redis"] = Check{Status: "pass", Latency: time.Since(start).String()}
		}
	} else {
		checks["redis"] = Check{Status: "skip", Message: "not configured"}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    status,
		Version:   version,
		Region:    os.Getenv("FLY_REGION"),
		Instance:  os.Getenv("FLY_ALLOC_ID"),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.hub != nil {
		resp.Connections = h.hub.Connections()
	}

	h.JSON(w, statusCode, resp)
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Root handles the API info endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "Oleg",
		Version: version,
	})
}
