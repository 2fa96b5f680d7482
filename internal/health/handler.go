package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Dasi-Technology/presenced/internal/bus"
	"github.com/Dasi-Technology/presenced/internal/logging"
)

// Handler manages health check endpoints.
type Handler struct {
	busService *bus.Service
}

// NewHandler creates a new health check handler. busService may be
// nil to run in single-instance mode with the bus check considered
// healthy.
func NewHandler(busService *bus.Service) *Handler {
	return &Handler{busService: busService}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Liveness handles the liveness probe endpoint.
// GET /health/live
// Returns 200 if the process is alive (no dependency checks).
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the readiness probe endpoint.
// GET /health/ready
// Returns 200 only if the presence bus is reachable, 503 otherwise.
func (h *Handler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := map[string]string{"bus": h.checkBus(ctx)}

	status := "ready"
	statusCode := http.StatusOK
	if checks["bus"] != "healthy" {
		status = "unavailable"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, ReadinessResponse{
		Status:    status,
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// checkBus verifies bus connectivity using PING.
func (h *Handler) checkBus(ctx context.Context) string {
	if h.busService == nil {
		return "healthy"
	}

	if err := h.busService.Ping(ctx); err != nil {
		logging.Error(ctx, "bus health check failed", zap.Error(err))
		return "unhealthy"
	}

	return "healthy"
}
