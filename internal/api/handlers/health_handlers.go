package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yieldvault/yield_service/pkg/logger"
)

const readinessTimeout = 3 * time.Second

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// CheckResult is the outcome of a single dependency probe
type CheckResult struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency"`
}

// HealthResponse is returned by the health endpoints
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Uptime    int64                  `json:"uptimeSeconds"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks    map[string]HealthCheck
	logger    *logger.Logger
	version   string
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checks map[string]HealthCheck, logger *logger.Logger, version string) *HealthHandler {
	if checks == nil {
		checks = map[string]HealthCheck{}
	}
	return &HealthHandler{
		checks:    checks,
		logger:    logger,
		version:   version,
		startTime: time.Now(),
	}
}

// Health handles the liveness probe
// @Summary Liveness check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    int64(time.Since(h.startTime).Seconds()),
	})
}

// Ready handles the readiness probe. Any failing dependency makes the
// instance unready.
// @Summary Readiness check
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "healthy"
	results := make(map[string]CheckResult, len(names))
	for _, name := range names {
		start := time.Now()
		err := h.checks[name](ctx)
		res := CheckResult{Status: "healthy", Latency: time.Since(start).String()}
		if err != nil {
			res.Status = "unhealthy"
			res.Error = err.Error()
			status = "unhealthy"
		}
		results[name] = res
	}

	statusCode := http.StatusOK
	if status != "healthy" {
		statusCode = http.StatusServiceUnavailable
		h.logger.Warn("Readiness check failed", "checks", results)
	}

	c.JSON(statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    int64(time.Since(h.startTime).Seconds()),
		Checks:    results,
	})
}
