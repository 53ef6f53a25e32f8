package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/pkg/response"
)

const healthTimeout = 5 * time.Second

// HealthHandler exposes liveness and readiness reports.
type HealthHandler struct {
	health *monitoring.HealthManager
}

// NewHealthHandler builds a handler over the module's probes. A nil module reports up with
// no checks.
func NewHealthHandler(module *monitoring.Module) *HealthHandler {
	health := module.Health()
	if health == nil {
		health = monitoring.NewHealthManager()
	}
	return &HealthHandler{health: health}
}

// Liveness reports whether the process can serve requests.
func (h *HealthHandler) Liveness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	writeReport(c, h.health.EvaluateLiveness(ctx))
}

// Readiness reports whether dependencies such as the database are reachable.
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	writeReport(c, h.health.EvaluateReadiness(ctx))
}

// Health merges liveness and readiness into a single report.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	report := monitoring.MergeReports(h.health.EvaluateLiveness(ctx), h.health.EvaluateReadiness(ctx))
	writeReport(c, report)
}

// writeReport answers 503 only when a probe is down; degraded dependencies still serve.
func writeReport(c *gin.Context, report monitoring.HealthReport) {
	status := http.StatusOK
	message := "Service healthy"
	switch report.Status {
	case monitoring.StatusDown:
		status = http.StatusServiceUnavailable
		message = "Service unavailable"
	case monitoring.StatusDegraded:
		message = "Service degraded"
	}
	response.Success(c, status, report, message)
}
