package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/pkg/response"
)

// MonitoringOptions describes how metrics are exposed.
type MonitoringOptions struct {
	PrometheusEnabled bool
	Endpoint          string
}

// MonitoringHandler surfaces maintenance job statistics for administrators.
type MonitoringHandler struct {
	module *monitoring.Module
	opts   MonitoringOptions
}

// NewMonitoringHandler constructs a monitoring handler. Returns nil when module is nil.
func NewMonitoringHandler(module *monitoring.Module, opts MonitoringOptions) *MonitoringHandler {
	if module == nil {
		return nil
	}
	if strings.TrimSpace(opts.Endpoint) == "" {
		opts.Endpoint = "/metrics"
	}
	return &MonitoringHandler{module: module, opts: opts}
}

type monitoringSummary struct {
	Jobs       []monitoring.JobSummary `json:"jobs"`
	Prometheus prometheusSummary       `json:"prometheus"`
}

type prometheusSummary struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// Summary returns the latest maintenance run of every job and where metrics are scraped.
func (h *MonitoringHandler) Summary(c *gin.Context) {
	jobs := h.module.Jobs()
	if jobs == nil {
		jobs = []monitoring.JobSummary{}
	}

	response.Success(c, http.StatusOK, monitoringSummary{
		Jobs: jobs,
		Prometheus: prometheusSummary{
			Enabled:  h.opts.PrometheusEnabled,
			Endpoint: h.opts.Endpoint,
		},
	}, "Monitoring summary retrieved successfully")
}
