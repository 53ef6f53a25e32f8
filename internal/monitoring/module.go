package monitoring

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Module bundles the health manager, maintenance job statistics and the Prometheus
// exposition handler.
type Module struct {
	gatherer prometheus.Gatherer
	jobs     *jobStore
	health   *HealthManager
}

// Options control monitoring module configuration.
type Options struct {
	// Gatherer overrides the registry served by Handler. Defaults to prometheus.DefaultGatherer,
	// where pkg/metrics registers its collectors.
	Gatherer prometheus.Gatherer
}

// NewModule constructs a monitoring module.
func NewModule(opts Options) *Module {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Module{
		gatherer: gatherer,
		jobs:     newJobStore(),
		health:   NewHealthManager(),
	}
}

// Handler returns an http.Handler serving Prometheus metrics.
func (m *Module) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Health exposes the health manager responsible for liveness and readiness probes.
func (m *Module) Health() *HealthManager {
	if m == nil {
		return nil
	}
	return m.health
}

// Jobs returns a snapshot of maintenance job statistics.
func (m *Module) Jobs() []JobSummary {
	if m == nil {
		return nil
	}
	return m.jobs.snapshot()
}

var globalModule atomic.Pointer[Module]

// SetModule configures the process-wide module used by RecordMaintenanceRun.
func SetModule(module *Module) {
	if module == nil {
		return
	}
	globalModule.Store(module)
}

// CurrentModule returns the process-wide monitoring module, or nil when unset.
func CurrentModule() *Module {
	return globalModule.Load()
}
