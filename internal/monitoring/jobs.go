package monitoring

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charlesng35/authcore/pkg/metrics"
)

// JobSummary describes the recent history of a maintenance job.
type JobSummary struct {
	Job                 string        `json:"job"`
	LastStatus          string        `json:"last_status"`
	LastRunAt           time.Time     `json:"last_run_at"`
	LastDuration        time.Duration `json:"last_duration"`
	LastError           string        `json:"last_error,omitempty"`
	LastRemoved         int64         `json:"last_removed"`
	ConsecutiveFailures uint64        `json:"consecutive_failures"`
	TotalRuns           uint64        `json:"total_runs"`
}

// JobRun is the outcome of a single maintenance job execution.
type JobRun struct {
	Job      string
	Removed  int64
	Err      error
	Duration time.Duration
}

type jobStore struct {
	mu   sync.Mutex
	jobs map[string]*JobSummary
	now  func() time.Time
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[string]*JobSummary), now: time.Now}
}

func (s *jobStore) record(run JobRun) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[run.Job]
	if !ok {
		entry = &JobSummary{Job: run.Job}
		s.jobs[run.Job] = entry
	}

	entry.LastRunAt = s.now()
	entry.LastDuration = run.Duration
	entry.LastRemoved = run.Removed
	entry.TotalRuns++
	if run.Err != nil {
		entry.LastStatus = "failure"
		entry.LastError = run.Err.Error()
		entry.ConsecutiveFailures++
		return
	}
	entry.LastStatus = "success"
	entry.LastError = ""
	entry.ConsecutiveFailures = 0
}

func (s *jobStore) snapshot() []JobSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobSummary, 0, len(s.jobs))
	for _, entry := range s.jobs {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

// RecordMaintenanceRun updates Prometheus counters and, when a module is installed,
// the job statistics consulted by the maintenance health probe.
func RecordMaintenanceRun(run JobRun) {
	run.Job = strings.TrimSpace(run.Job)
	if run.Job == "" {
		run.Job = "unknown"
	}
	if run.Duration < 0 {
		run.Duration = 0
	}

	result := "success"
	if run.Err != nil {
		result = "failure"
	}
	metrics.MaintenanceRuns.WithLabelValues(run.Job, result).Inc()
	metrics.MaintenanceDuration.WithLabelValues(run.Job).Observe(run.Duration.Seconds())
	if run.Removed > 0 {
		metrics.MaintenanceRemoved.WithLabelValues(run.Job).Add(float64(run.Removed))
	}

	if module := CurrentModule(); module != nil {
		module.jobs.record(run)
	}
}
