package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/pkg/logger"
)

const (
	// DefaultSchedule runs the sweeps daily at midnight.
	DefaultSchedule       = "0 0 * * *"
	defaultAuditRetention = 90 * 24 * time.Hour
	// DefaultGaugeInterval is how often the active session gauge is recounted.
	DefaultGaugeInterval = time.Minute

	JobSessions     = "refresh_tokens"
	JobVerification = "verification_tokens"
	JobCache        = "cache_entries"
	JobAudit        = "audit_logs"
)

// Sweeper deletes rows that expired before now and reports how many were removed.
type Sweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// AuditPruner removes audit rows created before cutoff.
type AuditPruner interface {
	CleanupOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// GaugeSyncer recounts a gauge from stored rows.
type GaugeSyncer interface {
	SyncActiveGauge(ctx context.Context) (int64, error)
}

type job struct {
	name string
	run  func(ctx context.Context, now time.Time) (int64, error)
}

// Cleaner runs the periodic purge of expired sessions, verification codes, cache rows and
// stale audit logs.
type Cleaner struct {
	cron      *cron.Cron
	schedule  string
	retention time.Duration
	now       func() time.Time
	log       *zap.Logger

	sessions     Sweeper
	verification Sweeper
	cache        Sweeper
	audit        AuditPruner

	gauge         GaugeSyncer
	gaugeInterval time.Duration
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSchedule overrides the cron specification shared by all jobs.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithSessions enables the refresh token sweep.
func WithSessions(s Sweeper) Option {
	return func(cleaner *Cleaner) { cleaner.sessions = s }
}

// WithVerification enables the verification code sweep.
func WithVerification(s Sweeper) Option {
	return func(cleaner *Cleaner) { cleaner.verification = s }
}

// WithCache enables the database cache sweep.
func WithCache(s Sweeper) Option {
	return func(cleaner *Cleaner) { cleaner.cache = s }
}

// WithAudit enables audit log pruning. A non-positive retention keeps the default.
func WithAudit(a AuditPruner, retention time.Duration) Option {
	return func(cleaner *Cleaner) {
		cleaner.audit = a
		if retention > 0 {
			cleaner.retention = retention
		}
	}
}

// WithGaugeSync recounts the active session gauge every interval and after each sweep.
// A non-positive interval uses DefaultGaugeInterval.
func WithGaugeSync(g GaugeSyncer, interval time.Duration) Option {
	return func(cleaner *Cleaner) {
		cleaner.gauge = g
		if interval > 0 {
			cleaner.gaugeInterval = interval
		}
	}
}

// NewCleaner constructs a Cleaner. Sweeps that were not configured are skipped.
func NewCleaner(opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		schedule:  DefaultSchedule,
		retention: defaultAuditRetention,
		now:       time.Now,

		gaugeInterval: DefaultGaugeInterval,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) jobs() []job {
	var jobs []job
	if c.sessions != nil {
		jobs = append(jobs, job{name: JobSessions, run: c.sessions.SweepExpired})
	}
	if c.verification != nil {
		jobs = append(jobs, job{name: JobVerification, run: c.verification.SweepExpired})
	}
	if c.cache != nil {
		jobs = append(jobs, job{name: JobCache, run: c.cache.SweepExpired})
	}
	if c.audit != nil {
		jobs = append(jobs, job{name: JobAudit, run: func(ctx context.Context, now time.Time) (int64, error) {
			return c.audit.CleanupOlderThan(ctx, now.Add(-c.retention))
		}})
	}
	return jobs
}

// Start registers the sweeps and the gauge recount with the cron scheduler and launches
// it when either is configured.
func (c *Cleaner) Start() error {
	sweeps := len(c.jobs()) > 0
	if !sweeps && c.gauge == nil {
		return nil
	}

	if sweeps {
		if _, err := c.cron.AddFunc(c.schedule, func() {
			if err := c.RunOnce(context.Background()); err != nil {
				c.log.Warn("maintenance run failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		c.log.Info("maintenance scheduled", zap.String("schedule", c.schedule))
	}
	if c.gauge != nil {
		c.cron.Schedule(cron.Every(c.gaugeInterval), cron.FuncJob(func() {
			c.syncGauge(context.Background())
		}))
	}

	c.cron.Start()
	return nil
}

// SyncGauges recounts the configured gauges immediately.
func (c *Cleaner) SyncGauges(ctx context.Context) {
	c.syncGauge(ctx)
}

func (c *Cleaner) syncGauge(ctx context.Context) {
	if c.gauge == nil {
		return
	}
	if _, err := c.gauge.SyncActiveGauge(ctx); err != nil {
		c.log.Warn("active session recount failed", zap.Error(err))
	}
}

// Stop halts the underlying scheduler. The returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every configured sweep sequentially. A failing sweep does not stop the
// others; all errors are combined.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	now := c.now()
	var errs error

	for _, j := range c.jobs() {
		start := time.Now()
		removed, err := j.run(ctx, now)
		monitoring.RecordMaintenanceRun(monitoring.JobRun{
			Job:      j.name,
			Removed:  removed,
			Err:      err,
			Duration: time.Since(start),
		})
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if removed > 0 {
			c.log.Info("expired rows removed", zap.String("job", j.name), zap.Int64("removed", removed))
		}
	}

	c.syncGauge(ctx)
	return errs
}
