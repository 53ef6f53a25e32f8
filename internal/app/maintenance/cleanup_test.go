package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/cache"
	testutil "github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/internal/monitoring"
	"github.com/charlesng35/authcore/internal/services"
	"github.com/charlesng35/authcore/pkg/crypto"
	"github.com/charlesng35/authcore/pkg/metrics"
)

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ctx := context.Background()
	clock := fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}

	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{RefreshTokenTTL: time.Hour})
	require.NoError(t, err)
	codes, err := iauth.NewVerificationStore(db, iauth.VerificationConfig{TTL: time.Hour})
	require.NoError(t, err)
	auditSvc, err := services.NewAuditService(db)
	require.NoError(t, err)

	user := seedUser(t, db, "cleanup")

	_, err = sessions.Create(ctx, user.ID, "expired")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.RefreshToken{}).Where("device_info = ?", "expired").
		Update("expires_at", clock.Now().Add(-2*time.Hour)).Error)
	_, err = sessions.Create(ctx, user.ID, "active")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.RefreshToken{}).Where("device_info = ?", "active").
		Update("expires_at", clock.Now().Add(time.Hour)).Error)

	_, err = codes.Issue(ctx, user.ID, models.VerificationAccountActivation, "")
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.VerificationToken{}).Where("1 = 1").
		Update("expires_at", clock.Now().Add(-time.Minute)).Error)

	require.NoError(t, db.Create(&models.CacheEntry{Key: "stale", Value: []byte("1"), ExpiresAt: clock.Now().Add(-time.Second)}).Error)
	require.NoError(t, db.Create(&models.CacheEntry{Key: "fresh", Value: []byte("1"), ExpiresAt: clock.Now().Add(time.Minute)}).Error)

	require.NoError(t, auditSvc.Log(ctx, services.AuditEntry{Action: "auth.login", Result: "success", Actor: user.Email}))
	require.NoError(t, db.Model(&models.AuditLog{}).Where("1 = 1").
		Update("created_at", clock.Now().AddDate(0, 0, -10)).Error)

	module := monitoring.NewModule(monitoring.Options{})
	monitoring.SetModule(module)

	c := NewCleaner(
		WithNow(clock.Now),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
		WithSessions(sessions),
		WithVerification(codes),
		WithCache(cache.NewDatabaseStore(db)),
		WithAudit(auditSvc, 7*24*time.Hour),
	)
	require.NoError(t, c.RunOnce(ctx))

	requireCount(t, db, &models.RefreshToken{}, 1)
	requireCount(t, db, &models.VerificationToken{}, 0)
	requireCount(t, db, &models.CacheEntry{}, 1)
	requireCount(t, db, &models.AuditLog{}, 0)

	jobs := module.Jobs()
	require.Len(t, jobs, 4)
	for _, job := range jobs {
		require.Equal(t, "success", job.LastStatus)
		require.Equal(t, int64(1), job.LastRemoved, job.Job)
	}
}

func TestCleanerRunOnceAggregatesErrors(t *testing.T) {
	module := monitoring.NewModule(monitoring.Options{})
	monitoring.SetModule(module)

	healthy := &stubSweeper{removed: 3}
	c := NewCleaner(
		WithSessions(&stubSweeper{err: errors.New("sessions down")}),
		WithVerification(healthy),
		WithCache(&stubSweeper{err: errors.New("cache down")}),
	)

	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "sessions down")
	require.Contains(t, err.Error(), "cache down")
	require.Equal(t, 1, healthy.calls)

	for _, job := range module.Jobs() {
		switch job.Job {
		case JobVerification:
			require.Equal(t, "success", job.LastStatus)
			require.Equal(t, int64(3), job.LastRemoved)
		default:
			require.Equal(t, "failure", job.LastStatus)
			require.Equal(t, uint64(1), job.ConsecutiveFailures)
		}
	}
}

func TestCleanerStart(t *testing.T) {
	c := NewCleaner()
	require.NoError(t, c.Start())
	<-c.Stop().Done()

	bad := NewCleaner(WithSchedule("not a schedule"), WithSessions(&stubSweeper{}))
	require.Error(t, bad.Start())

	scheduled := NewCleaner(WithSessions(&stubSweeper{}))
	require.NoError(t, scheduled.Start())
	require.Len(t, scheduled.cron.Entries(), 1)
	<-scheduled.Stop().Done()
}

func TestCleanerRecountsActiveSessions(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ctx := context.Background()

	sessions, err := iauth.NewSessionService(db, iauth.SessionConfig{RefreshTokenTTL: time.Hour})
	require.NoError(t, err)
	user := seedUser(t, db, "gauge")
	for i := 0; i < 3; i++ {
		_, err := sessions.Create(ctx, user.ID, "")
		require.NoError(t, err)
	}
	var first models.RefreshToken
	require.NoError(t, db.Take(&first).Error)
	require.NoError(t, db.Model(&first).Update("revoked", true).Error)

	// A stale value, as left by a previous process.
	metrics.ActiveSessions.Set(-4)

	c := NewCleaner(WithSessions(sessions), WithGaugeSync(sessions, 0))
	require.NoError(t, c.RunOnce(ctx))
	require.Equal(t, 2.0, promtest.ToFloat64(metrics.ActiveSessions))

	_, err = sessions.RevokeAll(ctx, user.ID)
	require.NoError(t, err)
	c.SyncGauges(ctx)
	require.Zero(t, promtest.ToFloat64(metrics.ActiveSessions))
}

func TestCleanerStartSchedulesGaugeSync(t *testing.T) {
	gaugeOnly := NewCleaner(WithGaugeSync(&stubGauge{}, time.Hour))
	require.NoError(t, gaugeOnly.Start())
	require.Len(t, gaugeOnly.cron.Entries(), 1)
	<-gaugeOnly.Stop().Done()

	both := NewCleaner(WithSessions(&stubSweeper{}), WithGaugeSync(&stubGauge{}, time.Hour))
	require.NoError(t, both.Start())
	require.Len(t, both.cron.Entries(), 2)
	<-both.Stop().Done()
}

type stubGauge struct{ calls int }

func (s *stubGauge) SyncActiveGauge(context.Context) (int64, error) {
	s.calls++
	return 0, nil
}

type stubSweeper struct {
	removed int64
	err     error
	calls   int
}

func (s *stubSweeper) SweepExpired(context.Context, time.Time) (int64, error) {
	s.calls++
	return s.removed, s.err
}

func requireCount(t *testing.T, db *gorm.DB, model any, expected int64) {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Count(&count).Error)
	require.Equal(t, expected, count)
}

func seedUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword("Password123!")
	require.NoError(t, err)

	user := &models.User{
		FirstName: name,
		LastName:  "User",
		Email:     name + "@example.com",
		Password:  hash,
		Enabled:   true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}
