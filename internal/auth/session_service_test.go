package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/crypto"
	"github.com/charlesng35/authcore/pkg/metrics"
)

func TestCreateStoresHashedToken(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "create@example.com")

	token, err := svc.Create(context.Background(), user.ID, " Firefox on Linux ")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	var stored models.RefreshToken
	require.NoError(t, db.Take(&stored, "user_id = ?", user.ID).Error)
	require.NotEqual(t, token, stored.TokenHash)
	require.NotEqual(t, token, stored.LookupHash)
	require.Equal(t, crypto.LookupHash(token), stored.LookupHash)
	require.True(t, crypto.VerifyPassword(stored.TokenHash, token))
	require.Equal(t, "Firefox on Linux", stored.DeviceInfo)
	require.False(t, stored.Revoked)
	require.True(t, stored.ExpiresAt.Equal(clock.Now().Add(time.Hour)))
}

func TestValidateReturnsOwner(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "validate@example.com")

	token, err := svc.Create(context.Background(), user.ID, "")
	require.NoError(t, err)

	owner, err := svc.Validate(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, user.ID, owner.ID)
	require.Equal(t, []string{models.RoleUser}, owner.RoleNames())

	_, err = svc.Validate(context.Background(), "not-a-token")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = svc.Validate(context.Background(), "  ")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestValidateRejectsExpired(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "expired@example.com")

	token, err := svc.Create(context.Background(), user.ID, "")
	require.NoError(t, err)

	clock.Advance(time.Hour)

	_, err = svc.Validate(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRotateIssuesReplacement(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "rotate@example.com")

	token, err := svc.Create(context.Background(), user.ID, "phone")
	require.NoError(t, err)

	owner, rotated, err := svc.Rotate(context.Background(), token, "")
	require.NoError(t, err)
	require.Equal(t, user.ID, owner.ID)
	require.NotEqual(t, token, rotated)

	_, err = svc.Validate(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	_, err = svc.Validate(context.Background(), rotated)
	require.NoError(t, err)

	_, _, err = svc.Rotate(context.Background(), token, "")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	sessions, err := svc.ListActive(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "phone", sessions[0].DeviceInfo)
}

func TestRotateConcurrentOnlyOneSucceeds(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "race@example.com")

	token, err := svc.Create(context.Background(), user.ID, "")
	require.NoError(t, err)

	const workers = 4
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Rotate(context.Background(), token, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		require.ErrorIs(t, err, ErrInvalidRefreshToken)
	}
	require.Equal(t, 1, successes)
}

func TestRotateConcurrentOnFileDatabase(t *testing.T) {
	db := testutil.MustOpenFileDB(t, testutil.WithSeedData())
	svc, err := NewSessionService(db, SessionConfig{RefreshTokenTTL: time.Hour})
	require.NoError(t, err)
	user := createTestUser(t, db, "file-race@example.com")

	for round := 0; round < 3; round++ {
		token, err := svc.Create(context.Background(), user.ID, "")
		require.NoError(t, err)

		const workers = 8
		errs := make(chan error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := svc.Rotate(context.Background(), token, "")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		successes := 0
		for err := range errs {
			if err == nil {
				successes++
				continue
			}
			require.ErrorIs(t, err, ErrInvalidRefreshToken, "round %d", round)
		}
		require.Equal(t, 1, successes, "round %d", round)
	}
}

func TestActiveGaugeSurvivesRestart(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "gauge@example.com")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Create(ctx, user.ID, "")
		require.NoError(t, err)
	}

	// A fresh process starts the gauge at zero while rows already exist.
	metrics.ActiveSessions.Set(0)
	revoked, err := svc.RevokeAll(ctx, user.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, revoked)
	require.Zero(t, promtest.ToFloat64(metrics.ActiveSessions))

	_, err = svc.Create(ctx, user.ID, "")
	require.NoError(t, err)
	active, err := svc.SyncActiveGauge(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, active)
	require.Equal(t, 1.0, promtest.ToFloat64(metrics.ActiveSessions))
}

func TestRevokeByIDIsConditional(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "conditional@example.com")

	token, err := svc.Create(context.Background(), user.ID, "")
	require.NoError(t, err)

	first, err := svc.lookup(context.Background(), token)
	require.NoError(t, err)
	second, err := svc.lookup(context.Background(), token)
	require.NoError(t, err)

	revoked, err := svc.revokeByID(context.Background(), first.ID)
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = svc.revokeByID(context.Background(), second.ID)
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestRevokeIsIdempotent(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "revoke@example.com")

	token, err := svc.Create(context.Background(), user.ID, "")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(context.Background(), token))
	require.NoError(t, svc.Revoke(context.Background(), token))
	require.NoError(t, svc.Revoke(context.Background(), "unknown"))

	_, err = svc.Validate(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRevokeAllTargetsSingleUser(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")

	for i := 0; i < 3; i++ {
		_, err := svc.Create(context.Background(), alice.ID, "")
		require.NoError(t, err)
	}
	bobToken, err := svc.Create(context.Background(), bob.ID, "")
	require.NoError(t, err)

	count, err := svc.RevokeAll(context.Background(), alice.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, count)

	sessions, err := svc.ListActive(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Empty(t, sessions)

	_, err = svc.Validate(context.Background(), bobToken)
	require.NoError(t, err)

	count, err = svc.RevokeAll(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestListActiveDefaultsDevice(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "list@example.com")

	_, err := svc.Create(context.Background(), user.ID, "")
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = svc.Create(context.Background(), user.ID, "tablet")
	require.NoError(t, err)

	sessions, err := svc.ListActive(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	devices := []string{sessions[0].DeviceInfo, sessions[1].DeviceInfo}
	require.ElementsMatch(t, []string{UnknownDevice, "tablet"}, devices)
}

func TestSweepExpiredDeletesOnlyExpired(t *testing.T) {
	db, svc, clock := setupSessionService(t)
	user := createTestUser(t, db, "sweep@example.com")

	_, err := svc.Create(context.Background(), user.ID, "old")
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	fresh, err := svc.Create(context.Background(), user.ID, "new")
	require.NoError(t, err)

	removed, err := svc.SweepExpired(context.Background(), clock.Now().Add(45*time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var remaining int64
	require.NoError(t, db.Model(&models.RefreshToken{}).Count(&remaining).Error)
	require.EqualValues(t, 1, remaining)

	_, err = svc.Validate(context.Background(), fresh)
	require.NoError(t, err)
}

func TestWithTxRollsBack(t *testing.T) {
	db, svc, _ := setupSessionService(t)
	user := createTestUser(t, db, "tx@example.com")

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.WithTx(tx).Create(context.Background(), user.ID, "")
		require.NoError(t, err)
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&models.RefreshToken{}).Count(&count).Error)
	require.Zero(t, count)
}

type testClock struct {
	mu      sync.Mutex
	current time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

func setupSessionService(t *testing.T) (*gorm.DB, *SessionService, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	clock := &testClock{current: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}

	svc, err := NewSessionService(db, SessionConfig{
		RefreshTokenTTL: time.Hour,
		Clock:           clock.Now,
	})
	require.NoError(t, err)

	return db, svc, clock
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	var role models.Role
	require.NoError(t, db.Take(&role, "name = ?", models.RoleUser).Error)

	hashed, err := crypto.HashPassword("Password123!")
	require.NoError(t, err)

	user := &models.User{
		FirstName: "Test",
		LastName:  "User",
		Email:     email,
		Password:  hashed,
		Enabled:   true,
		Roles:     []models.Role{role},
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
