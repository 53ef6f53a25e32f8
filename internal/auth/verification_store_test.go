package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/database/testutil"
	"github.com/charlesng35/authcore/internal/models"
)

func TestIssueAndRedeemRoundTrip(t *testing.T) {
	db, store, clock := setupVerificationStore(t)
	user := createTestUser(t, db, "verify@example.com")

	code, err := store.Issue(context.Background(), user.ID, models.VerificationEmailChange, "new@example.com")
	require.NoError(t, err)
	require.Len(t, code, DefaultCodeLength)
	require.GreaterOrEqual(t, code, "100000")
	require.LessOrEqual(t, code, "999999")

	var stored models.VerificationToken
	require.NoError(t, db.Take(&stored, "code = ?", code).Error)
	require.True(t, stored.ExpiresAt.Equal(clock.Now().Add(DefaultVerificationTTL)))
	require.False(t, stored.Used)

	redeemed, err := store.Redeem(context.Background(), code, models.VerificationEmailChange)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", redeemed.AdditionalData)
	require.NotNil(t, redeemed.User)
	require.Equal(t, user.ID, redeemed.User.ID)
	require.True(t, redeemed.Used)
}

func TestRedeemTwiceReportsUsed(t *testing.T) {
	db, store, _ := setupVerificationStore(t)
	user := createTestUser(t, db, "twice@example.com")

	code, err := store.Issue(context.Background(), user.ID, models.VerificationAccountActivation, "")
	require.NoError(t, err)

	_, err = store.Redeem(context.Background(), code, models.VerificationAccountActivation)
	require.NoError(t, err)

	_, err = store.Redeem(context.Background(), code, models.VerificationAccountActivation)
	require.ErrorIs(t, err, ErrCodeUsed)
}

func TestRedeemUnknownCode(t *testing.T) {
	_, store, _ := setupVerificationStore(t)

	_, err := store.Redeem(context.Background(), "123456", models.VerificationPasswordReset)
	require.ErrorIs(t, err, ErrCodeNotFound)

	_, err = store.Redeem(context.Background(), " ", models.VerificationPasswordReset)
	require.ErrorIs(t, err, ErrCodeNotFound)
}

func TestRedeemExpiredCode(t *testing.T) {
	db, store, clock := setupVerificationStore(t)
	user := createTestUser(t, db, "late@example.com")

	code, err := store.Issue(context.Background(), user.ID, models.VerificationPasswordReset, "")
	require.NoError(t, err)

	clock.Advance(DefaultVerificationTTL)

	_, err = store.Redeem(context.Background(), code, models.VerificationPasswordReset)
	require.ErrorIs(t, err, ErrCodeExpired)
}

func TestRedeemChecksUsedBeforeExpiryBeforeType(t *testing.T) {
	db, store, clock := setupVerificationStore(t)
	user := createTestUser(t, db, "order@example.com")

	code, err := store.Issue(context.Background(), user.ID, models.VerificationPasswordChange, "hash")
	require.NoError(t, err)

	clock.Advance(DefaultVerificationTTL + time.Hour)
	_, err = store.Redeem(context.Background(), code, models.VerificationAccountActivation)
	require.ErrorIs(t, err, ErrCodeExpired)

	require.NoError(t, db.Model(&models.VerificationToken{}).
		Where("code = ?", code).
		Update("used", true).Error)
	_, err = store.Redeem(context.Background(), code, models.VerificationAccountActivation)
	require.ErrorIs(t, err, ErrCodeUsed)
}

func TestRedeemTypeMismatchLeavesCodeUnused(t *testing.T) {
	db, store, _ := setupVerificationStore(t)
	user := createTestUser(t, db, "mismatch@example.com")

	code, err := store.Issue(context.Background(), user.ID, models.VerificationPasswordReset, "")
	require.NoError(t, err)

	_, err = store.Redeem(context.Background(), code, models.VerificationAccountActivation)
	require.ErrorIs(t, err, ErrCodeTypeMismatch)

	_, err = store.Redeem(context.Background(), code, models.VerificationPasswordReset)
	require.NoError(t, err)
}

func TestRedeemConcurrentOnlyOneSucceeds(t *testing.T) {
	db, store, _ := setupVerificationStore(t)
	user := createTestUser(t, db, "race-code@example.com")

	code, err := store.Issue(context.Background(), user.ID, models.VerificationAccountActivation, "")
	require.NoError(t, err)

	const workers = 4
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.Transaction(func(tx *gorm.DB) error {
				_, err := store.WithTx(tx).Redeem(context.Background(), code, models.VerificationAccountActivation)
				return err
			})
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
		require.ErrorIs(t, err, ErrCodeUsed)
	}
	require.Equal(t, 1, successes)
}

func TestRedeemConcurrentOnFileDatabase(t *testing.T) {
	db := testutil.MustOpenFileDB(t, testutil.WithSeedData())
	store, err := NewVerificationStore(db, VerificationConfig{})
	require.NoError(t, err)
	user := createTestUser(t, db, "file-code@example.com")

	code, err := store.Issue(context.Background(), user.ID, models.VerificationPasswordReset, "")
	require.NoError(t, err)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- db.Transaction(func(tx *gorm.DB) error {
				_, err := store.WithTx(tx).Redeem(context.Background(), code, models.VerificationPasswordReset)
				return err
			})
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
		require.ErrorIs(t, err, ErrCodeUsed)
	}
	require.Equal(t, 1, successes)
}

func TestIssueWithoutUser(t *testing.T) {
	db, store, _ := setupVerificationStore(t)

	code, err := store.Issue(context.Background(), "", models.VerificationPasswordReset, "")
	require.NoError(t, err)

	var stored models.VerificationToken
	require.NoError(t, db.Take(&stored, "code = ?", code).Error)
	require.Nil(t, stored.UserID)
}

func TestVerificationSweepExpired(t *testing.T) {
	db, store, clock := setupVerificationStore(t)
	user := createTestUser(t, db, "sweep-codes@example.com")

	used, err := store.Issue(context.Background(), user.ID, models.VerificationAccountActivation, "")
	require.NoError(t, err)
	_, err = store.Redeem(context.Background(), used, models.VerificationAccountActivation)
	require.NoError(t, err)

	_, err = store.Issue(context.Background(), user.ID, models.VerificationPasswordReset, "")
	require.NoError(t, err)

	clock.Advance(12 * time.Hour)
	pending, err := store.Issue(context.Background(), user.ID, models.VerificationPasswordChange, "hash")
	require.NoError(t, err)

	removed, err := store.SweepExpired(context.Background(), clock.Now().Add(13*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)

	var remaining []models.VerificationToken
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, pending, remaining[0].Code)
}

func setupVerificationStore(t *testing.T) (*gorm.DB, *VerificationStore, *testClock) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	clock := &testClock{current: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}

	store, err := NewVerificationStore(db, VerificationConfig{Clock: clock.Now})
	require.NoError(t, err)

	return db, store, clock
}
