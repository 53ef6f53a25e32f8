package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/crypto"
	apperrors "github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/metrics"
)

const (
	// DefaultVerificationTTL is how long an issued code stays redeemable.
	DefaultVerificationTTL = 24 * time.Hour
	// DefaultCodeLength is the number of digits in a verification code.
	DefaultCodeLength = 6

	maxCodeAttempts = 5
)

var (
	ErrCodeNotFound     = apperrors.New("VERIFICATION_CODE_INVALID", "Invalid verification code", http.StatusBadRequest)
	ErrCodeUsed         = apperrors.New("VERIFICATION_CODE_USED", "Verification code already used", http.StatusBadRequest)
	ErrCodeExpired      = apperrors.New("VERIFICATION_CODE_EXPIRED", "Verification code expired", http.StatusBadRequest)
	ErrCodeTypeMismatch = apperrors.New("VERIFICATION_CODE_TYPE", "Invalid verification code type", http.StatusBadRequest)
)

// VerificationConfig tunes the VerificationStore.
type VerificationConfig struct {
	TTL        time.Duration
	CodeLength int
	Clock      func() time.Time
}

// VerificationStore issues and redeems single-use numeric codes.
type VerificationStore struct {
	db         *gorm.DB
	ttl        time.Duration
	codeLength int
	now        func() time.Time
}

// NewVerificationStore constructs a store backed by db.
func NewVerificationStore(db *gorm.DB, cfg VerificationConfig) (*VerificationStore, error) {
	if db == nil {
		return nil, errors.New("verification store: db is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultVerificationTTL
	}
	length := cfg.CodeLength
	if length <= 0 {
		length = DefaultCodeLength
	}
	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &VerificationStore{db: db, ttl: ttl, codeLength: length, now: clock}, nil
}

// WithTx returns a copy of the store that runs its queries on tx.
func (s *VerificationStore) WithTx(tx *gorm.DB) *VerificationStore {
	cpy := *s
	cpy.db = tx
	return &cpy
}

// Issue creates a code of the given type for userID. payload is stored verbatim and
// handed back on redemption.
func (s *VerificationStore) Issue(ctx context.Context, userID string, kind models.VerificationType, payload string) (string, error) {
	code, err := s.uniqueCode(ctx)
	if err != nil {
		return "", err
	}

	record := &models.VerificationToken{
		Code:           code,
		Type:           kind,
		AdditionalData: payload,
		ExpiresAt:      s.now().Add(s.ttl),
	}
	if strings.TrimSpace(userID) != "" {
		owner := userID
		record.UserID = &owner
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return "", fmt.Errorf("verification store: create token: %w", err)
	}

	metrics.VerificationCodes.WithLabelValues(string(kind), "issued").Inc()
	return code, nil
}

// Redeem consumes code if it is unused, unexpired and of the expected type. The returned
// token has its owning user loaded. Applying the side effect is left to the caller.
func (s *VerificationStore) Redeem(ctx context.Context, code string, expected models.VerificationType) (*models.VerificationToken, error) {
	record, err := s.redeem(ctx, strings.TrimSpace(code), expected)
	outcome := "redeemed"
	switch {
	case errors.Is(err, ErrCodeNotFound):
		outcome = "not_found"
	case errors.Is(err, ErrCodeUsed):
		outcome = "used"
	case errors.Is(err, ErrCodeExpired):
		outcome = "expired"
	case errors.Is(err, ErrCodeTypeMismatch):
		outcome = "type_mismatch"
	case err != nil:
		outcome = "error"
	}
	metrics.VerificationCodes.WithLabelValues(string(expected), outcome).Inc()
	return record, err
}

func (s *VerificationStore) redeem(ctx context.Context, code string, expected models.VerificationType) (*models.VerificationToken, error) {
	if code == "" {
		return nil, ErrCodeNotFound
	}

	var record models.VerificationToken
	err := s.db.WithContext(ctx).
		Preload("User").
		Preload("User.Roles").
		Where("code = ?", code).
		Order("used ASC").
		Order("created_at DESC").
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("verification store: find token: %w", err)
	}

	if record.Used {
		return nil, ErrCodeUsed
	}
	if record.Expired(s.now()) {
		return nil, ErrCodeExpired
	}
	if record.Type != expected {
		return nil, ErrCodeTypeMismatch
	}

	result := s.db.WithContext(ctx).
		Model(&models.VerificationToken{}).
		Where("id = ? AND used = ?", record.ID, false).
		Update("used", true)
	if result.Error != nil {
		return nil, fmt.Errorf("verification store: mark used: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrCodeUsed
	}

	record.Used = true
	return &record, nil
}

// SweepExpired deletes codes that are used or expired before now.
func (s *VerificationStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ? OR used = ?", now, true).
		Delete(&models.VerificationToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("verification store: sweep tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// uniqueCode draws codes until one is not held by another unused token.
func (s *VerificationStore) uniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := crypto.GenerateNumericCode(s.codeLength)
		if err != nil {
			return "", fmt.Errorf("verification store: generate code: %w", err)
		}

		var clashes int64
		if err := s.db.WithContext(ctx).
			Model(&models.VerificationToken{}).
			Where("code = ? AND used = ?", code, false).
			Count(&clashes).Error; err != nil {
			return "", fmt.Errorf("verification store: check code: %w", err)
		}
		if clashes == 0 {
			return code, nil
		}
	}
	return "", errors.New("verification store: could not allocate a unique code")
}
