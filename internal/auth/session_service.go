package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/crypto"
	apperrors "github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/metrics"
)

// DefaultRefreshTokenTTL is the fallback refresh token lifetime.
const DefaultRefreshTokenTTL = 7 * 24 * time.Hour

// UnknownDevice is reported for sessions created without device information.
const UnknownDevice = "Unknown device"

// ErrInvalidRefreshToken covers every refresh token failure: unknown, revoked, expired or
// mismatched. Callers never learn which one applied.
var ErrInvalidRefreshToken = apperrors.New("INVALID_REFRESH_TOKEN", "Invalid or expired refresh token", http.StatusUnauthorized)

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	RefreshTokenTTL time.Duration
	// TokenBytes is the amount of random data in each refresh token.
	TokenBytes int
	Clock      func() time.Time
}

// SessionInfo describes an active session without exposing its secret.
type SessionInfo struct {
	ID         string    `json:"id"`
	DeviceInfo string    `json:"deviceInfo"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// SessionService manages hashed, rotatable refresh tokens.
type SessionService struct {
	db         *gorm.DB
	refreshTTL time.Duration
	tokenBytes int
	now        func() time.Time
	log        *zap.Logger
}

// NewSessionService constructs a session manager backed by the provided database.
func NewSessionService(db *gorm.DB, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}

	ttl := cfg.RefreshTokenTTL
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}

	size := cfg.TokenBytes
	if size < 16 {
		size = 32
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:         db,
		refreshTTL: ttl,
		tokenBytes: size,
		now:        clock,
		log:        logger.WithModule("sessions"),
	}, nil
}

// WithTx returns a copy of the service that runs its queries on tx.
func (s *SessionService) WithTx(tx *gorm.DB) *SessionService {
	cpy := *s
	cpy.db = tx
	return &cpy
}

// RefreshTTL reports the configured refresh token lifetime.
func (s *SessionService) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Create stores a new session for userID and returns its plaintext refresh token.
func (s *SessionService) Create(ctx context.Context, userID, deviceInfo string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("session service: user id is required")
	}

	token, err := crypto.GenerateToken(s.tokenBytes)
	if err != nil {
		return "", fmt.Errorf("session service: generate refresh token: %w", err)
	}
	verifier, err := crypto.HashPassword(token)
	if err != nil {
		return "", fmt.Errorf("session service: hash refresh token: %w", err)
	}

	record := &models.RefreshToken{
		UserID:     userID,
		LookupHash: crypto.LookupHash(token),
		TokenHash:  verifier,
		DeviceInfo: strings.TrimSpace(deviceInfo),
		ExpiresAt:  s.now().Add(s.refreshTTL),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return "", fmt.Errorf("session service: create session: %w", err)
	}
	return token, nil
}

// Validate resolves the owner of an active refresh token.
func (s *SessionService) Validate(ctx context.Context, token string) (*models.User, error) {
	record, err := s.lookup(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.loadUser(ctx, record.UserID)
}

// Rotate revokes token and issues a replacement for the same user. When deviceInfo is
// empty the previous device description is kept. Of two concurrent rotations of the same
// token exactly one succeeds.
func (s *SessionService) Rotate(ctx context.Context, token, deviceInfo string) (*models.User, string, error) {
	var (
		user     *models.User
		newToken string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := s.WithTx(tx)

		record, err := scoped.lookup(ctx, token)
		if err != nil {
			return err
		}

		revoked, err := scoped.revokeByID(ctx, record.ID)
		if err != nil {
			return err
		}
		if !revoked {
			return ErrInvalidRefreshToken
		}

		device := strings.TrimSpace(deviceInfo)
		if device == "" {
			device = record.DeviceInfo
		}
		newToken, err = scoped.Create(ctx, record.UserID, device)
		if err != nil {
			return err
		}

		user, err = scoped.loadUser(ctx, record.UserID)
		return err
	})
	if err != nil {
		metrics.RefreshRotations.WithLabelValues("rejected").Inc()
		return nil, "", err
	}

	metrics.RefreshRotations.WithLabelValues("success").Inc()
	return user, newToken, nil
}

// Revoke marks the session identified by token as revoked. Unknown or already revoked
// tokens are ignored.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	record, err := s.lookup(ctx, token)
	if errors.Is(err, ErrInvalidRefreshToken) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.revokeByID(ctx, record.ID)
	return err
}

// RevokeAll revokes every active session of userID and returns how many were revoked.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, errors.New("session service: user id is required")
	}

	result := s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked = ?", userID, false).
		Update("revoked", true)
	if result.Error != nil {
		return 0, fmt.Errorf("session service: revoke user sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.Info("revoked user sessions", zap.String("user_id", userID), zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// ListActive returns the user's unrevoked, unexpired sessions, newest first.
func (s *SessionService) ListActive(ctx context.Context, userID string) ([]SessionInfo, error) {
	var records []models.RefreshToken
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND revoked = ? AND expires_at > ?", userID, false, s.now()).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("session service: list sessions: %w", err)
	}

	sessions := make([]SessionInfo, 0, len(records))
	for _, record := range records {
		device := record.DeviceInfo
		if device == "" {
			device = UnknownDevice
		}
		sessions = append(sessions, SessionInfo{
			ID:         record.ID,
			DeviceInfo: device,
			CreatedAt:  record.CreatedAt,
			ExpiresAt:  record.ExpiresAt,
		})
	}
	return sessions, nil
}

// SweepExpired deletes sessions whose expiry is before now.
func (s *SessionService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.RefreshToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: sweep expired sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SyncActiveGauge recounts unrevoked, unexpired sessions and publishes the total on the
// authcore_active_sessions gauge. The count comes from committed rows, so rolled back
// transactions and restarts cannot skew it.
func (s *SessionService) SyncActiveGauge(ctx context.Context) (int64, error) {
	var active int64
	err := s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("revoked = ? AND expires_at > ?", false, s.now()).
		Count(&active).Error
	if err != nil {
		return 0, fmt.Errorf("session service: count active sessions: %w", err)
	}
	metrics.ActiveSessions.Set(float64(active))
	return active, nil
}

func (s *SessionService) lookup(ctx context.Context, token string) (*models.RefreshToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidRefreshToken
	}

	var record models.RefreshToken
	err := s.db.WithContext(ctx).
		Where("lookup_hash = ?", crypto.LookupHash(token)).
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("session service: find session: %w", err)
	}

	if !crypto.VerifyPassword(record.TokenHash, token) || !record.Active(s.now()) {
		return nil, ErrInvalidRefreshToken
	}
	return &record, nil
}

// revokeByID flips revoked with a conditional update. It reports false when another
// caller revoked the row first.
func (s *SessionService) revokeByID(ctx context.Context, id string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("id = ? AND revoked = ?", id, false).
		Update("revoked", true)
	if result.Error != nil {
		return false, fmt.Errorf("session service: revoke session: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *SessionService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Roles").Take(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("session service: load user: %w", err)
	}
	return &user, nil
}
