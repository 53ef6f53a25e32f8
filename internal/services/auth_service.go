package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/crypto"
	apperrors "github.com/charlesng35/authcore/pkg/errors"
	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/mail"
	"github.com/charlesng35/authcore/pkg/metrics"
)

// TokenTypeBearer is the scheme reported alongside issued access tokens.
const TokenTypeBearer = "Bearer"

var (
	ErrEmailTaken          = apperrors.New("EMAIL_TAKEN", "Email already registered", http.StatusBadRequest)
	ErrBadCredentials      = apperrors.ErrInvalidCredentials
	ErrAccountDisabled     = apperrors.New("ACCOUNT_NOT_VERIFIED", "Account not verified", http.StatusForbidden)
	ErrRefreshTokenMissing = apperrors.New("REFRESH_TOKEN_MISSING", "Refresh token not found", http.StatusUnauthorized)
	ErrBadPassword         = apperrors.New("INVALID_CURRENT_PASSWORD", "Invalid current password", http.StatusBadRequest)
	ErrEmailInUse          = apperrors.New("EMAIL_IN_USE", "Email already in use", http.StatusBadRequest)
	ErrMissingPayload      = apperrors.New("VERIFICATION_PAYLOAD_MISSING", "Verification code carries no pending change", http.StatusBadRequest)
)

// Email subjects.
const (
	subjectActivation     = "Account activation"
	subjectEmailChange    = "Email Change Verification"
	subjectPasswordChange = "Password Change Verification"
	subjectPasswordReset  = "Password Reset"
)

// EmailDispatcher hands verification emails to the delivery pipeline.
type EmailDispatcher interface {
	Dispatch(ctx context.Context, email mail.Email) error
}

// RegisterInput carries self-service registration details.
type RegisterInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// LoginInput carries credentials for Authenticate. IssueRefresh is false when the caller
// has no way to deliver a refresh cookie.
type LoginInput struct {
	Email        string
	Password     string
	DeviceInfo   string
	IssueRefresh bool
}

// ChangeEmailInput requests moving the account to a new address.
type ChangeEmailInput struct {
	CurrentPassword string
	NewEmail        string
}

// ChangePasswordInput requests a new password for a signed-in user.
type ChangePasswordInput struct {
	CurrentPassword string
	NewPassword     string
}

// ResetPasswordInput sets a forgotten password.
type ResetPasswordInput struct {
	NewPassword string
}

// AuthResult is returned by operations that sign the user in.
type AuthResult struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	User         *models.User
}

// AuthDeps lists the collaborators of AuthService.
type AuthDeps struct {
	DB       *gorm.DB
	Users    *UserService
	Roles    *RoleService
	Tokens   *auth.JWTService
	Sessions *auth.SessionService
	Codes    *auth.VerificationStore
	Mailer   EmailDispatcher
	Audit    *AuditService
}

// AuthOption customises the AuthService.
type AuthOption func(*AuthService)

// WithRevealUnknownEmail controls whether password reset requests for unknown
// addresses fail with ErrUserNotFound (true) or succeed silently (false).
func WithRevealUnknownEmail(reveal bool) AuthOption {
	return func(s *AuthService) {
		s.revealUnknownEmail = reveal
	}
}

// AuthService orchestrates registration, login, session refresh and the verification
// code flows. Each operation runs in one transaction; emails are dispatched after commit.
type AuthService struct {
	db       *gorm.DB
	users    *UserService
	roles    *RoleService
	tokens   *auth.JWTService
	sessions *auth.SessionService
	codes    *auth.VerificationStore
	mailer   EmailDispatcher
	audit    *AuditService

	revealUnknownEmail bool
	log                *zap.Logger
}

// NewAuthService wires an AuthService.
func NewAuthService(deps AuthDeps, opts ...AuthOption) (*AuthService, error) {
	switch {
	case deps.DB == nil:
		return nil, errors.New("auth service: db is required")
	case deps.Users == nil:
		return nil, errors.New("auth service: user service is required")
	case deps.Roles == nil:
		return nil, errors.New("auth service: role service is required")
	case deps.Tokens == nil:
		return nil, errors.New("auth service: jwt service is required")
	case deps.Sessions == nil:
		return nil, errors.New("auth service: session service is required")
	case deps.Codes == nil:
		return nil, errors.New("auth service: verification store is required")
	}

	svc := &AuthService{
		db:                 deps.DB,
		users:              deps.Users,
		roles:              deps.Roles,
		tokens:             deps.Tokens,
		sessions:           deps.Sessions,
		codes:              deps.Codes,
		mailer:             deps.Mailer,
		audit:              deps.Audit,
		revealUnknownEmail: true,
		log:                logger.WithModule("auth"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RefreshTTL reports the lifetime of issued refresh tokens.
func (s *AuthService) RefreshTTL() time.Duration {
	return s.sessions.RefreshTTL()
}

// Register creates a disabled account and emails its activation code.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := normaliseEmail(input.Email)
	if email == "" || input.Password == "" {
		return nil, apperrors.NewBadRequest("email and password are required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("auth service: hash password: %w", err)
	}

	user := &models.User{
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Email:     email,
		Password:  hashed,
	}

	var code string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.users.WithTx(tx).ExistsByEmail(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return ErrEmailTaken
		}

		role, err := s.roles.WithTx(tx).GetOrCreateDefault(ctx, models.RoleUser)
		if err != nil {
			return err
		}
		user.Roles = []models.Role{*role}

		if err := tx.Create(user).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrEmailTaken
			}
			return fmt.Errorf("auth service: create user: %w", err)
		}

		code, err = s.codes.WithTx(tx).Issue(ctx, user.ID, models.VerificationAccountActivation, "")
		return err
	})
	if err != nil {
		s.record(ctx, "auth.register", "failure", nil, email, nil)
		return nil, err
	}

	s.record(ctx, "auth.register", "success", &user.ID, email, nil)
	s.notify(ctx, mail.Email{
		To:       user.Email,
		Username: user.FirstName,
		Template: mail.TemplateActivateAccount,
		Code:     code,
		Subject:  subjectActivation,
	})
	return user, nil
}

// Authenticate verifies credentials and issues an access token, plus a refresh token when
// requested.
func (s *AuthService) Authenticate(ctx context.Context, input LoginInput) (*AuthResult, error) {
	ctx = ensureContext(ctx)
	email := normaliseEmail(input.Email)

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		crypto.VerifyPassword(dummyPasswordHash(), input.Password)
		s.loginFailed(ctx, email, "invalid_credentials")
		return nil, ErrBadCredentials
	}
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("error").Inc()
		return nil, err
	}

	// Disabled accounts fail the same way whatever password was supplied.
	if !user.Enabled {
		s.loginFailed(ctx, email, "disabled")
		return nil, ErrAccountDisabled
	}
	if !crypto.VerifyPassword(user.Password, input.Password) {
		s.loginFailed(ctx, email, "invalid_credentials")
		return nil, ErrBadCredentials
	}

	result := &AuthResult{TokenType: TokenTypeBearer, User: user}
	result.AccessToken, err = s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("auth service: issue access token: %w", err)
	}

	if input.IssueRefresh {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			result.RefreshToken, err = s.sessions.WithTx(tx).Create(ctx, user.ID, input.DeviceInfo)
			return err
		})
		if err != nil {
			metrics.AuthAttempts.WithLabelValues("error").Inc()
			return nil, err
		}
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	s.record(ctx, "auth.login", "success", &user.ID, email, map[string]any{"device": input.DeviceInfo})
	return result, nil
}

// Refresh rotates a refresh token and issues a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, deviceInfo string) (*AuthResult, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(refreshToken) == "" {
		return nil, ErrRefreshTokenMissing
	}

	user, rotated, err := s.sessions.Rotate(ctx, refreshToken, deviceInfo)
	if err != nil {
		return nil, err
	}

	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("auth service: issue access token: %w", err)
	}

	return &AuthResult{
		AccessToken:  access,
		TokenType:    TokenTypeBearer,
		RefreshToken: rotated,
		User:         user,
	}, nil
}

// Logout revokes the supplied refresh token when present.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(refreshToken) == "" {
		return nil
	}
	if err := s.sessions.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	s.record(ctx, "auth.logout", "success", nil, "", nil)
	return nil
}

// LogoutAll revokes every session of the refresh token's owner.
func (s *AuthService) LogoutAll(ctx context.Context, refreshToken string) error {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(refreshToken) == "" {
		return ErrRefreshTokenMissing
	}

	var user *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sessions := s.sessions.WithTx(tx)

		var err error
		user, err = sessions.Validate(ctx, refreshToken)
		if err != nil {
			return err
		}
		_, err = sessions.RevokeAll(ctx, user.ID)
		return err
	})
	if err != nil {
		return err
	}

	s.record(ctx, "auth.logout_all", "success", &user.ID, user.Email, nil)
	return nil
}

// Sessions lists the principal's active sessions.
func (s *AuthService) Sessions(ctx context.Context, principal auth.Principal) ([]auth.SessionInfo, error) {
	ctx = ensureContext(ctx)

	user, err := s.resolve(ctx, s.users, principal)
	if err != nil {
		return nil, err
	}
	return s.sessions.ListActive(ctx, user.ID)
}

// VerifyAccount redeems an activation code and enables its owner.
func (s *AuthService) VerifyAccount(ctx context.Context, code string) error {
	ctx = ensureContext(ctx)

	var owner *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, err := s.codes.WithTx(tx).Redeem(ctx, code, models.VerificationAccountActivation)
		if err != nil {
			return err
		}
		if token.User == nil {
			return ErrUserNotFound
		}
		owner = token.User

		return tx.Model(&models.User{}).
			Where("id = ?", owner.ID).
			Update("enabled", true).Error
	})
	if err != nil {
		return err
	}

	s.record(ctx, "auth.verify_account", "success", &owner.ID, owner.Email, nil)
	return nil
}

// RequestEmailChange checks the current password and emails a code to the new address.
func (s *AuthService) RequestEmailChange(ctx context.Context, principal auth.Principal, input ChangeEmailInput) error {
	ctx = ensureContext(ctx)

	newEmail := normaliseEmail(input.NewEmail)
	if newEmail == "" {
		return apperrors.NewBadRequest("new email is required")
	}

	var (
		user *models.User
		code string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := s.users.WithTx(tx)

		var err error
		user, err = s.resolve(ctx, users, principal)
		if err != nil {
			return err
		}
		if !crypto.VerifyPassword(user.Password, input.CurrentPassword) {
			return ErrBadPassword
		}

		taken, err := users.ExistsByEmail(ctx, newEmail)
		if err != nil {
			return err
		}
		if taken {
			return ErrEmailInUse
		}

		code, err = s.codes.WithTx(tx).Issue(ctx, user.ID, models.VerificationEmailChange, newEmail)
		return err
	})
	if err != nil {
		return err
	}

	s.record(ctx, "auth.email_change_request", "success", &user.ID, user.Email, map[string]any{"new_email": newEmail})
	s.notify(ctx, mail.Email{
		To:       newEmail,
		Username: user.FirstName,
		Template: mail.TemplateChangeEmail,
		Code:     code,
		Subject:  subjectEmailChange,
	})
	return nil
}

// VerifyEmailChange applies a pending email change, signs the user out everywhere and
// starts a fresh session.
func (s *AuthService) VerifyEmailChange(ctx context.Context, code, deviceInfo string) (*AuthResult, error) {
	ctx = ensureContext(ctx)

	var (
		user    *models.User
		refresh string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, err := s.codes.WithTx(tx).Redeem(ctx, code, models.VerificationEmailChange)
		if err != nil {
			return err
		}
		if token.User == nil {
			return ErrUserNotFound
		}
		newEmail := normaliseEmail(token.AdditionalData)
		if newEmail == "" {
			return ErrMissingPayload
		}

		var clashes int64
		if err := tx.Model(&models.User{}).
			Where("email = ? AND id <> ?", newEmail, token.User.ID).
			Count(&clashes).Error; err != nil {
			return fmt.Errorf("auth service: check email: %w", err)
		}
		if clashes > 0 {
			return ErrEmailInUse
		}

		if err := tx.Model(&models.User{}).
			Where("id = ?", token.User.ID).
			Update("email", newEmail).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrEmailInUse
			}
			return fmt.Errorf("auth service: update email: %w", err)
		}

		user = token.User
		user.Email = newEmail

		sessions := s.sessions.WithTx(tx)
		if _, err := sessions.RevokeAll(ctx, user.ID); err != nil {
			return err
		}
		refresh, err = sessions.Create(ctx, user.ID, deviceInfo)
		return err
	})
	if err != nil {
		return nil, err
	}

	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("auth service: issue access token: %w", err)
	}

	s.record(ctx, "auth.email_change", "success", &user.ID, user.Email, nil)
	return &AuthResult{
		AccessToken:  access,
		TokenType:    TokenTypeBearer,
		RefreshToken: refresh,
		User:         user,
	}, nil
}

// RequestPasswordChange checks the current password and emails a code confirming the new one.
func (s *AuthService) RequestPasswordChange(ctx context.Context, principal auth.Principal, input ChangePasswordInput) error {
	ctx = ensureContext(ctx)

	if input.NewPassword == "" {
		return apperrors.NewBadRequest("new password is required")
	}

	var (
		user *models.User
		code string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = s.resolve(ctx, s.users.WithTx(tx), principal)
		if err != nil {
			return err
		}
		if !crypto.VerifyPassword(user.Password, input.CurrentPassword) {
			return ErrBadPassword
		}

		hashed, err := crypto.HashPassword(input.NewPassword)
		if err != nil {
			return fmt.Errorf("auth service: hash password: %w", err)
		}

		code, err = s.codes.WithTx(tx).Issue(ctx, user.ID, models.VerificationPasswordChange, hashed)
		return err
	})
	if err != nil {
		return err
	}

	s.record(ctx, "auth.password_change_request", "success", &user.ID, user.Email, nil)
	s.notify(ctx, mail.Email{
		To:       user.Email,
		Username: user.FirstName,
		Template: mail.TemplateChangePassword,
		Code:     code,
		Subject:  subjectPasswordChange,
	})
	return nil
}

// VerifyPasswordChange applies the pending password hash and revokes every session.
func (s *AuthService) VerifyPasswordChange(ctx context.Context, code string) error {
	ctx = ensureContext(ctx)

	var owner *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, err := s.codes.WithTx(tx).Redeem(ctx, code, models.VerificationPasswordChange)
		if err != nil {
			return err
		}
		if token.User == nil {
			return ErrUserNotFound
		}
		if token.AdditionalData == "" {
			return ErrMissingPayload
		}
		owner = token.User

		return s.replacePassword(ctx, tx, owner.ID, token.AdditionalData)
	})
	if err != nil {
		return err
	}

	s.record(ctx, "auth.password_change", "success", &owner.ID, owner.Email, nil)
	return nil
}

// RequestPasswordReset emails a reset code to a registered address.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)
	email = normaliseEmail(email)

	var (
		user *models.User
		code string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		user, err = s.users.WithTx(tx).GetByEmail(ctx, email)
		if err != nil {
			return err
		}
		code, err = s.codes.WithTx(tx).Issue(ctx, user.ID, models.VerificationPasswordReset, "")
		return err
	})
	if errors.Is(err, ErrUserNotFound) {
		s.record(ctx, "auth.password_reset_request", "failure", nil, email, nil)
		if s.revealUnknownEmail {
			return ErrUserNotFound
		}
		s.log.Info("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	s.record(ctx, "auth.password_reset_request", "success", &user.ID, user.Email, nil)
	s.notify(ctx, mail.Email{
		To:       user.Email,
		Username: user.FirstName,
		Template: mail.TemplateResetPassword,
		Code:     code,
		Subject:  subjectPasswordReset,
	})
	return nil
}

// ResetPassword redeems a reset code, sets the new password and revokes every session.
func (s *AuthService) ResetPassword(ctx context.Context, code string, input ResetPasswordInput) error {
	ctx = ensureContext(ctx)

	if input.NewPassword == "" {
		return apperrors.NewBadRequest("new password is required")
	}
	hashed, err := crypto.HashPassword(input.NewPassword)
	if err != nil {
		return fmt.Errorf("auth service: hash password: %w", err)
	}

	var owner *models.User
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, err := s.codes.WithTx(tx).Redeem(ctx, code, models.VerificationPasswordReset)
		if err != nil {
			return err
		}
		if token.User == nil {
			return ErrUserNotFound
		}
		owner = token.User

		return s.replacePassword(ctx, tx, owner.ID, hashed)
	})
	if err != nil {
		return err
	}

	s.record(ctx, "auth.password_reset", "success", &owner.ID, owner.Email, nil)
	return nil
}

func (s *AuthService) replacePassword(ctx context.Context, tx *gorm.DB, userID, hashed string) error {
	if err := tx.Model(&models.User{}).
		Where("id = ?", userID).
		Update("password", hashed).Error; err != nil {
		return fmt.Errorf("auth service: update password: %w", err)
	}
	_, err := s.sessions.WithTx(tx).RevokeAll(ctx, userID)
	return err
}

// resolve loads the user behind principal, preferring the id claim.
func (s *AuthService) resolve(ctx context.Context, users *UserService, principal auth.Principal) (*models.User, error) {
	switch {
	case principal.UserID != "":
		return users.GetByID(ctx, principal.UserID)
	case principal.Email != "":
		return users.GetByEmail(ctx, principal.Email)
	default:
		return nil, apperrors.ErrUnauthorized
	}
}

func (s *AuthService) loginFailed(ctx context.Context, email, reason string) {
	metrics.AuthAttempts.WithLabelValues(reason).Inc()
	s.record(ctx, "auth.login", "failure", nil, email, map[string]any{"reason": reason})
}

func (s *AuthService) record(ctx context.Context, action, result string, userID *string, actor string, metadata map[string]any) {
	recordAudit(s.audit, ctx, AuditEntry{
		UserID:   userID,
		Actor:    actor,
		Action:   action,
		Result:   result,
		Metadata: metadata,
	})
}

// notify enqueues email. Delivery problems are logged and never fail the caller.
func (s *AuthService) notify(ctx context.Context, email mail.Email) {
	if s.mailer == nil {
		s.log.Warn("no email dispatcher configured", zap.String("template", string(email.Template)))
		return
	}
	if err := s.mailer.Dispatch(context.WithoutCancel(ctx), email); err != nil {
		s.log.Error("failed to dispatch email",
			zap.String("to", email.To),
			zap.String("template", string(email.Template)),
			zap.Error(err),
		)
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// dummyPasswordHash gives unknown-email logins the same bcrypt cost as real ones.
func dummyPasswordHash() string {
	dummyHashOnce.Do(func() {
		dummyHash, _ = crypto.HashPassword("authcore-timing-placeholder")
	})
	return dummyHash
}
