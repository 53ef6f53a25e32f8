package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/models"
	"github.com/charlesng35/authcore/pkg/crypto"
	"github.com/charlesng35/authcore/pkg/mail"
)

func TestRegisterCreatesDisabledUserAndSendsActivation(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	user, err := svc.auth.Register(ctx, RegisterInput{
		FirstName: " Ada ",
		LastName:  "Lovelace",
		Email:     "Ada@Example.com",
		Password:  "Password123!",
	})
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", user.Email)
	require.False(t, user.Enabled)
	require.Equal(t, []string{models.RoleUser}, user.RoleNames())

	email := svc.mailer.last(t)
	require.Equal(t, "ada@example.com", email.To)
	require.Equal(t, "Ada", email.Username)
	require.Equal(t, mail.TemplateActivateAccount, email.Template)
	require.Equal(t, "Account activation", email.Subject)
	require.Len(t, email.Code, 6)

	var stored models.User
	require.NoError(t, svc.db.Take(&stored, "id = ?", user.ID).Error)
	require.NotEqual(t, "Password123!", stored.Password)
	require.True(t, crypto.VerifyPassword(stored.Password, "Password123!"))

	var tokens []models.VerificationToken
	require.NoError(t, svc.db.
		Where("user_id = ? AND type = ?", user.ID, models.VerificationAccountActivation).
		Find(&tokens).Error)
	require.Len(t, tokens, 1)
	require.Equal(t, email.Code, tokens[0].Code)
	require.False(t, tokens[0].Used)
	require.True(t, tokens[0].ExpiresAt.Equal(svc.clock.Now().Add(24*time.Hour)), tokens[0].ExpiresAt)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	input := RegisterInput{FirstName: "A", LastName: "B", Email: "dup@example.com", Password: "Password123!"}
	_, err := svc.auth.Register(ctx, input)
	require.NoError(t, err)

	input.Email = "DUP@example.com"
	_, err = svc.auth.Register(ctx, input)
	require.ErrorIs(t, err, ErrEmailTaken)
	require.Equal(t, 1, svc.mailer.count())
}

func TestAuthenticateRequiresVerifiedAccount(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.auth.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "new@example.com", Password: "Password123!"})
	require.NoError(t, err)

	_, err = svc.auth.Authenticate(ctx, LoginInput{Email: "new@example.com", Password: "Password123!"})
	require.ErrorIs(t, err, ErrAccountDisabled)

	_, err = svc.auth.Authenticate(ctx, LoginInput{Email: "new@example.com", Password: "wrong-password"})
	require.ErrorIs(t, err, ErrAccountDisabled)

	require.NoError(t, svc.auth.VerifyAccount(ctx, svc.mailer.last(t).Code))

	result, err := svc.auth.Authenticate(ctx, LoginInput{Email: "new@example.com", Password: "Password123!", IssueRefresh: true})
	require.NoError(t, err)
	require.Equal(t, TokenTypeBearer, result.TokenType)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)

	claims, err := svc.tokens.ValidateAccessToken(result.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", claims.Subject)
	require.Equal(t, result.User.ID, claims.UserID)
	require.Contains(t, claims.Roles, models.RoleUser)
}

func TestAuthenticateRejectsBadCredentials(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	svc.registerAndActivate(t, "login@example.com", "Password123!")

	_, err := svc.auth.Authenticate(ctx, LoginInput{Email: "login@example.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrBadCredentials)

	_, err = svc.auth.Authenticate(ctx, LoginInput{Email: "nobody@example.com", Password: "Password123!"})
	require.ErrorIs(t, err, ErrBadCredentials)
}

func TestAuthenticateWithoutRefreshChannel(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	first := svc.registerAndActivate(t, "norefresh@example.com", "Password123!")

	result, err := svc.auth.Authenticate(ctx, LoginInput{Email: "norefresh@example.com", Password: "Password123!"})
	require.NoError(t, err)
	require.Empty(t, result.RefreshToken)

	sessions, err := svc.auth.Sessions(ctx, principalOf(first))
	require.NoError(t, err)
	require.Len(t, sessions, 1)
}

func TestVerifyAccountTwiceReportsUsed(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	_, err := svc.auth.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "twice@example.com", Password: "Password123!"})
	require.NoError(t, err)
	code := svc.mailer.last(t).Code

	require.NoError(t, svc.auth.VerifyAccount(ctx, code))
	require.ErrorIs(t, svc.auth.VerifyAccount(ctx, code), auth.ErrCodeUsed)
	require.ErrorIs(t, svc.auth.VerifyAccount(ctx, "000000"), auth.ErrCodeNotFound)
}

func TestVerifyAccountExpiredCode(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()

	user, err := svc.auth.Register(ctx, RegisterInput{FirstName: "A", LastName: "B", Email: "slow@example.com", Password: "Password123!"})
	require.NoError(t, err)
	code := svc.mailer.last(t).Code

	svc.clock.Advance(25 * time.Hour)
	require.ErrorIs(t, svc.auth.VerifyAccount(ctx, code), auth.ErrCodeExpired)

	var stored models.User
	require.NoError(t, svc.db.Take(&stored, "id = ?", user.ID).Error)
	require.False(t, stored.Enabled)

	var token models.VerificationToken
	require.NoError(t, svc.db.Take(&token, "code = ?", code).Error)
	require.False(t, token.Used)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	login := svc.registerAndActivate(t, "refresh@example.com", "Password123!")

	refreshed, err := svc.auth.Refresh(ctx, login.RefreshToken, "")
	require.NoError(t, err)
	require.NotEqual(t, login.RefreshToken, refreshed.RefreshToken)
	require.NotEmpty(t, refreshed.AccessToken)

	_, err = svc.auth.Refresh(ctx, login.RefreshToken, "")
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	_, err = svc.auth.Refresh(ctx, "", "")
	require.ErrorIs(t, err, ErrRefreshTokenMissing)
}

func TestLogoutAndLogoutAll(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	first := svc.registerAndActivate(t, "logout@example.com", "Password123!")

	second, err := svc.auth.Authenticate(ctx, LoginInput{Email: "logout@example.com", Password: "Password123!", IssueRefresh: true})
	require.NoError(t, err)
	third, err := svc.auth.Authenticate(ctx, LoginInput{Email: "logout@example.com", Password: "Password123!", IssueRefresh: true})
	require.NoError(t, err)

	require.NoError(t, svc.auth.Logout(ctx, first.RefreshToken))
	require.NoError(t, svc.auth.Logout(ctx, first.RefreshToken))
	require.NoError(t, svc.auth.Logout(ctx, ""))

	sessions, err := svc.auth.Sessions(ctx, principalOf(first))
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	require.ErrorIs(t, svc.auth.LogoutAll(ctx, ""), ErrRefreshTokenMissing)
	require.ErrorIs(t, svc.auth.LogoutAll(ctx, first.RefreshToken), auth.ErrInvalidRefreshToken)
	require.NoError(t, svc.auth.LogoutAll(ctx, second.RefreshToken))

	_, err = svc.auth.Refresh(ctx, third.RefreshToken, "")
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	sessions, err = svc.auth.Sessions(ctx, principalOf(first))
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestEmailChangeFlow(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	login := svc.registerAndActivate(t, "old@example.com", "Password123!")
	principal := principalOf(login)

	err := svc.auth.RequestEmailChange(ctx, principal, ChangeEmailInput{CurrentPassword: "nope", NewEmail: "new@example.com"})
	require.ErrorIs(t, err, ErrBadPassword)

	svc.registerAndActivate(t, "taken@example.com", "Password123!")
	err = svc.auth.RequestEmailChange(ctx, principal, ChangeEmailInput{CurrentPassword: "Password123!", NewEmail: "taken@example.com"})
	require.ErrorIs(t, err, ErrEmailInUse)

	err = svc.auth.RequestEmailChange(ctx, principal, ChangeEmailInput{CurrentPassword: "Password123!", NewEmail: "New@Example.com"})
	require.NoError(t, err)

	email := svc.mailer.last(t)
	require.Equal(t, "new@example.com", email.To)
	require.Equal(t, mail.TemplateChangeEmail, email.Template)
	require.Equal(t, "Email Change Verification", email.Subject)

	require.ErrorIs(t, svc.auth.VerifyPasswordChange(ctx, email.Code), auth.ErrCodeTypeMismatch)

	result, err := svc.auth.VerifyEmailChange(ctx, email.Code, "laptop")
	require.NoError(t, err)
	require.Equal(t, "new@example.com", result.User.Email)
	require.NotEmpty(t, result.AccessToken)
	require.NotEmpty(t, result.RefreshToken)

	_, err = svc.auth.Refresh(ctx, login.RefreshToken, "")
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)

	sessions, err := svc.auth.Sessions(ctx, principal)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "laptop", sessions[0].DeviceInfo)

	_, err = svc.auth.Authenticate(ctx, LoginInput{Email: "new@example.com", Password: "Password123!"})
	require.NoError(t, err)
	_, err = svc.auth.Authenticate(ctx, LoginInput{Email: "old@example.com", Password: "Password123!"})
	require.ErrorIs(t, err, ErrBadCredentials)
}

func TestVerifyEmailChangeFailsWhenAddressTakenMeanwhile(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	login := svc.registerAndActivate(t, "first@example.com", "Password123!")

	err := svc.auth.RequestEmailChange(ctx, principalOf(login), ChangeEmailInput{CurrentPassword: "Password123!", NewEmail: "race@example.com"})
	require.NoError(t, err)
	code := svc.mailer.last(t).Code

	svc.registerAndActivate(t, "race@example.com", "Password123!")

	_, err = svc.auth.VerifyEmailChange(ctx, code, "")
	require.ErrorIs(t, err, ErrEmailInUse)

	_, err = svc.auth.Refresh(ctx, login.RefreshToken, "")
	require.NoError(t, err)
}

func TestPasswordChangeFlow(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	login := svc.registerAndActivate(t, "pw@example.com", "Password123!")

	err := svc.auth.RequestPasswordChange(ctx, principalOf(login), ChangePasswordInput{CurrentPassword: "bad", NewPassword: "Another456!"})
	require.ErrorIs(t, err, ErrBadPassword)

	err = svc.auth.RequestPasswordChange(ctx, principalOf(login), ChangePasswordInput{CurrentPassword: "Password123!", NewPassword: "Another456!"})
	require.NoError(t, err)
	email := svc.mailer.last(t)
	require.Equal(t, "pw@example.com", email.To)
	require.Equal(t, mail.TemplateChangePassword, email.Template)
	require.Equal(t, "Password Change Verification", email.Subject)

	var pending models.VerificationToken
	require.NoError(t, svc.db.Take(&pending, "code = ?", email.Code).Error)
	require.NotContains(t, pending.AdditionalData, "Another456!")

	_, err = svc.auth.Authenticate(ctx, LoginInput{Email: "pw@example.com", Password: "Password123!"})
	require.NoError(t, err)

	require.NoError(t, svc.auth.VerifyPasswordChange(ctx, email.Code))

	_, err = svc.auth.Authenticate(ctx, LoginInput{Email: "pw@example.com", Password: "Password123!"})
	require.ErrorIs(t, err, ErrBadCredentials)
	_, err = svc.auth.Authenticate(ctx, LoginInput{Email: "pw@example.com", Password: "Another456!"})
	require.NoError(t, err)

	_, err = svc.auth.Refresh(ctx, login.RefreshToken, "")
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestPasswordResetFlow(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	login := svc.registerAndActivate(t, "forgot@example.com", "Password123!")

	require.ErrorIs(t, svc.auth.RequestPasswordReset(ctx, "ghost@example.com"), ErrUserNotFound)

	require.NoError(t, svc.auth.RequestPasswordReset(ctx, "Forgot@example.com"))
	email := svc.mailer.last(t)
	require.Equal(t, "forgot@example.com", email.To)
	require.Equal(t, mail.TemplateResetPassword, email.Template)
	require.Equal(t, "Password Reset", email.Subject)

	require.NoError(t, svc.auth.ResetPassword(ctx, email.Code, ResetPasswordInput{NewPassword: "Reset789!"}))
	require.ErrorIs(t, svc.auth.ResetPassword(ctx, email.Code, ResetPasswordInput{NewPassword: "Again000!"}), auth.ErrCodeUsed)

	_, err := svc.auth.Authenticate(ctx, LoginInput{Email: "forgot@example.com", Password: "Reset789!"})
	require.NoError(t, err)

	_, err = svc.auth.Refresh(ctx, login.RefreshToken, "")
	require.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
}

func TestPasswordResetSilentForUnknownEmail(t *testing.T) {
	svc := newTestServices(t, WithRevealUnknownEmail(false))

	require.NoError(t, svc.auth.RequestPasswordReset(context.Background(), "ghost@example.com"))
	require.Zero(t, svc.mailer.count())
}

func TestDispatchFailureDoesNotFailRequest(t *testing.T) {
	svc := newTestServices(t)
	svc.mailer.err = errors.New("queue unavailable")

	_, err := svc.auth.Register(context.Background(), RegisterInput{
		FirstName: "A", LastName: "B", Email: "offline@example.com", Password: "Password123!",
	})
	require.NoError(t, err)
}

func TestAuthOperationsAreAudited(t *testing.T) {
	svc := newTestServices(t)
	ctx := context.Background()
	svc.registerAndActivate(t, "audited@example.com", "Password123!")

	_, err := svc.auth.Authenticate(ctx, LoginInput{Email: "audited@example.com", Password: "wrong"})
	require.ErrorIs(t, err, ErrBadCredentials)

	logs, _, err := svc.audit.List(ctx, AuditListOptions{Filters: AuditFilters{Action: "auth.login"}})
	require.NoError(t, err)
	require.Len(t, logs, 2)

	results := []string{logs[0].Result, logs[1].Result}
	require.ElementsMatch(t, []string{"success", "failure"}, results)
}
