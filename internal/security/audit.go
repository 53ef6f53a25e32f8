package security

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	iauth "github.com/charlesng35/authcore/internal/auth"
	"github.com/charlesng35/authcore/internal/models"
)

// CheckStatus captures the outcome of a security audit check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

const (
	CheckAdminPresent     = "admin_account_present"
	CheckJWTSecret        = "jwt_secret_strength"
	CheckRefreshTTL       = "refresh_token_ttl"
	CheckRefreshCookie    = "refresh_cookie_secure"
	CheckResetEnumeration = "password_reset_enumeration"

	maxRecommendedRefreshTTL = 30 * 24 * time.Hour
)

// Check contains the result of a single audit verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a simple status summary.
type Result struct {
	CheckedAt time.Time      `json:"checkedAt"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Settings carries the runtime configuration the audit evaluates.
type Settings struct {
	RefreshTTL          time.Duration
	RefreshCookieSecure bool
	RevealUnknownEmail  bool
}

// Auditor evaluates the authentication configuration and account state.
type Auditor struct {
	db       *gorm.DB
	jwt      *iauth.JWTService
	settings Settings
	now      func() time.Time
}

// NewAuditor constructs the auditor. All dependencies are optional; missing inputs
// degrade specific checks to warnings.
func NewAuditor(db *gorm.DB, jwt *iauth.JWTService, settings Settings) *Auditor {
	return &Auditor{
		db:       db,
		jwt:      jwt,
		settings: settings,
		now:      time.Now,
	}
}

// WithClock overrides the clock used in results.
func (a *Auditor) WithClock(clock func() time.Time) {
	if clock != nil {
		a.now = clock
	}
}

// Run executes all audit checks and returns their outcome.
func (a *Auditor) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		a.checkAdminPresent(ctx),
		a.checkJWTSecret(),
		a.checkRefreshTTL(),
		a.checkRefreshCookie(),
		a.checkResetEnumeration(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{
		CheckedAt: a.now().UTC(),
		Checks:    checks,
		Summary:   summary,
	}
}

func (a *Auditor) checkAdminPresent(ctx context.Context) Check {
	if a.db == nil {
		return Check{
			ID:          CheckAdminPresent,
			Status:      StatusWarn,
			Message:     "Database unavailable, unable to confirm an administrator exists.",
			Remediation: "Ensure database connectivity before running the audit.",
		}
	}

	var count int64
	err := a.db.WithContext(ctx).
		Model(&models.User{}).
		Joins("JOIN user_roles ON user_roles.user_id = users.id").
		Joins("JOIN roles ON roles.id = user_roles.role_id").
		Where("roles.name = ? AND users.enabled = ?", models.RoleAdmin, true).
		Distinct("users.id").
		Count(&count).Error
	if err != nil {
		return Check{
			ID:          CheckAdminPresent,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Could not verify administrators: %v", err),
			Remediation: "Retry after resolving database errors.",
		}
	}

	if count == 0 {
		return Check{
			ID:          CheckAdminPresent,
			Status:      StatusFail,
			Message:     "No enabled administrator found.",
			Remediation: "Grant the ADMIN role to an enabled account.",
		}
	}

	return Check{
		ID:      CheckAdminPresent,
		Status:  StatusPass,
		Message: "Administrator present.",
		Details: map[string]any{"count": count},
	}
}

func (a *Auditor) checkJWTSecret() Check {
	if a.jwt == nil {
		return Check{
			ID:          CheckJWTSecret,
			Status:      StatusWarn,
			Message:     "JWT service not initialised, unable to assess signing secret strength.",
			Remediation: "Initialise the JWT service with a strong secret.",
		}
	}

	length := a.jwt.SecretLength()
	switch {
	case length < 32:
		return Check{
			ID:          CheckJWTSecret,
			Status:      StatusFail,
			Message:     fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes.",
		}
	case length < 48:
		return Check{
			ID:          CheckJWTSecret,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("JWT signing secret is %d bytes. Consider increasing to 48+ bytes.", length),
			Remediation: "Increase the length of AUTHCORE_AUTH_JWT_SECRET to at least 48 bytes.",
			Details:     map[string]any{"length": length},
		}
	default:
		return Check{
			ID:      CheckJWTSecret,
			Status:  StatusPass,
			Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length},
		}
	}
}

func (a *Auditor) checkRefreshTTL() Check {
	ttl := a.settings.RefreshTTL
	if ttl <= 0 {
		return Check{
			ID:          CheckRefreshTTL,
			Status:      StatusWarn,
			Message:     "Refresh token TTL is not configured; using default duration.",
			Remediation: "Set AUTHCORE_AUTH_REFRESH_TTL to control session lifetime.",
		}
	}

	if ttl > maxRecommendedRefreshTTL {
		return Check{
			ID:          CheckRefreshTTL,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Refresh token TTL (%s) exceeds recommended maximum (%s).", ttl, maxRecommendedRefreshTTL),
			Remediation: "Reduce the refresh token TTL to 30 days or lower.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}

	return Check{
		ID:      CheckRefreshTTL,
		Status:  StatusPass,
		Message: fmt.Sprintf("Refresh token TTL is %s.", ttl),
		Details: map[string]any{"ttl": ttl.String()},
	}
}

func (a *Auditor) checkRefreshCookie() Check {
	if !a.settings.RefreshCookieSecure {
		return Check{
			ID:          CheckRefreshCookie,
			Status:      StatusFail,
			Message:     "Refresh cookie is sent over plain HTTP.",
			Remediation: "Set auth.refresh_cookie.secure to true outside local development.",
		}
	}
	return Check{
		ID:      CheckRefreshCookie,
		Status:  StatusPass,
		Message: "Refresh cookie requires HTTPS.",
	}
}

func (a *Auditor) checkResetEnumeration() Check {
	if a.settings.RevealUnknownEmail {
		return Check{
			ID:          CheckResetEnumeration,
			Status:      StatusWarn,
			Message:     "Password reset reports unknown email addresses.",
			Remediation: "Set auth.password_reset.reveal_unknown_email to false to hide account existence.",
		}
	}
	return Check{
		ID:      CheckResetEnumeration,
		Status:  StatusPass,
		Message: "Password reset does not reveal account existence.",
	}
}
