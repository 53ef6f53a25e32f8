package models

import "time"

// VerificationType discriminates the workflow a verification code belongs to.
type VerificationType string

const (
	VerificationAccountActivation VerificationType = "ACCOUNT_ACTIVATION"
	VerificationEmailChange       VerificationType = "EMAIL_CHANGE"
	VerificationPasswordChange    VerificationType = "PASSWORD_CHANGE"
	VerificationPasswordReset     VerificationType = "PASSWORD_RESET"
)

// VerificationToken is a single-use numeric code gating an account state transition.
// AdditionalData carries the new email for EMAIL_CHANGE and the new password hash for
// PASSWORD_CHANGE.
type VerificationToken struct {
	BaseModel

	Code           string           `gorm:"size:16;not null;index" json:"-"`
	UserID         *string          `gorm:"type:uuid;index" json:"user_id"`
	User           *User            `gorm:"foreignKey:UserID" json:"-"`
	Type           VerificationType `gorm:"size:32;not null;index" json:"type"`
	AdditionalData string           `json:"-"`
	ExpiresAt      time.Time        `gorm:"index" json:"expires_at"`
	Used           bool             `gorm:"default:false;index" json:"used"`
}

// Expired reports whether the code is past its expiry at the supplied instant.
func (t *VerificationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
