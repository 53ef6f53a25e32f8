package models

import "time"

// RefreshToken is one login session. The plaintext token is never stored: LookupHash is a
// SHA-256 digest used to find the row and TokenHash is a bcrypt verifier checked after lookup.
type RefreshToken struct {
	BaseModel

	UserID     string    `gorm:"type:uuid;not null;index" json:"user_id"`
	User       *User     `gorm:"foreignKey:UserID" json:"-"`
	LookupHash string    `gorm:"size:64;uniqueIndex;not null" json:"-"`
	TokenHash  string    `gorm:"not null" json:"-"`
	DeviceInfo string    `json:"device_info"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
	Revoked    bool      `gorm:"default:false;index" json:"revoked"`
}

// Active reports whether the session is neither revoked nor expired.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
