package models

import "gorm.io/datatypes"

// AuditLog records an authentication or administration event.
type AuditLog struct {
	BaseModel

	UserID    *string           `gorm:"type:uuid;index" json:"user_id"`
	Actor     string            `gorm:"not null" json:"actor"`
	Action    string            `gorm:"not null;index" json:"action"`
	Result    string            `gorm:"not null" json:"result"`
	IPAddress string            `json:"ip_address"`
	UserAgent string            `json:"user_agent"`
	Metadata  datatypes.JSONMap `json:"metadata"`
}
