package models

// Role is a named grant shared by many users.
type Role struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`

	Users []User `gorm:"many2many:user_roles;" json:"-"`
}

// Built-in role names.
const (
	RoleAdmin    = "ADMIN"
	RoleUser     = "USER"
	RoleManager  = "MANAGER"
	RoleEmployee = "EMPLOYEE"
)

// RoleTypes lists the built-in role names in display order.
func RoleTypes() []string {
	return []string{RoleAdmin, RoleUser, RoleManager, RoleEmployee}
}
