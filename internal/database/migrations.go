package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/authcore/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Role{},
		&models.User{},
		&models.VerificationToken{},
		&models.RefreshToken{},
		&models.AuditLog{},
		&models.CacheEntry{},
	)
}

// SeedData makes sure every built-in role exists.
func SeedData(db *gorm.DB) error {
	for _, name := range models.RoleTypes() {
		role := models.Role{
			Name:        name,
			Description: fmt.Sprintf("Default role: %s", name),
		}
		if err := db.Where(models.Role{Name: name}).Attrs(role).FirstOrCreate(&models.Role{}).Error; err != nil {
			return err
		}
	}
	return nil
}
