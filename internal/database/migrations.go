package database

import (
	"fmt"

	"gorm.io/gorm"

	"schoolcomms/internal/models"
)

// RunMigrations applies the schema for all owned tables.
func RunMigrations(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.TenantConnection{},
		&models.EmailSetting{},
		&models.DeliveryRecord{},
		&models.MessageTemplate{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
