package db

import (
	"fmt"

	"github.com/sheetmind/sheetmind-backend/internal/models"
	"gorm.io/gorm"
)

// Migrate runs database migrations for the current dialect.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}

	if errAutoMigrate := conn.AutoMigrate(
		&models.UserProfile{},
		&models.UserUsage{},
		&models.DocumentToken{},
		&models.PendingHandshake{},
		&models.ErrorMessage{},
		&models.BillingCustomer{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	return nil
}
