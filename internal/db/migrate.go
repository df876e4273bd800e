package db

import (
	"fmt"

	"github.com/stackmelt/passkey-auth/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for all application models.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.User{},
		&models.Auth{},
		&models.PasskeyCredential{},
		&models.PasskeyCeremony{},
	)
}
