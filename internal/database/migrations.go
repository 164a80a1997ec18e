package database

import (
	"os"
	"strings"

	"gorm.io/gorm"

	"github.com/MAJOR25DHRUV/AddressBook-2115500051/internal/models"
	"github.com/MAJOR25DHRUV/AddressBook-2115500051/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Contact{},
		&models.PasswordResetToken{},
		&models.CacheEntry{},
	)
}

// SeedData provisions the initial admin account when credentials are
// supplied via environment and no users exist yet.
func SeedData(db *gorm.DB) error {
	username := strings.TrimSpace(os.Getenv("ADDRESSBOOK_ADMIN_USERNAME"))
	password := os.Getenv("ADDRESSBOOK_ADMIN_PASSWORD")
	email := strings.TrimSpace(os.Getenv("ADDRESSBOOK_ADMIN_EMAIL"))
	if username == "" || password == "" {
		return nil
	}
	if email == "" {
		email = username + "@localhost"
	}

	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return err
	}

	admin := models.User{
		Username: username,
		Email:    strings.ToLower(email),
		Password: hash,
		Role:     models.RoleAdmin,
	}
	return db.Create(&admin).Error
}
