package config

import (
	"errors"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"p9e.in/mfgops/models"
)

// SeedAdminUser creates the bootstrap admin account if no admin exists yet.
// Credentials come from ADMIN_EMAIL / ADMIN_PASSWORD, with dev defaults.
func SeedAdminUser() {
	var existing models.User
	err := DB.Where("role = ?", models.RoleAdmin).First(&existing).Error
	if err == nil {
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("Warning: admin seed lookup failed: %v", err)
		return
	}

	email := os.Getenv("ADMIN_EMAIL")
	if email == "" {
		email = "admin@localhost"
	}
	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password = "changeme"
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("Warning: admin seed hashing failed: %v", err)
		return
	}

	admin := models.User{
		Name:         "Administrator",
		Email:        email,
		Phone:        "0000000000",
		PasswordHash: string(hash),
		Role:         models.RoleAdmin,
		IsActive:     true,
	}
	if err := DB.Create(&admin).Error; err != nil {
		log.Printf("Warning: admin seed insert failed: %v", err)
		return
	}
	log.Printf("Seeded admin user %s", email)
}
