package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SMTPConfig holds the outbound mail settings. At most one row is active;
// saving a new active config deactivates the previous one.
type SMTPConfig struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Host        string    `gorm:"size:255;not null" json:"host"`
	Port        int       `gorm:"not null;default:587" json:"port"`
	Username    string    `gorm:"size:255" json:"username,omitempty"`
	Password    string    `gorm:"size:255" json:"-"`
	FromAddress string    `gorm:"size:255;not null" json:"from_address"`
	UseTLS      bool      `gorm:"default:true" json:"use_tls"`
	IsActive    bool      `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (SMTPConfig) TableName() string {
	return "smtp_configs"
}

func (c *SMTPConfig) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return
}
