package models

import (
	"time"

	"gorm.io/gorm"
)

// EmailSetting is the per-tenant SMTP channel configuration.
// Password is write-only at the API surface and never serialized out.
type EmailSetting struct {
	ID           uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID     string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"tenant_id"`
	Host         string         `gorm:"type:varchar(255);not null" json:"host"`
	Port         int            `gorm:"not null;default:587" json:"port"`
	Username     string         `gorm:"type:varchar(255)" json:"username"`
	Password     string         `gorm:"type:varchar(255)" json:"-"`
	FromAddress  string         `gorm:"type:varchar(255);not null" json:"from_address"`
	FromName     string         `gorm:"type:varchar(255)" json:"from_name"`
	Verified     bool           `gorm:"not null;default:false" json:"verified"`
	LastVerified *time.Time     `json:"last_verified,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName specifies the table name for EmailSetting
func (EmailSetting) TableName() string {
	return "email_settings"
}

// SetVerified records a successful test connection.
func (e *EmailSetting) SetVerified() {
	now := time.Now()
	e.Verified = true
	e.LastVerified = &now
}

// SetUnverified clears the verified flag after a failed test or a
// configuration change.
func (e *EmailSetting) SetUnverified() {
	e.Verified = false
}
