package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageTemplate is tenant-owned reusable body text with {{tag}}
// placeholders. It is a read-only input to dispatch.
type MessageTemplate struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  string         `gorm:"type:varchar(64);not null;index:idx_templates_tenant" json:"tenant_id"`
	Name      string         `gorm:"type:varchar(255);not null" json:"name"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName specifies the table name for MessageTemplate
func (MessageTemplate) TableName() string {
	return "message_templates"
}

// BeforeCreate hook to generate UUID if not set
func (t *MessageTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}
