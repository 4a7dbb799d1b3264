package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"schoolcomms/internal/models"
)

// EmailSettingRepository handles database operations for per-tenant SMTP
// settings.
type EmailSettingRepository struct {
	db *gorm.DB
}

// NewEmailSettingRepository creates a new email setting repository
func NewEmailSettingRepository(db *gorm.DB) *EmailSettingRepository {
	return &EmailSettingRepository{db: db}
}

// GetByTenant retrieves the tenant's SMTP settings, or nil if the tenant
// never configured the channel.
func (r *EmailSettingRepository) GetByTenant(ctx context.Context, tenantID string) (*models.EmailSetting, error) {
	var setting models.EmailSetting
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&setting).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &setting, nil
}

// Save writes the tenant's SMTP settings. An empty password on an update
// keeps the stored one, so the write-only password never round-trips
// through the API.
func (r *EmailSettingRepository) Save(ctx context.Context, setting *models.EmailSetting) error {
	existing, err := r.GetByTenant(ctx, setting.TenantID)
	if err != nil {
		return err
	}

	if existing == nil {
		return r.db.WithContext(ctx).Create(setting).Error
	}

	setting.ID = existing.ID
	setting.CreatedAt = existing.CreatedAt
	if setting.Password == "" {
		setting.Password = existing.Password
	}

	return r.db.WithContext(ctx).Save(setting).Error
}

// Update persists an already-loaded settings row (test-connection flow).
func (r *EmailSettingRepository) Update(ctx context.Context, setting *models.EmailSetting) error {
	return r.db.WithContext(ctx).Save(setting).Error
}
