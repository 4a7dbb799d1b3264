package repositories

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolcomms/internal/models"
)

// TemplateRepository reads tenant-owned message templates.
type TemplateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository creates a new template repository
func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// GetByID retrieves a template scoped to a tenant.
func (r *TemplateRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.MessageTemplate, error) {
	var tmpl models.MessageTemplate
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&tmpl).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &tmpl, nil
}

// ListByTenant retrieves all templates for a tenant.
func (r *TemplateRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.MessageTemplate, error) {
	var templates []*models.MessageTemplate
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name ASC").
		Find(&templates).Error

	if err != nil {
		return nil, err
	}

	return templates, nil
}
