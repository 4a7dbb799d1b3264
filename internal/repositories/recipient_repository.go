package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"schoolcomms/internal/models"
)

// RecipientRepository resolves contacts against the recipient_directory
// view maintained by the student/staff data layer. Read-only.
type RecipientRepository struct {
	db *gorm.DB
}

// NewRecipientRepository creates a new recipient repository
func NewRecipientRepository(db *gorm.DB) *RecipientRepository {
	return &RecipientRepository{db: db}
}

// Resolve looks a recipient up by directory id within a tenant, or nil
// if the id is unknown.
func (r *RecipientRepository) Resolve(ctx context.Context, tenantID, recipientID string) (*models.RecipientInfo, error) {
	var info models.RecipientInfo
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", recipientID, tenantID).
		First(&info).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &info, nil
}
