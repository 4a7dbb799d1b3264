package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schoolcomms/internal/models"
)

// ConnectionRepository handles database operations for persisted tenant
// connection records.
type ConnectionRepository struct {
	db *gorm.DB
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *gorm.DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// GetByTenant retrieves the connection record for a tenant, or nil if
// none exists yet.
func (r *ConnectionRepository) GetByTenant(ctx context.Context, tenantID string) (*models.TenantConnection, error) {
	var conn models.TenantConnection
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&conn).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &conn, nil
}

// Upsert writes the connection record, keyed by tenant.
func (r *ConnectionRepository) Upsert(ctx context.Context, conn *models.TenantConnection) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"connected", "phone_number", "jid",
				"last_connected_at", "last_disconnected_at", "updated_at",
			}),
		}).
		Create(conn).Error
}

// ListConnected retrieves all tenants whose last persisted outcome was a
// live link. Used at startup for silent re-authentication.
func (r *ConnectionRepository) ListConnected(ctx context.Context) ([]*models.TenantConnection, error) {
	var conns []*models.TenantConnection
	err := r.db.WithContext(ctx).
		Where("connected = ?", true).
		Find(&conns).Error

	if err != nil {
		return nil, err
	}

	return conns, nil
}

// Delete removes the tenant's connection record.
func (r *ConnectionRepository) Delete(ctx context.Context, tenantID string) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Delete(&models.TenantConnection{}).Error
}
