package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolcomms/internal/models"
)

// DeliveryRepository is the delivery log writer: append-only create plus
// forward-only status updates. Each call is independent; no transaction
// spans a batch.
type DeliveryRepository struct {
	db *gorm.DB
}

// NewDeliveryRepository creates a new delivery repository
func NewDeliveryRepository(db *gorm.DB) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

// Create appends one delivery record.
func (r *DeliveryRepository) Create(ctx context.Context, record *models.DeliveryRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// Update persists an already-validated in-memory record.
func (r *DeliveryRepository) Update(ctx context.Context, record *models.DeliveryRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

// UpdateStatus refines a record's status later, e.g. when the channel
// reports delivery. Backward transitions are rejected.
func (r *DeliveryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.DeliveryStatus, deliveredAt *time.Time, errMsg *string) error {
	var record models.DeliveryRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("delivery record not found")
		}
		return err
	}

	if !record.Status.CanTransitionTo(status) {
		return fmt.Errorf("invalid status transition %s -> %s", record.Status, status)
	}

	record.Status = status
	if deliveredAt != nil {
		record.DeliveredAt = deliveredAt
	}
	if errMsg != nil {
		record.Error = errMsg
	}

	return r.db.WithContext(ctx).Save(&record).Error
}

// MarkDelivered refines sent records to delivered by their provider
// message ids, driven by channel delivery receipts. Records in any
// other status are left alone, keeping the transition forward-only.
func (r *DeliveryRepository) MarkDelivered(ctx context.Context, tenantID string, providerIDs []string, at time.Time) error {
	if len(providerIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.DeliveryRecord{}).
		Where("tenant_id = ? AND provider_message_id IN ? AND status = ?",
			tenantID, providerIDs, models.DeliverySent).
		Updates(map[string]interface{}{
			"status":       models.DeliveryDelivered,
			"delivered_at": at,
		}).Error
}

// GetByID retrieves one delivery record scoped to a tenant.
func (r *DeliveryRepository) GetByID(ctx context.Context, tenantID string, id uuid.UUID) (*models.DeliveryRecord, error) {
	var record models.DeliveryRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&record).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &record, nil
}

// ListByTenant retrieves a page of the tenant's delivery log, newest
// first, optionally filtered by channel and status.
func (r *DeliveryRepository) ListByTenant(ctx context.Context, tenantID string, channel *models.Channel, status *models.DeliveryStatus, limit, offset int) ([]*models.DeliveryRecord, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.DeliveryRecord{}).
		Where("tenant_id = ?", tenantID)

	if channel != nil {
		query = query.Where("channel = ?", *channel)
	}
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var records []*models.DeliveryRecord
	err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error

	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
