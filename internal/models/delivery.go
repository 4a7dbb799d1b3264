package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryStatus represents the status of a single delivery attempt
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// IsValid checks if the delivery status is valid
func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryPending, DeliverySent, DeliveryDelivered, DeliveryFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether moving to next is a forward transition.
// Allowed paths are pending -> sent -> delivered and pending -> failed;
// a status never moves backward.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	switch s {
	case DeliveryPending:
		return next == DeliverySent || next == DeliveryFailed
	case DeliverySent:
		return next == DeliveryDelivered
	default:
		return false
	}
}

// Channel identifies a delivery mechanism
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

// IsValid checks if the channel is known
func (c Channel) IsValid() bool {
	return c == ChannelWhatsApp || c == ChannelEmail
}

// DeliveryRecord is one row per recipient per dispatch attempt.
type DeliveryRecord struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID      string         `gorm:"type:varchar(64);not null;index:idx_deliveries_tenant" json:"tenant_id"`
	RecipientID   *string        `gorm:"type:varchar(64)" json:"recipient_id,omitempty"`
	RecipientName string         `gorm:"type:varchar(255)" json:"recipient_name"`
	Phone         *string        `gorm:"type:varchar(20)" json:"phone,omitempty"`
	Email         *string        `gorm:"type:varchar(255)" json:"email,omitempty"`
	Content       string         `gorm:"type:text;not null" json:"content"`
	Channel       Channel        `gorm:"type:varchar(20);not null;index:idx_deliveries_channel" json:"channel"`
	TemplateID    *uuid.UUID     `gorm:"type:uuid" json:"template_id,omitempty"`
	Status        DeliveryStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_deliveries_status" json:"status"`
	// ProviderMessageID correlates later delivery receipts from the channel.
	ProviderMessageID *string `gorm:"type:varchar(64);index:idx_deliveries_provider_id" json:"provider_message_id,omitempty"`
	Error         *string        `gorm:"type:text" json:"error,omitempty"`
	DeliveredAt   *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for DeliveryRecord
func (DeliveryRecord) TableName() string {
	return "delivery_records"
}

// BeforeCreate hook to generate UUID if not set
func (r *DeliveryRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// MarkSent moves the record to sent if that is a forward transition.
func (r *DeliveryRecord) MarkSent() bool {
	if !r.Status.CanTransitionTo(DeliverySent) {
		return false
	}
	r.Status = DeliverySent
	r.Error = nil
	return true
}

// MarkFailed moves the record to failed with the given reason.
func (r *DeliveryRecord) MarkFailed(reason string) bool {
	if !r.Status.CanTransitionTo(DeliveryFailed) {
		return false
	}
	r.Status = DeliveryFailed
	r.Error = &reason
	return true
}

// MarkDelivered records a channel-reported delivery confirmation.
func (r *DeliveryRecord) MarkDelivered(at time.Time) bool {
	if !r.Status.CanTransitionTo(DeliveryDelivered) {
		return false
	}
	r.Status = DeliveryDelivered
	r.DeliveredAt = &at
	return true
}
