package models

import (
	"time"

	"gorm.io/gorm"
)

// SessionState represents the lifecycle state of a tenant's WhatsApp link.
// Only the Ready/Disconnected outcome is persisted; the rest lives in the
// in-memory registry.
type SessionState string

const (
	StateDisconnected  SessionState = "disconnected"
	StateConnecting    SessionState = "connecting"
	StateAwaitingScan  SessionState = "awaiting_scan"
	StateReady         SessionState = "ready"
	StateAuthFailed    SessionState = "auth_failed"
	StateDisconnecting SessionState = "disconnecting"
)

// IsValid checks if the session state is valid
func (s SessionState) IsValid() bool {
	switch s {
	case StateDisconnected, StateConnecting, StateAwaitingScan,
		StateReady, StateAuthFailed, StateDisconnecting:
		return true
	default:
		return false
	}
}

// InHandshake reports whether the state is still waiting on a terminal
// handshake event and therefore covered by the watchdog.
func (s SessionState) InHandshake() bool {
	return s == StateConnecting || s == StateAwaitingScan
}

// TenantConnection is the persisted outcome of a tenant's WhatsApp link.
// It is what getStatus falls back to when no in-memory session exists
// (process restart case).
type TenantConnection struct {
	ID                 uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID           string         `gorm:"type:varchar(64);not null;uniqueIndex" json:"tenant_id"`
	Connected          bool           `gorm:"not null;default:false" json:"connected"`
	PhoneNumber        *string        `gorm:"type:varchar(20)" json:"phone_number,omitempty"`
	JID                *string        `gorm:"type:varchar(255)" json:"jid,omitempty"`
	LastConnectedAt    *time.Time     `json:"last_connected_at,omitempty"`
	LastDisconnectedAt *time.Time     `json:"last_disconnected_at,omitempty"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName specifies the table name for TenantConnection
func (TenantConnection) TableName() string {
	return "tenant_connections"
}

// SetConnected marks the persisted record as linked to the given number.
func (t *TenantConnection) SetConnected(jid, phoneNumber string) {
	now := time.Now()
	t.Connected = true
	t.JID = &jid
	t.PhoneNumber = &phoneNumber
	t.LastConnectedAt = &now
}

// SetDisconnected marks the persisted record as no longer linked.
func (t *TenantConnection) SetDisconnected() {
	now := time.Now()
	t.Connected = false
	t.LastDisconnectedAt = &now
}
