package channels

import (
	"context"
	"time"
)

// SendResult is the structured outcome of one single-unit send.
// Adapters never let a provider error escape; every failure lands here.
type SendResult struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// UnitSender is the single-unit send contract shared by both channels.
type UnitSender interface {
	Send(ctx context.Context, destination, body string) SendResult
}

// SessionEventType identifies an asynchronous handshake/lifecycle event
// coming out of the WhatsApp transport.
type SessionEventType string

const (
	// EventQR carries a fresh pairing code; the provider rotates these.
	EventQR SessionEventType = "qr"
	// EventReady fires once the link is authenticated and usable.
	EventReady SessionEventType = "ready"
	// EventAuthFailed is terminal for the attempt: the provider rejected
	// the link or logged the device out.
	EventAuthFailed SessionEventType = "auth_failed"
	// EventDropped is a remote-initiated disconnect of a live session.
	EventDropped SessionEventType = "dropped"
	// EventDeliveryReceipt is a provider confirmation that previously
	// sent messages reached their recipient. Not a state transition.
	EventDeliveryReceipt SessionEventType = "delivery_receipt"
)

// SessionEvent is a transport lifecycle event, serialized per tenant by
// the connection state machine.
type SessionEvent struct {
	Type       SessionEventType
	Code       string // pairing code, EventQR only
	JID        string // EventReady only
	Phone      string // EventReady only
	MessageIDs []string  // EventDeliveryReceipt only
	Timestamp  time.Time // EventDeliveryReceipt only
	Error      string
}

// Link is a live per-tenant transport handle. It is exclusively owned by
// the tenant's registry entry; Close releases the underlying client and
// must be safe to call exactly once after any event.
type Link interface {
	UnitSender

	// Events yields lifecycle events until the link is closed.
	Events() <-chan SessionEvent

	// Done is closed when the link has been released.
	Done() <-chan struct{}

	// Close disconnects and releases the handle.
	Close()
}

// SessionTransport opens and tears down per-tenant WhatsApp links.
type SessionTransport interface {
	// Open allocates a link for the tenant and starts the handshake
	// asynchronously. If on-disk credentials exist the link re-authenticates
	// silently and emits EventReady without any EventQR.
	Open(ctx context.Context, tenantID string) (Link, error)

	// HasCredentials reports whether on-disk credentials exist for the
	// tenant, i.e. whether Open can re-authenticate without a QR scan.
	HasCredentials(tenantID string) bool

	// Purge deletes the tenant's on-disk session credentials.
	Purge(tenantID string) error
}
