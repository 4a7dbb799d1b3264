package services

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"schoolcomms/internal/channels"
	"schoolcomms/internal/models"
)

// SessionStatus is the read projection of one tenant's session.
type SessionStatus struct {
	TenantID    string              `json:"tenant_id"`
	State       models.SessionState `json:"state"`
	Connected   bool                `json:"connected"`
	PhoneNumber string              `json:"phone_number,omitempty"`
	QRImage     string              `json:"qr_image,omitempty"`
	LastError   string              `json:"last_error,omitempty"`
}

// TenantSession is one tenant's live entry in the registry. The entry
// exclusively owns its transport link; all mutation happens under mu so
// event handlers, the watchdog and HTTP callers serialize per tenant.
type TenantSession struct {
	TenantID string

	mu          sync.Mutex
	state       models.SessionState
	phoneNumber string
	jid         string
	failure     error
	link        channels.Link
	watchdog    *time.Timer
	notify      chan struct{}
}

// signal wakes every waiter blocked on a state change by closing the
// current notify channel and replacing it.
func (s *TenantSession) signal() {
	s.mu.Lock()
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
}

// nextState is the connection state machine's transition table. It
// returns the successor state and whether the event is legal in the
// current state; illegal events are ignored by the caller.
func nextState(state models.SessionState, evt channels.SessionEventType) (models.SessionState, bool) {
	switch evt {
	case channels.EventQR:
		// Provider issued or rotated a pairing code.
		if state == models.StateConnecting || state == models.StateAwaitingScan {
			return models.StateAwaitingScan, true
		}
	case channels.EventReady:
		if state.InHandshake() {
			return models.StateReady, true
		}
		// whatsmeow re-fires Connected after transparent reconnects.
		if state == models.StateReady {
			return models.StateReady, true
		}
	case channels.EventAuthFailed:
		if state.InHandshake() || state == models.StateReady {
			return models.StateDisconnected, true
		}
	case channels.EventDropped:
		if state.InHandshake() || state == models.StateReady {
			return models.StateDisconnected, true
		}
	}
	return state, false
}

// Registry is the per-tenant table of active WhatsApp sessions plus the
// pending-QR cache. It is the only cross-request shared mutable state
// in the service.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*TenantSession
	qrCache  *cache.Cache
}

// NewRegistry creates a registry whose cached QR images expire after
// qrTTL, matching the handshake watchdog window.
func NewRegistry(qrTTL time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*TenantSession),
		qrCache:  cache.New(qrTTL, qrTTL),
	}
}

// Get returns the tenant's session entry if one exists.
func (r *Registry) Get(tenantID string) (*TenantSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[tenantID]
	return sess, ok
}

// Acquire returns the tenant's existing entry, or creates one in the
// Connecting state. The boolean reports whether the entry is new; a
// caller holding an existing entry must reuse it rather than spawning a
// second transport handle.
func (r *Registry) Acquire(tenantID string) (*TenantSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, ok := r.sessions[tenantID]; ok {
		return sess, false
	}

	sess := &TenantSession{
		TenantID: tenantID,
		state:    models.StateConnecting,
		notify:   make(chan struct{}),
	}
	r.sessions[tenantID] = sess
	return sess, true
}

// Remove drops the tenant's entry and cached QR.
func (r *Registry) Remove(tenantID string) {
	r.mu.Lock()
	delete(r.sessions, tenantID)
	r.mu.Unlock()
	r.qrCache.Delete(tenantID)
}

// SetQR caches the tenant's current pairing image, replacing any
// rotated-out predecessor.
func (r *Registry) SetQR(tenantID, image string) {
	r.qrCache.SetDefault(tenantID, image)
}

// QR returns the tenant's cached pairing image if one is pending.
func (r *Registry) QR(tenantID string) (string, bool) {
	v, ok := r.qrCache.Get(tenantID)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// ClearQR drops the tenant's cached pairing image.
func (r *Registry) ClearQR(tenantID string) {
	r.qrCache.Delete(tenantID)
}

// Snapshot returns the tenant's current status, or false if no
// in-memory session exists.
func (r *Registry) Snapshot(tenantID string) (SessionStatus, bool) {
	sess, ok := r.Get(tenantID)
	if !ok {
		return SessionStatus{}, false
	}

	sess.mu.Lock()
	status := SessionStatus{
		TenantID:    sess.TenantID,
		State:       sess.state,
		Connected:   sess.state == models.StateReady,
		PhoneNumber: sess.phoneNumber,
	}
	if sess.failure != nil {
		status.LastError = sess.failure.Error()
	}
	sess.mu.Unlock()

	if status.State == models.StateAwaitingScan {
		if qr, ok := r.QR(tenantID); ok {
			status.QRImage = qr
		}
	}

	return status, true
}

// Shutdown closes every live link. Used on process exit.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*TenantSession, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.sessions = make(map[string]*TenantSession)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.mu.Lock()
		// Disconnecting swallows the drop event the close provokes, so
		// the persisted connected flag survives for restart re-auth.
		sess.state = models.StateDisconnecting
		link := sess.link
		if sess.watchdog != nil {
			sess.watchdog.Stop()
		}
		sess.mu.Unlock()
		if link != nil {
			link.Close()
		}
	}
}
