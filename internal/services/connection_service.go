package services

import (
	"context"
	"encoding/base64"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"schoolcomms/internal/channels"
	"schoolcomms/internal/config"
	"schoolcomms/internal/models"
	"schoolcomms/pkg/logger"
)

// persistTimeout bounds the database writes triggered by asynchronous
// transport events, which run outside any request context.
const persistTimeout = 10 * time.Second

// ConnectionStore is the persistence surface the connection service
// needs from the connection repository.
type ConnectionStore interface {
	GetByTenant(ctx context.Context, tenantID string) (*models.TenantConnection, error)
	Upsert(ctx context.Context, conn *models.TenantConnection) error
	ListConnected(ctx context.Context) ([]*models.TenantConnection, error)
}

// ReceiptSink consumes channel delivery confirmations.
type ReceiptSink interface {
	MarkDelivered(ctx context.Context, tenantID string, providerIDs []string, at time.Time) error
}

// ConnectionService drives the per-tenant WhatsApp session lifecycle:
// handshake with QR pairing, silent re-authentication from stored
// credentials, the handshake watchdog and explicit teardown.
type ConnectionService struct {
	cfg       *config.Config
	registry  *Registry
	transport channels.SessionTransport
	repo      ConnectionStore
	receipts  ReceiptSink
	log       *logger.Logger
}

// NewConnectionService creates a new connection service
func NewConnectionService(cfg *config.Config, registry *Registry, transport channels.SessionTransport, repo ConnectionStore, receipts ReceiptSink, log *logger.Logger) *ConnectionService {
	return &ConnectionService{
		cfg:       cfg,
		registry:  registry,
		transport: transport,
		repo:      repo,
		receipts:  receipts,
		log:       log,
	}
}

// Connect starts or joins the tenant's handshake and blocks until it
// produces something actionable: a pairing QR, a ready session, or a
// terminal failure. Calling it again while a session is live or a
// handshake is pending is idempotent.
func (s *ConnectionService) Connect(ctx context.Context, tenantID string) (SessionStatus, error) {
	sess, fresh := s.registry.Acquire(tenantID)

	if fresh {
		// The link must outlive this request; its lifetime is governed
		// by the watchdog and the event pump, not the caller.
		link, err := s.transport.Open(context.Background(), tenantID)
		if err != nil {
			s.registry.Remove(tenantID)
			return SessionStatus{}, newError(KindTransport, "open whatsapp link: %v", err)
		}

		sess.mu.Lock()
		sess.link = link
		sess.watchdog = time.AfterFunc(s.cfg.WhatsApp.HandshakeTimeout, func() {
			s.handshakeExpired(sess)
		})
		sess.mu.Unlock()

		go s.pump(sess, link)
		s.log.Info("WhatsApp handshake started for tenant %s", tenantID)
	}

	return s.awaitActionable(ctx, sess)
}

// awaitActionable blocks until the session reaches a state the caller
// can act on. The watchdog guarantees the wait terminates even if the
// caller's context never expires.
func (s *ConnectionService) awaitActionable(ctx context.Context, sess *TenantSession) (SessionStatus, error) {
	for {
		sess.mu.Lock()
		state := sess.state
		failure := sess.failure
		notify := sess.notify
		sess.mu.Unlock()

		switch state {
		case models.StateReady:
			status, _ := s.registry.Snapshot(sess.TenantID)
			return status, nil
		case models.StateAwaitingScan:
			if qr, ok := s.registry.QR(sess.TenantID); ok {
				status, _ := s.registry.Snapshot(sess.TenantID)
				status.QRImage = qr
				return status, nil
			}
		case models.StateDisconnected:
			if failure == nil {
				failure = newError(KindTransport, "whatsapp link closed during handshake")
			}
			return SessionStatus{}, failure
		case models.StateDisconnecting:
			return SessionStatus{}, newError(KindTransport, "whatsapp session is shutting down")
		}

		select {
		case <-notify:
		case <-ctx.Done():
			return SessionStatus{}, newError(KindTransport, "wait for whatsapp handshake: %v", ctx.Err())
		}
	}
}

// pump serializes transport events into state transitions. It exits on
// the first terminal transition or when the link is released.
func (s *ConnectionService) pump(sess *TenantSession, link channels.Link) {
	for {
		select {
		case evt := <-link.Events():
			if evt.Type == channels.EventDeliveryReceipt {
				s.recordReceipt(sess.TenantID, evt)
				continue
			}
			if s.applyEvent(sess, link, evt) {
				return
			}
		case <-link.Done():
			s.applyEvent(sess, link, channels.SessionEvent{
				Type:  channels.EventDropped,
				Error: "whatsapp link closed",
			})
			return
		}
	}
}

// applyEvent runs one event through the transition table and performs
// its side effects. Returns true on a terminal transition.
func (s *ConnectionService) applyEvent(sess *TenantSession, link channels.Link, evt channels.SessionEvent) bool {
	sess.mu.Lock()
	next, ok := nextState(sess.state, evt.Type)
	if !ok {
		sess.mu.Unlock()
		return false
	}
	sess.state = next

	switch evt.Type {
	case channels.EventQR:
		sess.mu.Unlock()
		s.cacheQR(sess.TenantID, evt.Code)
		sess.signal()

	case channels.EventReady:
		sess.phoneNumber = evt.Phone
		sess.jid = evt.JID
		sess.failure = nil
		if sess.watchdog != nil {
			sess.watchdog.Stop()
		}
		sess.mu.Unlock()
		s.registry.ClearQR(sess.TenantID)
		s.persistConnected(sess.TenantID, evt.JID, evt.Phone)
		s.log.Info("WhatsApp session ready for tenant %s (%s)", sess.TenantID, evt.Phone)
		sess.signal()

	case channels.EventAuthFailed:
		sess.failure = newError(KindAuthFailure, "whatsapp authentication failed: %s", evt.Error)
		if sess.watchdog != nil {
			sess.watchdog.Stop()
		}
		sess.mu.Unlock()
		link.Close()
		s.registry.Remove(sess.TenantID)
		if err := s.transport.Purge(sess.TenantID); err != nil {
			s.log.Warn("Failed to purge credentials for tenant %s: %v", sess.TenantID, err)
		}
		s.persistDisconnected(sess.TenantID)
		s.log.Warn("WhatsApp auth failed for tenant %s: %s", sess.TenantID, evt.Error)
		sess.signal()
		return true

	case channels.EventDropped:
		sess.failure = newError(KindTransport, "whatsapp link dropped: %s", evt.Error)
		if sess.watchdog != nil {
			sess.watchdog.Stop()
		}
		sess.mu.Unlock()
		link.Close()
		s.registry.Remove(sess.TenantID)
		s.persistDisconnected(sess.TenantID)
		s.log.Warn("WhatsApp link dropped for tenant %s: %s", sess.TenantID, evt.Error)
		sess.signal()
		return true

	default:
		sess.mu.Unlock()
	}

	return false
}

// recordReceipt refines sent deliveries to delivered when the provider
// confirms them.
func (s *ConnectionService) recordReceipt(tenantID string, evt channels.SessionEvent) {
	if s.receipts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.receipts.MarkDelivered(ctx, tenantID, evt.MessageIDs, evt.Timestamp); err != nil {
		s.log.Error("Failed to record delivery receipt for tenant %s: %v", tenantID, err)
	}
}

// handshakeExpired fires from the watchdog timer. A handshake that has
// not produced a ready session within the window is torn down; a
// session that became ready in time is left alone.
func (s *ConnectionService) handshakeExpired(sess *TenantSession) {
	sess.mu.Lock()
	if !sess.state.InHandshake() {
		sess.mu.Unlock()
		return
	}
	sess.state = models.StateDisconnected
	sess.failure = newError(KindHandshakeTimeout, "whatsapp handshake not completed within %s", s.cfg.WhatsApp.HandshakeTimeout)
	link := sess.link
	sess.mu.Unlock()

	if link != nil {
		link.Close()
	}
	s.registry.Remove(sess.TenantID)
	s.persistDisconnected(sess.TenantID)
	s.log.Warn("WhatsApp handshake timed out for tenant %s", sess.TenantID)
	sess.signal()
}

// cacheQR renders the pairing code as a base64 PNG data URI and caches
// it for status polling. Rotated codes replace their predecessor.
func (s *ConnectionService) cacheQR(tenantID, code string) {
	png, err := qrcode.Encode(code, qrcode.Medium, s.cfg.WhatsApp.QRSize)
	if err != nil {
		s.log.Error("Failed to encode QR for tenant %s: %v", tenantID, err)
		return
	}
	image := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
	s.registry.SetQR(tenantID, image)
}

// Status reports the tenant's current session status. With no live
// in-memory session it falls back to the persisted record, so a
// restarted process still reports the last known phone number.
func (s *ConnectionService) Status(ctx context.Context, tenantID string) (SessionStatus, error) {
	if status, ok := s.registry.Snapshot(tenantID); ok {
		return status, nil
	}

	status := SessionStatus{
		TenantID: tenantID,
		State:    models.StateDisconnected,
	}

	conn, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		return SessionStatus{}, err
	}
	if conn != nil && conn.PhoneNumber != nil {
		status.PhoneNumber = *conn.PhoneNumber
	}

	return status, nil
}

// Disconnect tears the tenant's session down: provider-side logout when
// the link is live, credential purge, and a persisted disconnected
// record. Safe to call with no active session.
func (s *ConnectionService) Disconnect(ctx context.Context, tenantID string) error {
	sess, ok := s.registry.Get(tenantID)
	if ok {
		sess.mu.Lock()
		wasReady := sess.state == models.StateReady
		sess.state = models.StateDisconnecting
		link := sess.link
		if sess.watchdog != nil {
			sess.watchdog.Stop()
		}
		sess.mu.Unlock()

		if link != nil {
			if wasReady {
				if lo, ok := link.(interface{ Logout(context.Context) }); ok {
					lo.Logout(ctx)
				}
			}
			link.Close()
		}
		s.registry.Remove(tenantID)
	}

	if err := s.transport.Purge(tenantID); err != nil {
		s.log.Warn("Failed to purge credentials for tenant %s: %v", tenantID, err)
	}
	s.persistDisconnected(tenantID)
	s.log.Info("WhatsApp session disconnected for tenant %s", tenantID)

	return nil
}

// RestoreSessions re-authenticates every tenant whose last persisted
// outcome was a live link. Tenants whose credentials are gone get their
// record downgraded instead. Called once at startup.
func (s *ConnectionService) RestoreSessions(ctx context.Context) error {
	conns, err := s.repo.ListConnected(ctx)
	if err != nil {
		return err
	}

	for _, conn := range conns {
		tenantID := conn.TenantID
		if !s.transport.HasCredentials(tenantID) {
			s.log.Warn("No stored credentials for tenant %s, marking disconnected", tenantID)
			s.persistDisconnected(tenantID)
			continue
		}

		go func() {
			restoreCtx, cancel := context.WithTimeout(context.Background(), s.cfg.WhatsApp.HandshakeTimeout)
			defer cancel()
			if _, err := s.Connect(restoreCtx, tenantID); err != nil {
				s.log.Warn("Failed to restore WhatsApp session for tenant %s: %v", tenantID, err)
			}
		}()
	}

	s.log.Info("Session restore started for %d tenant(s)", len(conns))
	return nil
}

// Sender returns the tenant's live link for message dispatch. It never
// initiates a handshake; a tenant that is not ready must connect first.
func (s *ConnectionService) Sender(tenantID string) (channels.UnitSender, error) {
	sess, ok := s.registry.Get(tenantID)
	if !ok {
		return nil, newError(KindConfiguration, "whatsapp is not connected, scan the QR code first")
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.state != models.StateReady || sess.link == nil {
		return nil, newError(KindConfiguration, "whatsapp session is not ready (state: %s)", sess.state)
	}

	return sess.link, nil
}

// persistConnected writes the ready outcome to the durable record.
func (s *ConnectionService) persistConnected(tenantID, jid, phone string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	conn, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		s.log.Error("Failed to load connection record for tenant %s: %v", tenantID, err)
		return
	}
	if conn == nil {
		conn = &models.TenantConnection{TenantID: tenantID}
	}
	conn.SetConnected(jid, phone)

	if err := s.repo.Upsert(ctx, conn); err != nil {
		s.log.Error("Failed to persist connection for tenant %s: %v", tenantID, err)
	}
}

// persistDisconnected downgrades the durable record, keeping the last
// known phone number for the status fallback.
func (s *ConnectionService) persistDisconnected(tenantID string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	conn, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		s.log.Error("Failed to load connection record for tenant %s: %v", tenantID, err)
		return
	}
	if conn == nil {
		conn = &models.TenantConnection{TenantID: tenantID}
	}
	conn.SetDisconnected()

	if err := s.repo.Upsert(ctx, conn); err != nil {
		s.log.Error("Failed to persist disconnect for tenant %s: %v", tenantID, err)
	}
}
