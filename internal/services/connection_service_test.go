package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"schoolcomms/internal/channels"
	"schoolcomms/internal/config"
	"schoolcomms/internal/models"
	"schoolcomms/pkg/logger"
)

type fakeLink struct {
	events    chan channels.SessionEvent
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	sent       []string
	sendResult channels.SendResult
	loggedOut  bool
}

func newFakeLink() *fakeLink {
	return &fakeLink{
		events:     make(chan channels.SessionEvent, 8),
		done:       make(chan struct{}),
		sendResult: channels.SendResult{Success: true, MessageID: "msg-1"},
	}
}

func (l *fakeLink) Send(ctx context.Context, destination, body string) channels.SendResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, destination)
	return l.sendResult
}

func (l *fakeLink) Events() <-chan channels.SessionEvent { return l.events }
func (l *fakeLink) Done() <-chan struct{}                { return l.done }

func (l *fakeLink) Logout(ctx context.Context) {
	l.mu.Lock()
	l.loggedOut = true
	l.mu.Unlock()
}

func (l *fakeLink) Close() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *fakeLink) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

type fakeTransport struct {
	mu     sync.Mutex
	links  []*fakeLink
	next   *fakeLink
	creds  map[string]bool
	purged []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{creds: make(map[string]bool)}
}

func (t *fakeTransport) Open(ctx context.Context, tenantID string) (channels.Link, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	link := t.next
	if link == nil {
		link = newFakeLink()
	}
	t.next = nil
	t.links = append(t.links, link)
	return link, nil
}

func (t *fakeTransport) HasCredentials(tenantID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.creds[tenantID]
}

func (t *fakeTransport) Purge(tenantID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.creds, tenantID)
	t.purged = append(t.purged, tenantID)
	return nil
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.links)
}

type fakeConnectionStore struct {
	mu      sync.Mutex
	records map[string]*models.TenantConnection
}

func newFakeConnectionStore() *fakeConnectionStore {
	return &fakeConnectionStore{records: make(map[string]*models.TenantConnection)}
}

func (s *fakeConnectionStore) GetByTenant(ctx context.Context, tenantID string) (*models.TenantConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn, ok := s.records[tenantID]; ok {
		copied := *conn
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeConnectionStore) Upsert(ctx context.Context, conn *models.TenantConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *conn
	s.records[conn.TenantID] = &copied
	return nil
}

func (s *fakeConnectionStore) ListConnected(ctx context.Context) ([]*models.TenantConnection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var conns []*models.TenantConnection
	for _, conn := range s.records {
		if conn.Connected {
			copied := *conn
			conns = append(conns, &copied)
		}
	}
	return conns, nil
}

func (s *fakeConnectionStore) connected(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.records[tenantID]
	return ok && conn.Connected
}

func testConnectionConfig() *config.Config {
	return &config.Config{
		WhatsApp: config.WhatsAppConfig{
			CountryCode:      "92",
			TrunkPrefix:      "0",
			HandshakeTimeout: 2 * time.Second,
			QRSize:           64,
		},
	}
}

type fakeReceiptSink struct {
	mu    sync.Mutex
	calls [][]string
}

func (s *fakeReceiptSink) MarkDelivered(ctx context.Context, tenantID string, providerIDs []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, providerIDs)
	return nil
}

func newTestConnectionService(cfg *config.Config) (*ConnectionService, *fakeTransport, *fakeConnectionStore) {
	transport := newFakeTransport()
	store := newFakeConnectionStore()
	registry := NewRegistry(cfg.WhatsApp.HandshakeTimeout)
	svc := NewConnectionService(cfg, registry, transport, store, &fakeReceiptSink{}, logger.New("error"))
	return svc, transport, store
}

func TestConnectReturnsPairingQR(t *testing.T) {
	svc, transport, _ := newTestConnectionService(testConnectionConfig())

	link := newFakeLink()
	link.events <- channels.SessionEvent{Type: channels.EventQR, Code: "pairing-payload"}
	transport.next = link

	status, err := svc.Connect(context.Background(), "school-1")
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if status.State != models.StateAwaitingScan {
		t.Errorf("State = %s, want %s", status.State, models.StateAwaitingScan)
	}
	if status.Connected {
		t.Error("Connected should be false before the scan")
	}
	if !strings.HasPrefix(status.QRImage, "data:image/png;base64,") {
		t.Errorf("QRImage is not a PNG data URI: %.40q", status.QRImage)
	}
}

func TestConnectReusesCachedQR(t *testing.T) {
	svc, transport, _ := newTestConnectionService(testConnectionConfig())

	link := newFakeLink()
	link.events <- channels.SessionEvent{Type: channels.EventQR, Code: "pairing-payload"}
	transport.next = link

	first, err := svc.Connect(context.Background(), "school-1")
	if err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	second, err := svc.Connect(context.Background(), "school-1")
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}

	if second.QRImage != first.QRImage {
		t.Error("repeat connect while awaiting scan should return the same cached QR")
	}
	if transport.openCount() != 1 {
		t.Errorf("transport opened %d times, want 1", transport.openCount())
	}
}

func TestDeliveryReceiptsReachTheSink(t *testing.T) {
	svc, transport, _ := newTestConnectionService(testConnectionConfig())
	sink := &fakeReceiptSink{}
	svc.receipts = sink

	link := newFakeLink()
	link.events <- channels.SessionEvent{Type: channels.EventReady, Phone: "923001234567"}
	transport.next = link

	if _, err := svc.Connect(context.Background(), "school-1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	link.events <- channels.SessionEvent{
		Type:       channels.EventDeliveryReceipt,
		MessageIDs: []string{"3EB0A1B2C3"},
		Timestamp:  time.Now(),
	}

	deadline := time.After(2 * time.Second)
	for {
		sink.mu.Lock()
		n := len(sink.calls)
		sink.mu.Unlock()
		if n == 1 {
			if sink.calls[0][0] != "3EB0A1B2C3" {
				t.Errorf("receipt ids = %v", sink.calls[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("delivery receipt never reached the sink")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestConnectSilentReauth(t *testing.T) {
	svc, transport, store := newTestConnectionService(testConnectionConfig())

	link := newFakeLink()
	link.events <- channels.SessionEvent{Type: channels.EventReady, JID: "923001234567:1@s.whatsapp.net", Phone: "923001234567"}
	transport.next = link

	status, err := svc.Connect(context.Background(), "school-1")
	if err != nil {
		t.Fatalf("Connect returned error: %v", err)
	}
	if !status.Connected || status.State != models.StateReady {
		t.Errorf("status = %+v, want connected/ready", status)
	}
	if status.PhoneNumber != "923001234567" {
		t.Errorf("PhoneNumber = %q", status.PhoneNumber)
	}
	if status.QRImage != "" {
		t.Error("ready status should not carry a QR image")
	}
	if !store.connected("school-1") {
		t.Error("ready outcome was not persisted")
	}
}

func TestConnectIsIdempotentWhileReady(t *testing.T) {
	svc, transport, _ := newTestConnectionService(testConnectionConfig())

	link := newFakeLink()
	link.events <- channels.SessionEvent{Type: channels.EventReady, Phone: "923001234567"}
	transport.next = link

	if _, err := svc.Connect(context.Background(), "school-1"); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	status, err := svc.Connect(context.Background(), "school-1")
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if !status.Connected {
		t.Error("second Connect should report the live session")
	}
	if transport.openCount() != 1 {
		t.Errorf("transport opened %d times, want 1", transport.openCount())
	}
}

func TestConnectQRThenScanCompletes(t *testing.T) {
	svc, transport, store := newTestConnectionService(testConnectionConfig())

	link := newFakeLink()
	link.events <- channels.SessionEvent{Type: channels.EventQR, Code: "pairing-payload"}
	transport.next = link

	status, err := svc.Connect(context.Background(), "school-1")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if status.State != models.StateAwaitingScan {
		t.Fatalf("State = %s, want awaiting scan", status.State)
	}

	link.events <- channels.SessionEvent{Type: channels.EventReady, Phone: "923001234567"}

	deadline := time.After(2 * time.Second)
	for {
		got, err := svc.Status(context.Background(), "school-1")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if got.Connected {
			if got.PhoneNumber != "923001234567" {
				t.Errorf("PhoneNumber = %q", got.PhoneNumber)
			}
			if got.QRImage != "" {
				t.Error("QR image should be dropped once ready")
			}
			if !store.connected("school-1") {
				t.Error("ready outcome was not persisted")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("session never became ready after the scan event")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestConnectHandshakeWatchdog(t *testing.T) {
	cfg := testConnectionConfig()
	cfg.WhatsApp.HandshakeTimeout = 50 * time.Millisecond
	svc, transport, _ := newTestConnectionService(cfg)

	link := newFakeLink()
	transport.next = link

	_, err := svc.Connect(context.Background(), "school-1")
	if err == nil {
		t.Fatal("Connect should fail when the handshake never completes")
	}
	if KindOf(err) != KindHandshakeTimeout {
		t.Errorf("error kind = %q, want %q", KindOf(err), KindHandshakeTimeout)
	}
	if !link.closed() {
		t.Error("expired handshake should close the link")
	}
	if _, ok := svc.registry.Get("school-1"); ok {
		t.Error("expired handshake should drop the registry entry")
	}
}

func TestAuthFailurePurgesCredentials(t *testing.T) {
	svc, transport, store := newTestConnectionService(testConnectionConfig())

	link := newFakeLink()
	link.events <- channels.SessionEvent{Type: channels.EventAuthFailed, Error: "logged out"}
	transport.next = link
	transport.creds["school-1"] = true

	_, err := svc.Connect(context.Background(), "school-1")
	if err == nil {
		t.Fatal("Connect should fail on auth failure")
	}
	if KindOf(err) != KindAuthFailure {
		t.Errorf("error kind = %q, want %q", KindOf(err), KindAuthFailure)
	}

	transport.mu.Lock()
	purged := len(transport.purged)
	transport.mu.Unlock()
	if purged != 1 {
		t.Errorf("credentials purged %d times, want 1", purged)
	}
	if store.connected("school-1") {
		t.Error("auth failure should persist a disconnected record")
	}
}

func TestDisconnectTearsDownSession(t *testing.T) {
	svc, transport, store := newTestConnectionService(testConnectionConfig())

	link := newFakeLink()
	link.events <- channels.SessionEvent{Type: channels.EventReady, Phone: "923001234567"}
	transport.next = link

	if _, err := svc.Connect(context.Background(), "school-1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := svc.Disconnect(context.Background(), "school-1"); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	link.mu.Lock()
	loggedOut := link.loggedOut
	link.mu.Unlock()
	if !loggedOut {
		t.Error("disconnect from ready should log out on the provider side")
	}
	if !link.closed() {
		t.Error("disconnect should close the link")
	}
	if _, ok := svc.registry.Get("school-1"); ok {
		t.Error("disconnect should drop the registry entry")
	}
	if store.connected("school-1") {
		t.Error("disconnect should persist a disconnected record")
	}

	// A second disconnect with no session is a no-op, not an error.
	if err := svc.Disconnect(context.Background(), "school-1"); err != nil {
		t.Fatalf("repeat Disconnect: %v", err)
	}
}

func TestStatusFallsBackToPersistedRecord(t *testing.T) {
	svc, _, store := newTestConnectionService(testConnectionConfig())

	phone := "923001234567"
	record := &models.TenantConnection{TenantID: "school-1", PhoneNumber: &phone}
	record.SetDisconnected()
	store.Upsert(context.Background(), record)

	status, err := svc.Status(context.Background(), "school-1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Connected {
		t.Error("Connected should be false with no live session")
	}
	if status.State != models.StateDisconnected {
		t.Errorf("State = %s, want %s", status.State, models.StateDisconnected)
	}
	if status.PhoneNumber != phone {
		t.Errorf("PhoneNumber = %q, want last persisted number", status.PhoneNumber)
	}
}

func TestSenderRequiresReadySession(t *testing.T) {
	svc, transport, _ := newTestConnectionService(testConnectionConfig())

	if _, err := svc.Sender("school-1"); KindOf(err) != KindConfiguration {
		t.Errorf("Sender with no session: kind = %q, want %q", KindOf(err), KindConfiguration)
	}

	link := newFakeLink()
	link.events <- channels.SessionEvent{Type: channels.EventReady, Phone: "923001234567"}
	transport.next = link
	if _, err := svc.Connect(context.Background(), "school-1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	sender, err := svc.Sender("school-1")
	if err != nil {
		t.Fatalf("Sender: %v", err)
	}
	res := sender.Send(context.Background(), "923001234567", "hello")
	if !res.Success {
		t.Errorf("Send failed: %s", res.Error)
	}
}
