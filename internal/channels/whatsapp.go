package channels

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
	_ "modernc.org/sqlite"

	"schoolcomms/internal/config"
	"schoolcomms/pkg/logger"
)

// WhatsAppTransport opens whatsmeow links backed by one sqlite credential
// store per tenant under the configured session directory.
type WhatsAppTransport struct {
	cfg    *config.Config
	logger *logger.Logger
}

// NewWhatsAppTransport creates a new WhatsApp transport
func NewWhatsAppTransport(cfg *config.Config, log *logger.Logger) *WhatsAppTransport {
	return &WhatsAppTransport{
		cfg:    cfg,
		logger: log,
	}
}

// sessionDir returns the tenant's on-disk credential directory.
func (t *WhatsAppTransport) sessionDir(tenantID string) string {
	return filepath.Join(t.cfg.WhatsApp.SessionDir, tenantID)
}

// HasCredentials reports whether a credential store exists on disk for
// the tenant. Used at startup to attempt silent re-authentication.
func (t *WhatsAppTransport) HasCredentials(tenantID string) bool {
	_, err := os.Stat(filepath.Join(t.sessionDir(tenantID), "session.db"))
	return err == nil
}

// Open allocates a whatsmeow client for the tenant and starts the
// handshake asynchronously.
func (t *WhatsAppTransport) Open(ctx context.Context, tenantID string) (Link, error) {
	dir := t.sessionDir(tenantID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)",
		filepath.Join(dir, "session.db"))

	dbLog := waLog.Stdout("wa-store:"+tenantID, "ERROR", false)
	container, err := sqlstore.New(ctx, "sqlite", dsn, dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	clientLog := waLog.Stdout("wa:"+tenantID, "ERROR", false)
	client := whatsmeow.NewClient(device, clientLog)

	link := &whatsappLink{
		tenantID:  tenantID,
		client:    client,
		container: container,
		logger:    t.logger,
		events:    make(chan SessionEvent, 8),
		done:      make(chan struct{}),
		debugQR:   t.cfg.WhatsApp.DebugQRTerminal,
	}
	client.AddEventHandler(link.handleEvent)

	// A stored device ID means this tenant linked before; whatsmeow
	// re-authenticates from the credential store and no QR is issued.
	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to get QR channel: %w", err)
		}
		go link.pumpQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		container.Close()
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return link, nil
}

// Purge deletes the tenant's on-disk session credentials.
func (t *WhatsAppTransport) Purge(tenantID string) error {
	return os.RemoveAll(t.sessionDir(tenantID))
}

// whatsappLink is a live whatsmeow client for one tenant.
type whatsappLink struct {
	tenantID  string
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *logger.Logger
	events    chan SessionEvent
	done      chan struct{}
	closeOnce sync.Once
	debugQR   bool
}

// Events yields lifecycle events until the link is closed.
func (l *whatsappLink) Events() <-chan SessionEvent {
	return l.events
}

// Done is closed when the link has been released.
func (l *whatsappLink) Done() <-chan struct{} {
	return l.done
}

// emit forwards an event unless the link was already closed.
func (l *whatsappLink) emit(evt SessionEvent) {
	select {
	case <-l.done:
	case l.events <- evt:
	}
}

// pumpQR forwards pairing codes from the whatsmeow QR channel.
func (l *whatsappLink) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			if l.debugQR {
				qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
			}
			l.emit(SessionEvent{Type: EventQR, Code: item.Code})
		case "success":
			// The ready transition rides on events.Connected.
		case "timeout":
			l.emit(SessionEvent{Type: EventDropped, Error: "pairing timed out"})
		default:
			msg := item.Event
			if item.Error != nil {
				msg = item.Error.Error()
			}
			l.emit(SessionEvent{Type: EventAuthFailed, Error: msg})
		}
	}
}

// handleEvent maps whatsmeow client events into session events.
func (l *whatsappLink) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Connected:
		jid := ""
		phone := ""
		if l.client.Store.ID != nil {
			jid = l.client.Store.ID.String()
			phone = l.client.Store.ID.User
		}
		l.emit(SessionEvent{Type: EventReady, JID: jid, Phone: phone})
	case *events.PairSuccess:
		l.logger.Info("tenant %s paired as %s (%s)", l.tenantID, v.ID.String(), v.Platform)
	case *events.Receipt:
		if v.Type == types.ReceiptTypeDelivered {
			ids := make([]string, len(v.MessageIDs))
			for i, id := range v.MessageIDs {
				ids[i] = string(id)
			}
			l.emit(SessionEvent{Type: EventDeliveryReceipt, MessageIDs: ids, Timestamp: v.Timestamp})
		}
	case *events.LoggedOut:
		l.emit(SessionEvent{Type: EventAuthFailed, Error: "logged out: " + v.Reason.String()})
	case *events.StreamReplaced:
		l.emit(SessionEvent{Type: EventDropped, Error: "stream replaced by another client"})
	case *events.Disconnected:
		l.emit(SessionEvent{Type: EventDropped, Error: "connection dropped"})
	}
}

// Send delivers one text message to a normalized phone number. Provider
// errors are converted into the structured result, never surfaced raw.
func (l *whatsappLink) Send(ctx context.Context, destination, body string) SendResult {
	if !l.client.IsLoggedIn() {
		return SendResult{Success: false, Error: "session not logged in"}
	}

	jid := types.NewJID(strings.TrimSpace(destination), types.DefaultUserServer)
	message := &waE2E.Message{
		Conversation: proto.String(body),
	}

	resp, err := l.client.SendMessage(ctx, jid, message)
	if err != nil {
		return SendResult{Success: false, Error: err.Error()}
	}

	return SendResult{Success: true, MessageID: string(resp.ID)}
}

// Logout unlinks the device on the provider side. Best effort: teardown
// proceeds regardless of the outcome.
func (l *whatsappLink) Logout(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := l.client.Logout(ctx); err != nil {
		l.logger.Warn("tenant %s logout failed: %v", l.tenantID, err)
	}
}

// Close disconnects and releases the client and its credential store.
func (l *whatsappLink) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.client.Disconnect()
		l.container.Close()
	})
}
