package channels

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"schoolcomms/internal/models"
)

// smtpDialer abstracts gomail's Dial so tests can stand in a fake server.
type smtpDialer interface {
	Dial() (gomail.SendCloser, error)
}

// EmailSender sends over one tenant's SMTP settings. It implements
// UnitSender for bulk dispatch and exposes the configuration test flow.
type EmailSender struct {
	fromAddress string
	fromName    string
	subject     string
	dialer      smtpDialer
	dialTimeout time.Duration
}

// NewEmailSender builds a sender from the tenant's persisted settings.
func NewEmailSender(setting *models.EmailSetting, subject string, dialTimeout time.Duration) *EmailSender {
	return &EmailSender{
		fromAddress: setting.FromAddress,
		fromName:    setting.FromName,
		subject:     subject,
		dialer:      gomail.NewDialer(setting.Host, setting.Port, setting.Username, setting.Password),
		dialTimeout: dialTimeout,
	}
}

// dial opens an SMTP connection bounded by the configured timeout; a
// hung server returns an error instead of blocking the batch.
func (s *EmailSender) dial(ctx context.Context) (gomail.SendCloser, error) {
	type dialResult struct {
		sc  gomail.SendCloser
		err error
	}

	ch := make(chan dialResult, 1)
	go func() {
		sc, err := s.dialer.Dial()
		ch <- dialResult{sc, err}
	}()

	timeout := s.dialTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	select {
	case r := <-ch:
		return r.sc, r.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("smtp dial timed out after %s", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send delivers one message. SMTP errors become the structured result.
func (s *EmailSender) Send(ctx context.Context, destination, body string) SendResult {
	sc, err := s.dial(ctx)
	if err != nil {
		return SendResult{Success: false, Error: err.Error()}
	}
	defer sc.Close()

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.fromAddress, s.fromName)
	m.SetHeader("To", destination)
	m.SetHeader("Subject", s.subject)
	m.SetBody("text/plain", body)

	if err := gomail.Send(sc, m); err != nil {
		return SendResult{Success: false, Error: err.Error()}
	}

	return SendResult{Success: true}
}

// Verify performs the SMTP handshake without sending anything.
func (s *EmailSender) Verify(ctx context.Context) error {
	sc, err := s.dial(ctx)
	if err != nil {
		return err
	}
	return sc.Close()
}

// SendTest sends a short test message to the given address, used by the
// configuration test flow.
func (s *EmailSender) SendTest(ctx context.Context, to string) SendResult {
	return s.Send(ctx, to, "This is a test message confirming your email channel is configured correctly.")
}
