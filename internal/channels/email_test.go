package channels

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"gopkg.in/gomail.v2"
)

type fakeSendCloser struct {
	from    string
	to      []string
	message bytes.Buffer
	sendErr error
	closed  bool
}

func (f *fakeSendCloser) Send(from string, to []string, msg io.WriterTo) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.from = from
	f.to = to
	_, err := msg.WriteTo(&f.message)
	return err
}

func (f *fakeSendCloser) Close() error {
	f.closed = true
	return nil
}

type fakeDialer struct {
	sc      *fakeSendCloser
	dialErr error
}

func (d *fakeDialer) Dial() (gomail.SendCloser, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.sc, nil
}

func testEmailSender(d smtpDialer) *EmailSender {
	return &EmailSender{
		fromAddress: "noreply@school.example.com",
		fromName:    "City Grammar School",
		subject:     "Fee reminder",
		dialer:      d,
		dialTimeout: time.Second,
	}
}

func TestEmailSend(t *testing.T) {
	sc := &fakeSendCloser{}
	sender := testEmailSender(&fakeDialer{sc: sc})

	res := sender.Send(context.Background(), "parent@example.com", "Fee of Rs 4500 is due.")
	if !res.Success {
		t.Fatalf("Send failed: %s", res.Error)
	}

	if sc.from != "noreply@school.example.com" {
		t.Errorf("from = %q", sc.from)
	}
	if len(sc.to) != 1 || sc.to[0] != "parent@example.com" {
		t.Errorf("to = %v", sc.to)
	}
	raw := sc.message.String()
	if !strings.Contains(raw, "Subject: Fee reminder") {
		t.Error("subject header missing from message")
	}
	if !strings.Contains(raw, "Fee of Rs 4500 is due.") {
		t.Error("body missing from message")
	}
	if !sc.closed {
		t.Error("connection not closed after send")
	}
}

func TestEmailSendDialFailure(t *testing.T) {
	sender := testEmailSender(&fakeDialer{dialErr: errors.New("connection refused")})

	res := sender.Send(context.Background(), "parent@example.com", "hello")
	if res.Success {
		t.Fatal("Send should fail when the dial fails")
	}
	if !strings.Contains(res.Error, "connection refused") {
		t.Errorf("Error = %q, want dial reason", res.Error)
	}
}

func TestEmailSendSMTPFailure(t *testing.T) {
	sc := &fakeSendCloser{sendErr: errors.New("550 mailbox unavailable")}
	sender := testEmailSender(&fakeDialer{sc: sc})

	res := sender.Send(context.Background(), "parent@example.com", "hello")
	if res.Success {
		t.Fatal("Send should surface the SMTP rejection")
	}
	if !strings.Contains(res.Error, "550") {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestEmailVerify(t *testing.T) {
	sc := &fakeSendCloser{}
	sender := testEmailSender(&fakeDialer{sc: sc})

	if err := sender.Verify(context.Background()); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !sc.closed {
		t.Error("Verify should close the handshake connection")
	}

	sender = testEmailSender(&fakeDialer{dialErr: errors.New("i/o timeout")})
	if err := sender.Verify(context.Background()); err == nil {
		t.Error("Verify should fail when the dial fails")
	}
}

type hangingDialer struct{}

func (hangingDialer) Dial() (gomail.SendCloser, error) {
	time.Sleep(10 * time.Second)
	return nil, errors.New("unreachable")
}

func TestEmailDialTimeout(t *testing.T) {
	sender := testEmailSender(hangingDialer{})
	sender.dialTimeout = 20 * time.Millisecond

	res := sender.Send(context.Background(), "parent@example.com", "hello")
	if res.Success {
		t.Fatal("Send should time out against a hung server")
	}
	if !strings.Contains(res.Error, "timed out") {
		t.Errorf("Error = %q, want timeout", res.Error)
	}
}
