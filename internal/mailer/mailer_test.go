package mailer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/transport"
)

// fakeTransport records sent messages.
type fakeTransport struct {
	sendErr  error
	sent     []email.Message
	closed   int
	closeErr error
}

func (f *fakeTransport) Send(_ context.Context, msg *email.Message) (*transport.Receipt, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, msg.Clone())
	return transport.NewReceipt("fake", msg.MessageID, msg), nil
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Close() error {
	f.closed++
	return f.closeErr
}

type fakeDialer struct {
	tr      *fakeTransport
	dialErr error
	calls   int
}

func (d *fakeDialer) Dial(_ context.Context, _ email.Credentials, _, _ string) (transport.Transport, error) {
	d.calls++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.tr, nil
}

func (d *fakeDialer) Name() string { return "fake" }

var testCreds = email.Credentials{Principal: "user@example.com", Secret: "secret"}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T) (*Session, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	m := New(&fakeDialer{tr: tr}, WithLogger(discardLogger()))
	s, err := m.Connect(context.Background(), testCreds, "mail.example.com", "box@example.com")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return s, tr
}

func TestConnect_MissingArguments(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		creds   email.Credentials
		server  string
		mailbox string
		field   string
	}{
		{"principal", email.Credentials{Secret: "s"}, "srv", "box@example.com", "principal"},
		{"secret", email.Credentials{Principal: "p"}, "srv", "box@example.com", "secret"},
		{"server", testCreds, "", "box@example.com", "server"},
		{"mailbox", testCreds, "srv", "", "mailbox"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := &fakeDialer{tr: &fakeTransport{}}
			_, err := New(d, WithLogger(discardLogger())).Connect(context.Background(), tt.creds, tt.server, tt.mailbox)
			if !errors.Is(err, ErrMissingArgument) {
				t.Fatalf("error = %v, want ErrMissingArgument", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not name %q", err, tt.field)
			}
			if d.calls != 0 {
				t.Errorf("dialer called %d times, want 0", d.calls)
			}
		})
	}
}

func TestConnect_AuthorizationErrorIsUnmodified(t *testing.T) {
	t.Parallel()

	authErr := &transport.AuthorizationError{Provider: "fake", Principal: "user@example.com", Err: errors.New("535")}
	d := &fakeDialer{dialErr: authErr}

	_, err := New(d, WithLogger(discardLogger())).Connect(context.Background(), testCreds, "srv", "box@example.com")
	if err != error(authErr) {
		t.Errorf("error = %v, want the dialer's AuthorizationError", err)
	}
	if d.calls != 1 {
		t.Errorf("dialer calls = %d, want 1", d.calls)
	}
}

func TestConnect_OtherErrorsAreWrapped(t *testing.T) {
	t.Parallel()

	dialErr := errors.New("connection refused")
	_, err := New(&fakeDialer{dialErr: dialErr}, WithLogger(discardLogger())).
		Connect(context.Background(), testCreds, "srv", "box@example.com")
	if !errors.Is(err, dialErr) {
		t.Errorf("error = %v, want wrapped dial error", err)
	}
	if errors.Is(err, transport.ErrAuthorization) {
		t.Error("connection failure reported as authorization error")
	}
}

func TestSession_Accessors(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	if s.Mailbox() != "box@example.com" {
		t.Errorf("Mailbox() = %q", s.Mailbox())
	}
	if s.Server() != "mail.example.com" {
		t.Errorf("Server() = %q", s.Server())
	}
	if s.Provider() != "fake" {
		t.Errorf("Provider() = %q", s.Provider())
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	t.Parallel()

	s, tr := newTestSession(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if tr.closed != 1 {
		t.Errorf("transport closed %d times, want 1", tr.closed)
	}
}

func TestNewMessage_KeepsRecipientOrder(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)

	for _, recipients := range [][]string{
		{"a@x.com"},
		{"c@x.com", "a@x.com", "b@x.com"},
		{"dup@x.com", "dup@x.com"},
	} {
		d, err := NewMessage(s, "S", "B", recipients)
		if err != nil {
			t.Fatalf("NewMessage(%v) error = %v", recipients, err)
		}
		got := d.Recipients()
		if strings.Join(got, ",") != strings.Join(recipients, ",") {
			t.Errorf("Recipients() = %v, want %v", got, recipients)
		}
	}
}

func TestNewMessage_CopiesRecipients(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	recipients := []string{"a@x.com"}
	d, err := NewMessage(s, "S", "B", recipients)
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}
	recipients[0] = "changed@x.com"
	if d.Recipients()[0] != "a@x.com" {
		t.Error("draft shares the caller's recipient slice")
	}
}

func TestNewMessage_Fields(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	d, err := NewMessage(s, "Subject", "<p>Body</p>", []string{"a@x.com"})
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}

	if d.Subject() != "Subject" {
		t.Errorf("Subject() = %q", d.Subject())
	}
	if d.Body() != email.HTMLBody("<p>Body</p>") {
		t.Errorf("Body() = %q", d.Body())
	}
	if msg := d.Message(); msg.From != "box@example.com" {
		t.Errorf("From = %q, want session mailbox", msg.From)
	}
	if !strings.HasSuffix(d.MessageID(), "@example.com>") {
		t.Errorf("MessageID() = %q, want mailbox domain", d.MessageID())
	}
	if len(d.Attachments()) != 0 {
		t.Errorf("Attachments() = %d, want 0", len(d.Attachments()))
	}
}

func TestNewMessage_Errors(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)

	tests := []struct {
		name       string
		session    *Session
		recipients []string
		want       error
	}{
		{"nil session", nil, []string{"a@x.com"}, ErrNoSession},
		{"no recipients", s, nil, ErrNoRecipients},
		{"empty list", s, []string{}, ErrNoRecipients},
		{"missing at", s, []string{"a@x.com", "nobody"}, ErrInvalidRecipient},
		{"crlf header injection", s, []string{"a@x.com\r\nBcc: evil@attacker.example"}, ErrInvalidRecipient},
		{"bare lf", s, []string{"a@x.com\nX-Extra: 1"}, ErrInvalidRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewMessage(tt.session, "S", "B", tt.recipients)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDraft_SendOnce(t *testing.T) {
	t.Parallel()

	s, tr := newTestSession(t)
	d, err := NewMessage(s, "S", "B", []string{"a@x.com"})
	if err != nil {
		t.Fatalf("NewMessage() error = %v", err)
	}

	receipt, err := d.Send(context.Background())
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if receipt.MessageID != d.MessageID() {
		t.Errorf("receipt MessageID = %q, want %q", receipt.MessageID, d.MessageID())
	}
	if !d.Sent() {
		t.Error("Sent() = false after Send")
	}
	if len(tr.sent) != 1 {
		t.Fatalf("transport sent %d messages, want 1", len(tr.sent))
	}

	if _, err := d.Send(context.Background()); !errors.Is(err, ErrAlreadySent) {
		t.Errorf("second Send() error = %v, want ErrAlreadySent", err)
	}
	if _, err := Attach(d, []byte("x"), "x.txt"); !errors.Is(err, ErrAlreadySent) {
		t.Errorf("Attach() after Send error = %v, want ErrAlreadySent", err)
	}
	if len(tr.sent) != 1 {
		t.Errorf("transport sent %d messages, want 1", len(tr.sent))
	}
}

func TestDraft_SendFailureLeavesDraftUnsent(t *testing.T) {
	t.Parallel()

	s, tr := newTestSession(t)
	tr.sendErr = errors.New("relay down")

	d, _ := NewMessage(s, "S", "B", []string{"a@x.com"})
	if _, err := d.Send(context.Background()); !errors.Is(err, tr.sendErr) {
		t.Fatalf("Send() error = %v, want relay error", err)
	}
	if d.Sent() {
		t.Error("Sent() = true after failed send")
	}
}

func TestDraft_SendOnClosedSession(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	d, _ := NewMessage(s, "S", "B", []string{"a@x.com"})
	s.Close()

	if _, err := d.Send(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Send() error = %v, want ErrSessionClosed", err)
	}
}

func TestDraft_WriteToLoadDraftRoundTrip(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	d, _ := NewMessage(s, "Quarterly", "<p>numbers</p>", []string{"a@x.com", "b@x.com"})
	if _, err := Attach(d, []byte("col\n"), "data.csv", Inline(false)); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	var buf bytes.Buffer
	n, err := d.WriteTo(&buf)
	if err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("WriteTo() = %d, wrote %d", n, buf.Len())
	}

	loaded, err := LoadDraft(s, &buf)
	if err != nil {
		t.Fatalf("LoadDraft() error = %v", err)
	}
	if loaded.Subject() != "Quarterly" {
		t.Errorf("Subject() = %q", loaded.Subject())
	}
	if !strings.Contains(string(loaded.Body()), "<p>numbers</p>") {
		t.Errorf("Body() = %q", loaded.Body())
	}
	if strings.Join(loaded.Recipients(), ",") != "a@x.com,b@x.com" {
		t.Errorf("Recipients() = %v", loaded.Recipients())
	}
	atts := loaded.Attachments()
	if len(atts) != 1 || atts[0].Name != "data.csv" || string(atts[0].Content) != "col\n" {
		t.Errorf("Attachments() = %+v", atts)
	}
	if loaded.MessageID() != d.MessageID() {
		t.Errorf("MessageID() = %q, want %q", loaded.MessageID(), d.MessageID())
	}
}

func TestLoadDraft_Errors(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)

	if _, err := LoadDraft(nil, strings.NewReader("")); !errors.Is(err, ErrNoSession) {
		t.Errorf("LoadDraft(nil) error = %v, want ErrNoSession", err)
	}

	noRecipients := "Subject: x\r\nContent-Type: text/html\r\n\r\n<p>x</p>"
	if _, err := LoadDraft(s, strings.NewReader(noRecipients)); !errors.Is(err, ErrNoRecipients) {
		t.Errorf("LoadDraft() error = %v, want ErrNoRecipients", err)
	}
}
