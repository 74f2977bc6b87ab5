// Package smtp implements a Transport that submits messages to an SMTP
// relay, upgrading with STARTTLS and authenticating with SASL PLAIN.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/mimemsg"
	smtptls "github.com/shineum/mailkit/internal/tls"
	"github.com/shineum/mailkit/internal/transport"
)

// defaultPort is the message submission port used when server has none.
const defaultPort = "587"

// dialTimeout bounds connection setup when ctx carries no deadline.
const dialTimeout = 30 * time.Second

// ErrInsecureAuth indicates the server offered no STARTTLS and sending
// credentials in plaintext was not allowed.
var ErrInsecureAuth = errors.New("refusing to authenticate over an unencrypted connection")

// DialerConfig holds the TLS settings for SMTP sessions.
type DialerConfig struct {
	// RequireTLS fails the dial when the server does not offer STARTTLS.
	RequireTLS         bool
	CAFile             string
	InsecureSkipVerify bool
	// AllowInsecureAuth permits AUTH PLAIN without TLS, for local relays
	// that do not offer STARTTLS.
	AllowInsecureAuth bool
}

// Dialer opens authenticated SMTP submission sessions.
type Dialer struct {
	cfg DialerConfig
}

// New creates a Dialer with the given configuration.
func New(cfg DialerConfig) *Dialer {
	return &Dialer{cfg: cfg}
}

// Name returns the provider name.
func (d *Dialer) Name() string {
	return "smtp"
}

// Dial connects to server (host or host:port), upgrades to TLS when the
// server offers STARTTLS, and authenticates creds. Without TLS it returns
// ErrInsecureAuth unless AllowInsecureAuth is set. A rejected AUTH command
// is reported as *transport.AuthorizationError.
func (d *Dialer) Dial(ctx context.Context, creds email.Credentials, server, mailbox string) (transport.Transport, error) {
	addr := withDefaultPort(server)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid server address %q: %w", server, err)
	}

	netDialer := &net.Dialer{Timeout: dialTimeout}
	conn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	client, err := gosmtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start SMTP session: %w", err)
	}

	encrypted, err := d.startTLS(client, host)
	if err != nil {
		client.Close()
		return nil, err
	}
	if !encrypted {
		if !d.cfg.AllowInsecureAuth {
			client.Close()
			return nil, fmt.Errorf("%w: %s does not offer STARTTLS", ErrInsecureAuth, addr)
		}
		slog.Warn("SMTP server does not offer STARTTLS, authenticating in plaintext", "server", addr)
	}

	if ok, _ := client.Extension("AUTH"); !ok {
		client.Close()
		return nil, fmt.Errorf("server %s does not offer AUTH", addr)
	}

	if err := client.Auth(sasl.NewPlainClient("", creds.Principal, creds.Secret)); err != nil {
		client.Close()
		if isProtocolError(err) {
			return nil, &transport.AuthorizationError{Provider: d.Name(), Principal: creds.Principal, Err: err}
		}
		return nil, fmt.Errorf("SMTP AUTH failed: %w", err)
	}

	slog.Debug("SMTP session established",
		"server", addr,
		"mailbox", mailbox,
	)

	conn.SetDeadline(time.Time{})

	return &Transport{
		client:  client,
		conn:    conn,
		mailbox: mailbox,
	}, nil
}

// startTLS upgrades the connection when the server offers STARTTLS and
// reports whether the session is now encrypted.
func (d *Dialer) startTLS(client *gosmtp.Client, host string) (bool, error) {
	if ok, _ := client.Extension("STARTTLS"); !ok {
		if d.cfg.RequireTLS {
			return false, fmt.Errorf("server %s does not offer STARTTLS", host)
		}
		return false, nil
	}

	tlsConfig, err := smtptls.ClientConfig(host, d.cfg.CAFile, d.cfg.InsecureSkipVerify)
	if err != nil {
		return false, fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := client.StartTLS(tlsConfig); err != nil {
		return false, fmt.Errorf("STARTTLS failed: %w", err)
	}
	return true, nil
}

// Transport submits messages over an authenticated SMTP session.
type Transport struct {
	client  *gosmtp.Client
	conn    net.Conn
	mailbox string
}

// Send submits msg as a single MAIL/RCPT/DATA transaction. On failure the
// transaction is reset so the session stays usable.
func (t *Transport) Send(ctx context.Context, msg *email.Message) (*transport.Receipt, error) {
	if msg.MessageID == "" {
		msg.MessageID = mimemsg.NewMessageID(t.mailbox)
	}
	if msg.From == "" {
		msg.From = t.mailbox
	}

	raw, err := mimemsg.Build(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		t.conn.SetDeadline(deadline)
		defer t.conn.SetDeadline(time.Time{})
	}

	if err := t.submit(msg, raw); err != nil {
		if resetErr := t.client.Reset(); resetErr != nil {
			slog.Debug("failed to reset SMTP transaction", "error", resetErr)
		}
		return nil, err
	}

	return transport.NewReceipt(t.Name(), msg.MessageID, msg), nil
}

func (t *Transport) submit(msg *email.Message, raw []byte) error {
	if err := t.client.Mail(t.mailbox, nil); err != nil {
		return fmt.Errorf("MAIL FROM rejected: %w", err)
	}

	for _, rcpt := range append(append([]string{}, msg.To...), msg.Cc...) {
		if err := t.client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("RCPT TO %q rejected: %w", rcpt, err)
		}
	}

	w, err := t.client.Data()
	if err != nil {
		return fmt.Errorf("DATA rejected: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return fmt.Errorf("failed to write message data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("message rejected: %w", err)
	}
	return nil
}

// Name returns the provider name.
func (t *Transport) Name() string {
	return "smtp"
}

// Close ends the session with QUIT, dropping the connection if QUIT fails.
func (t *Transport) Close() error {
	if err := t.client.Quit(); err != nil {
		t.client.Close()
		return fmt.Errorf("SMTP QUIT failed: %w", err)
	}
	return nil
}

func withDefaultPort(server string) string {
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, defaultPort)
}

// isProtocolError reports whether err is a reply from the server rather
// than a local or network failure.
func isProtocolError(err error) bool {
	var smtpErr *gosmtp.SMTPError
	if errors.As(err, &smtpErr) {
		return true
	}
	var protoErr *textproto.Error
	return errors.As(err, &protoErr)
}
