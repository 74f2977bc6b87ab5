// Package transport defines the interfaces that mail delivery backends
// implement. A Dialer authenticates against a server and yields a Transport
// bound to one mailbox; the Transport delivers messages for that mailbox.
package transport

import (
	"context"
	"time"

	"github.com/shineum/mailkit/internal/email"
)

// Dialer opens authenticated transports for a specific backend
// (e.g., Microsoft Graph, SMTP, AWS SES).
type Dialer interface {
	// Dial authenticates creds against server and binds the returned
	// Transport to mailbox. Credential rejection is reported as an
	// *AuthorizationError.
	Dial(ctx context.Context, creds email.Credentials, server, mailbox string) (Transport, error)

	// Name returns the human-readable name of the backend.
	Name() string
}

// Transport delivers messages through an established session.
type Transport interface {
	// Send delivers msg. It is called at most once per message and never
	// retries.
	Send(ctx context.Context, msg *email.Message) (*Receipt, error)

	// Name returns the human-readable name of the backend.
	Name() string

	// Close releases any connection or client held by the transport.
	Close() error
}

// Receipt describes a message accepted by a transport.
type Receipt struct {
	Provider   string
	MessageID  string
	Recipients []string
	SentAt     time.Time
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, creds email.Credentials, server, mailbox string) (Transport, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, creds email.Credentials, server, mailbox string) (Transport, error) {
	return f(ctx, creds, server, mailbox)
}

// Name returns "func".
func (f DialerFunc) Name() string {
	return "func"
}

// NewReceipt builds a receipt for msg stamped with the current time.
func NewReceipt(provider, messageID string, msg *email.Message) *Receipt {
	recipients := make([]string, 0, len(msg.To)+len(msg.Cc))
	recipients = append(recipients, msg.To...)
	recipients = append(recipients, msg.Cc...)

	return &Receipt{
		Provider:   provider,
		MessageID:  messageID,
		Recipients: recipients,
		SentAt:     time.Now().UTC(),
	}
}
