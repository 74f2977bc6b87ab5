// Package stdout implements a Transport that prints messages to standard output.
package stdout

import (
	"context"
	"fmt"
	"html"
	"io"
	"os"
	"strings"

	"github.com/docker/go-units"
	"github.com/microcosm-cc/bluemonday"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/mimemsg"
	"github.com/shineum/mailkit/internal/transport"
)

// Dialer opens stdout transports. Credentials and server are accepted but
// not checked.
type Dialer struct {
	// writer is the output destination, defaulting to os.Stdout.
	writer io.Writer
}

// New creates a Dialer whose transports write to os.Stdout.
func New() *Dialer {
	return &Dialer{writer: os.Stdout}
}

// NewWithWriter creates a Dialer whose transports write to w.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Dialer {
	return &Dialer{writer: w}
}

// Dial returns a Transport that prints messages sent from mailbox.
func (d *Dialer) Dial(_ context.Context, _ email.Credentials, _, mailbox string) (transport.Transport, error) {
	return &Transport{
		writer:  d.writer,
		mailbox: mailbox,
		policy:  bluemonday.StrictPolicy(),
	}, nil
}

// Name returns the provider name.
func (d *Dialer) Name() string {
	return "stdout"
}

// Transport prints email messages in a human-readable format.
type Transport struct {
	writer  io.Writer
	mailbox string
	policy  *bluemonday.Policy
}

// Send prints the message with a plain-text rendering of its HTML body.
func (p *Transport) Send(_ context.Context, msg *email.Message) (*transport.Receipt, error) {
	var b strings.Builder

	from := msg.From
	if from == "" {
		from = p.mailbox
	}

	b.WriteString("========================================\n")
	b.WriteString(fmt.Sprintf("From: %s\n", from))
	b.WriteString(fmt.Sprintf("To: %s\n", strings.Join(msg.To, ", ")))

	if len(msg.Cc) > 0 {
		b.WriteString(fmt.Sprintf("Cc: %s\n", strings.Join(msg.Cc, ", ")))
	}

	b.WriteString(fmt.Sprintf("Subject: %s\n", msg.Subject))
	b.WriteString("Body:\n")
	b.WriteString(p.plainText(msg.Body) + "\n")

	if len(msg.Attachments) > 0 {
		attachments := make([]string, 0, len(msg.Attachments))
		for _, att := range msg.Attachments {
			label := fmt.Sprintf("%s (%s)", att.Name, units.BytesSize(float64(len(att.Content))))
			if att.Inline {
				label += " [inline]"
			}
			attachments = append(attachments, label)
		}
		b.WriteString(fmt.Sprintf("Attachments: %s\n", strings.Join(attachments, ", ")))
	}

	b.WriteString("========================================\n")

	if _, err := fmt.Fprint(p.writer, b.String()); err != nil {
		return nil, fmt.Errorf("failed to write message: %w", err)
	}

	messageID := msg.MessageID
	if messageID == "" {
		messageID = mimemsg.NewMessageID(from)
	}
	return transport.NewReceipt(p.Name(), messageID, msg), nil
}

// Name returns the provider name.
func (p *Transport) Name() string {
	return "stdout"
}

// Close is a no-op.
func (p *Transport) Close() error {
	return nil
}

// plainText strips markup from body and collapses blank lines.
func (p *Transport) plainText(body email.HTMLBody) string {
	text := html.UnescapeString(p.policy.Sanitize(string(body)))

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	return strings.Join(kept, "\n")
}
