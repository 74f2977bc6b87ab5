package mailer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/mimemsg"
	"github.com/shineum/mailkit/internal/transport"
)

// Draft is a message under construction. It borrows its session, grows
// through Attach, and is consumed by a successful Send.
type Draft struct {
	session *Session
	msg     email.Message
	sent    bool
}

// NewMessage builds a draft addressed to recipients, kept as given and in
// order. Every recipient must contain an '@' and no line breaks.
func NewMessage(session *Session, subject, bodyHTML string, recipients []string) (*Draft, error) {
	if session == nil {
		return nil, ErrNoSession
	}
	if err := validateRecipients(recipients); err != nil {
		return nil, err
	}

	return &Draft{
		session: session,
		msg: email.Message{
			From:      session.mailbox,
			To:        slices.Clone(recipients),
			Subject:   subject,
			Body:      email.HTMLBody(bodyHTML),
			MessageID: mimemsg.NewMessageID(session.mailbox),
		},
	}, nil
}

// LoadDraft reads an RFC 5322 document written by WriteTo (or any mail
// client) into a new draft bound to session. The sender is replaced by the
// session mailbox.
func LoadDraft(session *Session, r io.Reader) (*Draft, error) {
	if session == nil {
		return nil, ErrNoSession
	}

	msg, err := mimemsg.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}
	if err := validateRecipients(msg.To); err != nil {
		return nil, fmt.Errorf("load draft: %w", err)
	}

	msg.From = session.mailbox
	if msg.MessageID == "" {
		msg.MessageID = mimemsg.NewMessageID(session.mailbox)
	}

	return &Draft{session: session, msg: *msg}, nil
}

func validateRecipients(recipients []string) error {
	if len(recipients) == 0 {
		return ErrNoRecipients
	}
	for i, r := range recipients {
		if !strings.Contains(r, "@") || strings.ContainsAny(r, "\r\n") {
			return fmt.Errorf("%w: entry %d %q", ErrInvalidRecipient, i, r)
		}
	}
	return nil
}

// Session returns the session the draft is bound to.
func (d *Draft) Session() *Session { return d.session }

// Subject returns the subject line.
func (d *Draft) Subject() string { return d.msg.Subject }

// Body returns the HTML body.
func (d *Draft) Body() email.HTMLBody { return d.msg.Body }

// Recipients returns a copy of the To list.
func (d *Draft) Recipients() []string { return slices.Clone(d.msg.To) }

// MessageID returns the RFC 5322 Message-ID assigned to the draft.
func (d *Draft) MessageID() string { return d.msg.MessageID }

// Attachments returns a deep copy of the bound attachments.
func (d *Draft) Attachments() []email.Attachment {
	return d.Message().Attachments
}

// Message returns a deep copy of the underlying message.
func (d *Draft) Message() email.Message { return d.msg.Clone() }

// Sent reports whether the draft has been delivered.
func (d *Draft) Sent() bool { return d.sent }

// Send delivers the draft through its session exactly once. A failed send
// leaves the draft unsent; nothing is retried.
func (d *Draft) Send(ctx context.Context) (*transport.Receipt, error) {
	if d.sent {
		return nil, ErrAlreadySent
	}

	msg := d.msg.Clone()
	receipt, err := d.session.send(ctx, &msg)
	if err != nil {
		d.session.logger.Error("send failed",
			"provider", d.session.provider,
			"message_id", d.msg.MessageID,
			"error", err,
		)
		return nil, fmt.Errorf("send draft: %w", err)
	}
	d.sent = true

	d.session.logger.Info("message sent",
		"provider", receipt.Provider,
		"message_id", receipt.MessageID,
		"recipients", len(receipt.Recipients),
		"attachments", len(d.msg.Attachments),
	)
	return receipt, nil
}

// WriteTo writes the draft as an RFC 5322 (.eml) document.
func (d *Draft) WriteTo(w io.Writer) (int64, error) {
	raw, err := mimemsg.Build(&d.msg)
	if err != nil {
		return 0, fmt.Errorf("export draft: %w", err)
	}
	return bytes.NewReader(raw).WriteTo(w)
}
