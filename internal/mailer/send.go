package mailer

import (
	"context"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/table"
	"github.com/shineum/mailkit/internal/transport"
)

// Source is a named attachment source for SendMail. A nil Inline keeps
// the Attach default.
type Source struct {
	Name   string
	Value  any
	Inline *bool
}

// Request carries everything SendMail needs.
type Request struct {
	Credentials email.Credentials
	Server      string
	Mailbox     string
	To          []string
	Subject     string
	Body        string
	Attachments []Source
	// DryRun builds the draft without sending it. The session stays open
	// and is released by Result.Close.
	DryRun bool
	// Strict rejects unsupported attachment sources.
	Strict bool
}

// Result is the outcome of SendMail. Receipt is nil for dry runs.
type Result struct {
	Draft   *Draft
	Receipt *transport.Receipt
	session *Session
}

// Close releases the session a dry run left open.
func (r *Result) Close() error {
	if r.session == nil {
		return nil
	}
	return r.session.Close()
}

// SendMail connects, builds the message, binds attachments in order and,
// unless DryRun is set, sends it and closes the session. Any failure closes
// the session before returning.
func (m *Mailer) SendMail(ctx context.Context, req Request) (*Result, error) {
	session, err := m.Connect(ctx, req.Credentials, req.Server, req.Mailbox)
	if err != nil {
		return nil, err
	}

	draft, err := m.buildDraft(session, req)
	if err != nil {
		m.closeSession(session)
		return nil, err
	}

	if req.DryRun {
		m.logger.Info("dry run, message not sent",
			"provider", session.provider,
			"message_id", draft.MessageID(),
			"attachments", len(draft.msg.Attachments),
		)
		return &Result{Draft: draft, session: session}, nil
	}

	receipt, err := draft.Send(ctx)
	m.closeSession(session)
	if err != nil {
		return nil, err
	}

	return &Result{Draft: draft, Receipt: receipt}, nil
}

func (m *Mailer) buildDraft(session *Session, req Request) (*Draft, error) {
	draft, err := NewMessage(session, req.Subject, req.Body, req.To)
	if err != nil {
		return nil, err
	}

	for _, src := range req.Attachments {
		var opts []AttachOption
		if src.Inline != nil {
			opts = append(opts, Inline(*src.Inline))
		}
		if req.Strict {
			opts = append(opts, Strict())
		}
		if _, err := Attach(draft, src.Value, src.Name, opts...); err != nil {
			return nil, err
		}
	}
	return draft, nil
}

func (m *Mailer) closeSession(session *Session) {
	if err := session.Close(); err != nil {
		m.logger.Warn("failed to close session", "provider", session.provider, "error", err)
	}
}

// TableHTML renders t as an HTML table for embedding in a message body.
func TableHTML(t *table.Table) string {
	return t.HTML()
}
