// Package mailer is the public face of mailkit: it opens sessions against a
// delivery backend, builds draft messages, binds attachments, and sends.
//
// A typical flow:
//
//	m := mailer.New(dialer)
//	session, err := m.Connect(ctx, creds, server, mailbox)
//	draft, err := mailer.NewMessage(session, "Report", body, []string{"a@example.com"})
//	draft, err = mailer.Attach(draft, "/tmp/report.pdf", "report.pdf")
//	receipt, err := draft.Send(ctx)
//
// SendMail runs the same steps in one call.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/transport"
)

// Mailer opens sessions through a transport.Dialer.
type Mailer struct {
	dialer transport.Dialer
	logger *slog.Logger
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithLogger sets the logger used by the mailer and everything it creates.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a Mailer that dials through dialer.
func New(dialer transport.Dialer, opts ...Option) *Mailer {
	m := &Mailer{
		dialer: dialer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect authenticates creds against server and returns a session bound
// to mailbox. Rejected credentials come back as the transport's
// *transport.AuthorizationError, unwrapped.
func (m *Mailer) Connect(ctx context.Context, creds email.Credentials, server, mailbox string) (*Session, error) {
	for _, arg := range []struct{ name, value string }{
		{"principal", creds.Principal},
		{"secret", creds.Secret},
		{"server", server},
		{"mailbox", mailbox},
	} {
		if arg.value == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingArgument, arg.name)
		}
	}

	tr, err := m.dialer.Dial(ctx, creds, server, mailbox)
	if err != nil {
		var authErr *transport.AuthorizationError
		if errors.As(err, &authErr) {
			return nil, err
		}
		return nil, fmt.Errorf("connect to %s via %s: %w", server, m.dialer.Name(), err)
	}

	m.logger.Info("session opened",
		"provider", tr.Name(),
		"server", server,
		"mailbox", mailbox,
		"credentials", creds,
	)

	return &Session{
		transport: tr,
		server:    server,
		mailbox:   mailbox,
		provider:  tr.Name(),
		logger:    m.logger,
	}, nil
}

// Session is an authenticated handle bound to one server and one mailbox.
// The caller that created it owns it and must Close it.
type Session struct {
	mu        sync.Mutex
	transport transport.Transport
	server    string
	mailbox   string
	provider  string
	logger    *slog.Logger
}

// Mailbox returns the mailbox the session sends as.
func (s *Session) Mailbox() string { return s.mailbox }

// Server returns the server the session was opened against.
func (s *Session) Server() string { return s.server }

// Provider returns the transport name.
func (s *Session) Provider() string { return s.provider }

// Close releases the underlying transport. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	tr := s.transport
	s.transport = nil
	s.mu.Unlock()

	if tr == nil {
		return nil
	}
	if err := tr.Close(); err != nil {
		return fmt.Errorf("close %s session: %w", s.provider, err)
	}
	s.logger.Debug("session closed", "provider", s.provider, "mailbox", s.mailbox)
	return nil
}

func (s *Session) send(ctx context.Context, msg *email.Message) (*transport.Receipt, error) {
	s.mu.Lock()
	tr := s.transport
	s.mu.Unlock()

	if tr == nil {
		return nil, ErrSessionClosed
	}
	return tr.Send(ctx, msg)
}
