// Package resend implements a Transport backed by the Resend HTTP API.
package resend

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v3"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/transport"
)

// Dialer creates Resend clients. The credential secret is the API key;
// the principal only identifies the key in errors.
type Dialer struct{}

// New creates a Dialer.
func New() *Dialer {
	return &Dialer{}
}

// Name returns the provider name.
func (d *Dialer) Name() string {
	return "resend"
}

// Dial builds a client for creds.Secret. A non-empty server overrides the
// API base URL. Resend has no credential check endpoint usable by send-only
// keys, so a rejected key surfaces on the first Send.
func (d *Dialer) Dial(_ context.Context, creds email.Credentials, server, mailbox string) (transport.Transport, error) {
	client := resend.NewClient(creds.Secret)

	if server != "" {
		base, err := url.Parse(server)
		if err != nil || base.Scheme == "" || base.Host == "" {
			return nil, fmt.Errorf("invalid Resend API URL %q", server)
		}
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		client.BaseURL = base
	}

	return &Transport{
		client:    client,
		principal: creds.Principal,
		from:      mailbox,
	}, nil
}

// Transport sends messages through the Resend emails endpoint.
type Transport struct {
	client    *resend.Client
	principal string
	from      string
}

// Send delivers msg with a single API call.
func (t *Transport) Send(ctx context.Context, msg *email.Message) (*transport.Receipt, error) {
	from := msg.From
	if from == "" {
		from = t.from
	}

	req := &resend.SendEmailRequest{
		From:    from,
		To:      msg.To,
		Cc:      msg.Cc,
		Subject: msg.Subject,
		Html:    string(msg.Body),
	}
	if msg.MessageID != "" {
		req.Headers = map[string]string{"Message-ID": msg.MessageID}
	}

	if len(msg.Attachments) > 0 {
		req.Attachments = convertAttachments(msg.Attachments)
	}

	resp, err := t.client.Emails.SendWithContext(ctx, req)
	if err != nil {
		if isAuthError(err) {
			return nil, &transport.AuthorizationError{Provider: t.Name(), Principal: t.principal, Err: err}
		}
		return nil, fmt.Errorf("resend: failed to send email: %w", err)
	}

	return transport.NewReceipt(t.Name(), resp.Id, msg), nil
}

// Name returns the provider name.
func (t *Transport) Name() string {
	return "resend"
}

// Close is a no-op.
func (t *Transport) Close() error {
	return nil
}

func convertAttachments(attachments []email.Attachment) []*resend.Attachment {
	result := make([]*resend.Attachment, len(attachments))
	for i, a := range attachments {
		att := &resend.Attachment{
			Filename:    a.Name,
			Content:     a.Content,
			ContentType: a.ContentType,
		}
		if a.Inline {
			att.ContentId = a.ContentID
		}
		result[i] = att
	}
	return result
}

// isAuthError matches the client's error text; resend-go does not expose
// the response status.
func isAuthError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"401", "403", "api key", "unauthorized", "forbidden"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
