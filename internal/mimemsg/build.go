// Package mimemsg converts between email.Message values and RFC 5322 MIME
// documents. Transports that speak raw MIME (SMTP, SES raw) and draft
// export/import go through this package.
package mimemsg

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shineum/mailkit/internal/email"
)

// lineLength is the maximum base64 line length per RFC 2045.
const lineLength = 76

// ErrHeaderInjection indicates an address or Message-ID containing a line
// break.
var ErrHeaderInjection = errors.New("header value contains a line break")

// NewMessageID returns a globally unique Message-ID for a message sent
// from mailbox.
func NewMessageID(mailbox string) string {
	domain := "localhost"
	if at := strings.LastIndex(mailbox, "@"); at >= 0 && at < len(mailbox)-1 {
		domain = mailbox[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// Build renders msg as a MIME document. Messages without attachments are a
// single text/html part; inline attachments are grouped with the body in a
// multipart/related part so cid: references resolve.
func Build(msg *email.Message) ([]byte, error) {
	if err := checkHeaders(msg); err != nil {
		return nil, err
	}

	var buf bytes.Buffer

	writeHeaders(&buf, msg)

	if len(msg.Attachments) == 0 {
		fmt.Fprintf(&buf, "Content-Type: text/html; charset=UTF-8\r\n")
		fmt.Fprintf(&buf, "Content-Transfer-Encoding: quoted-printable\r\n\r\n")
		if err := writeQuotedPrintable(&buf, string(msg.Body)); err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
		return buf.Bytes(), nil
	}

	mixed := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%q\r\n\r\n", mixed.Boundary())

	if msg.HasInline() {
		if err := writeRelated(mixed, msg); err != nil {
			return nil, err
		}
	} else if err := writeBodyPart(mixed, msg.Body); err != nil {
		return nil, err
	}

	for _, att := range msg.Attachments {
		if att.Inline {
			continue
		}
		if err := writeAttachmentPart(mixed, att); err != nil {
			return nil, err
		}
	}

	if err := mixed.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return buf.Bytes(), nil
}

// checkHeaders rejects raw header values that would end the header line.
// The subject is safe because Q-encoding escapes control characters.
func checkHeaders(msg *email.Message) error {
	fields := []struct {
		name   string
		values []string
	}{
		{"From", []string{msg.From}},
		{"To", msg.To},
		{"Cc", msg.Cc},
		{"Message-ID", []string{msg.MessageID}},
	}
	for _, f := range fields {
		for _, v := range f.values {
			if strings.ContainsAny(v, "\r\n") {
				return fmt.Errorf("%w: %s %q", ErrHeaderInjection, f.name, v)
			}
		}
	}
	return nil
}

func writeHeaders(buf *bytes.Buffer, msg *email.Message) {
	messageID := msg.MessageID
	if messageID == "" {
		messageID = NewMessageID(msg.From)
	}

	if msg.From != "" {
		fmt.Fprintf(buf, "From: %s\r\n", msg.From)
	}
	if len(msg.To) > 0 {
		fmt.Fprintf(buf, "To: %s\r\n", strings.Join(msg.To, ", "))
	}
	if len(msg.Cc) > 0 {
		fmt.Fprintf(buf, "Cc: %s\r\n", strings.Join(msg.Cc, ", "))
	}
	fmt.Fprintf(buf, "Subject: %s\r\n", mime.QEncoding.Encode("UTF-8", msg.Subject))
	fmt.Fprintf(buf, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	fmt.Fprintf(buf, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(buf, "MIME-Version: 1.0\r\n")
}

// writeRelated writes the HTML body together with every inline attachment
// as one multipart/related part of mixed.
func writeRelated(mixed *multipart.Writer, msg *email.Message) error {
	var inner bytes.Buffer
	related := multipart.NewWriter(&inner)

	if err := writeBodyPart(related, msg.Body); err != nil {
		return err
	}
	for _, att := range msg.Attachments {
		if !att.Inline {
			continue
		}
		if err := writeAttachmentPart(related, att); err != nil {
			return err
		}
	}
	if err := related.Close(); err != nil {
		return fmt.Errorf("failed to close related writer: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", fmt.Sprintf("multipart/related; boundary=%q", related.Boundary()))
	part, err := mixed.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create related part: %w", err)
	}
	if _, err := part.Write(inner.Bytes()); err != nil {
		return fmt.Errorf("failed to write related part: %w", err)
	}
	return nil
}

func writeBodyPart(w *multipart.Writer, body email.HTMLBody) error {
	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", "text/html; charset=UTF-8")
	header.Set("Content-Transfer-Encoding", "quoted-printable")

	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create body part: %w", err)
	}
	if err := writeQuotedPrintable(part, string(body)); err != nil {
		return fmt.Errorf("failed to encode body: %w", err)
	}
	return nil
}

func writeAttachmentPart(w *multipart.Writer, att email.Attachment) error {
	contentType := att.ContentType
	if contentType == "" {
		contentType = email.DetectContentType(att.Name, att.Content)
	}

	disposition := "attachment"
	if att.Inline {
		disposition = "inline"
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Type", formatContentType(contentType, att.Name))
	header.Set("Content-Transfer-Encoding", "base64")
	header.Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": att.Name}))
	if att.ContentID != "" {
		header.Set("Content-ID", "<"+att.ContentID+">")
	}

	part, err := w.CreatePart(header)
	if err != nil {
		return fmt.Errorf("failed to create attachment part %q: %w", att.Name, err)
	}
	if _, err := part.Write([]byte(encodeBase64WithLineBreaks(att.Content))); err != nil {
		return fmt.Errorf("failed to write attachment part %q: %w", att.Name, err)
	}
	return nil
}

// formatContentType adds the name parameter to contentType, keeping any
// parameters it already carries.
func formatContentType(contentType, name string) string {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, params = "application/octet-stream", map[string]string{}
	}
	params["name"] = name
	if formatted := mime.FormatMediaType(mediaType, params); formatted != "" {
		return formatted
	}
	return mediaType
}

func writeQuotedPrintable(w io.Writer, s string) error {
	qp := quotedprintable.NewWriter(w)
	if _, err := qp.Write([]byte(s)); err != nil {
		return err
	}
	return qp.Close()
}

// encodeBase64WithLineBreaks encodes bytes to base64 with 76-character line breaks per RFC 2045.
func encodeBase64WithLineBreaks(data []byte) string {
	encoded := base64.StdEncoding.EncodeToString(data)
	var lines []string
	for i := 0; i < len(encoded); i += lineLength {
		end := min(i+lineLength, len(encoded))
		lines = append(lines, encoded[i:end])
	}
	return strings.Join(lines, "\r\n")
}
