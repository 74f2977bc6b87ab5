package mailer

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/shineum/mailkit/internal/email"
	"github.com/shineum/mailkit/internal/table"
)

type attachOptions struct {
	inline      bool
	contentType string
	strict      bool
}

// AttachOption configures a single Attach call.
type AttachOption func(*attachOptions)

// Inline marks the attachment as inline (the default) so the body can
// reference it as cid:<name>. Inline(false) makes it a regular attachment.
func Inline(inline bool) AttachOption {
	return func(o *attachOptions) { o.inline = inline }
}

// WithContentType overrides content type detection.
func WithContentType(contentType string) AttachOption {
	return func(o *attachOptions) { o.contentType = contentType }
}

// Strict makes Attach return ErrUnsupportedSource for unknown source kinds
// instead of skipping them.
func Strict() AttachOption {
	return func(o *attachOptions) { o.strict = true }
}

// Attach binds source to d under name and returns d. Supported sources:
//
//   - string: a file path, read in full
//   - []byte: copied as-is
//   - *table.Table, table.Table: serialized to CSV with the index column
//   - io.Reader: read in full
//
// Any other kind is skipped with a warning and d is returned unchanged,
// unless Strict is given.
func Attach(d *Draft, source any, name string, opts ...AttachOption) (*Draft, error) {
	if d == nil {
		return nil, ErrNoDraft
	}
	if d.sent {
		return d, ErrAlreadySent
	}
	if name == "" {
		return d, fmt.Errorf("%w: attachment name", ErrMissingArgument)
	}

	o := attachOptions{inline: true}
	for _, opt := range opts {
		opt(&o)
	}

	content, ok, err := readSource(source)
	if err != nil {
		return d, fmt.Errorf("attach %q: %w", name, err)
	}
	if !ok {
		if o.strict {
			return d, fmt.Errorf("%w: %T for %q", ErrUnsupportedSource, source, name)
		}
		d.session.logger.Warn("unsupported attachment source skipped",
			"attachment", name,
			"kind", fmt.Sprintf("%T", source),
		)
		return d, nil
	}

	contentType := o.contentType
	if contentType == "" {
		contentType = email.DetectContentType(name, content)
	}

	d.msg.Attachments = append(d.msg.Attachments, email.Attachment{
		Name:        name,
		ContentType: contentType,
		ContentID:   name,
		Content:     content,
		Inline:      o.inline,
	})

	d.session.logger.Debug("attachment bound",
		"attachment", name,
		"content_type", contentType,
		"size", len(content),
		"inline", o.inline,
	)
	return d, nil
}

// readSource returns the payload for a supported source. ok is false for
// unsupported kinds.
func readSource(source any) (content []byte, ok bool, err error) {
	switch src := source.(type) {
	case string:
		content, err = os.ReadFile(src)
		if err != nil {
			return nil, true, err
		}
		return content, true, nil
	case []byte:
		return slices.Clone(src), true, nil
	case *table.Table:
		if src == nil {
			return nil, false, nil
		}
		content, err = src.CSV()
		return content, true, err
	case table.Table:
		content, err = src.CSV()
		return content, true, err
	case io.Reader:
		content, err = io.ReadAll(src)
		return content, true, err
	default:
		return nil, false, nil
	}
}
