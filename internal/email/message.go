// Package email defines the core email data model shared by the mailer and
// its delivery transports.
package email

import "slices"

// HTMLBody is message body content that transports deliver as text/html.
type HTMLBody string

// Message represents a draft email message with all its components.
type Message struct {
	From        string
	To          []string
	Cc          []string
	Subject     string
	Body        HTMLBody
	Attachments []Attachment
	MessageID   string
}

// Attachment represents a named payload bound to a message. Inline
// attachments can be referenced from the HTML body as cid:<ContentID>.
type Attachment struct {
	Name        string
	ContentType string
	ContentID   string
	Content     []byte
	Inline      bool
}

// Clone returns a deep copy of the message so callers can inspect it
// without being able to mutate the original.
func (m *Message) Clone() Message {
	c := *m
	c.To = slices.Clone(m.To)
	c.Cc = slices.Clone(m.Cc)
	c.Attachments = make([]Attachment, len(m.Attachments))
	for i, att := range m.Attachments {
		att.Content = slices.Clone(att.Content)
		c.Attachments[i] = att
	}
	return c
}

// HasInline reports whether any attachment is marked inline.
func (m *Message) HasInline() bool {
	for _, att := range m.Attachments {
		if att.Inline {
			return true
		}
	}
	return false
}
