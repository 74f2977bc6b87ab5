package mailer

import "errors"

var (
	// ErrNoSession indicates a draft was requested without a session.
	ErrNoSession = errors.New("mailer: no session")

	// ErrSessionClosed indicates the session was released before use.
	ErrSessionClosed = errors.New("mailer: session is closed")

	// ErrNoRecipients indicates an empty recipient list.
	ErrNoRecipients = errors.New("mailer: message must have at least one recipient")

	// ErrInvalidRecipient indicates a recipient entry without an '@'.
	ErrInvalidRecipient = errors.New("mailer: invalid recipient")

	// ErrMissingArgument indicates a required argument was empty.
	ErrMissingArgument = errors.New("mailer: missing argument")

	// ErrNoDraft indicates a nil draft was passed.
	ErrNoDraft = errors.New("mailer: no draft")

	// ErrAlreadySent indicates the draft has already been sent.
	ErrAlreadySent = errors.New("mailer: draft already sent")

	// ErrUnsupportedSource indicates an attachment source of an unknown
	// kind. Only returned when Strict is set.
	ErrUnsupportedSource = errors.New("mailer: unsupported attachment source")
)
