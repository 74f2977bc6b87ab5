package email

import "log/slog"

// Credentials identify the principal that opens a mail session.
type Credentials struct {
	Principal string
	Secret    string
}

// String implements fmt.Stringer and never prints the secret.
func (c Credentials) String() string {
	return c.Principal + ":[redacted]"
}

// LogValue implements slog.LogValuer so credentials can be logged safely.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("principal", c.Principal),
		slog.Bool("secret_set", c.Secret != ""),
	)
}
