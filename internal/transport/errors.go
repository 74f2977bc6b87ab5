package transport

import (
	"errors"
	"fmt"
)

// ErrAuthorization is matched by every *AuthorizationError via errors.Is.
var ErrAuthorization = errors.New("authorization failed")

// AuthorizationError reports that a server rejected the supplied credentials.
type AuthorizationError struct {
	Provider  string
	Principal string
	Err       error
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("%s: authorization failed for %q: %v", e.Provider, e.Principal, e.Err)
}

// Unwrap returns the underlying backend error.
func (e *AuthorizationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrAuthorization.
func (e *AuthorizationError) Is(target error) bool {
	return target == ErrAuthorization
}
