package api

import (
	"errors"
	"fmt"
)

// ErrSessionExpired is returned when a request fails with 401, the
// refresh attempt does not produce a usable token pair, and the session
// has been cleared. Callers must re-authenticate.
var ErrSessionExpired = errors.New("session expired")

// Error is a non-2xx API response carrying the server's detail string.
type Error struct {
	Status int
	Detail string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error: status %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("api error: status %d", e.Status)
}

// AsError unwraps err into an *Error if it is one.
func AsError(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsStatus reports whether err is an API error with the given status.
func IsStatus(err error, status int) bool {
	apiErr, ok := AsError(err)
	return ok && apiErr.Status == status
}
