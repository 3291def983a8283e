package zmapi

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTokenExpired signals that the session ended: the refresh token is
	// missing or expired, renewal failed, or the server rejected the token.
	// Callers must send the user back to login.
	ErrTokenExpired = errors.New("token expired")

	// ErrRefreshFailed is returned by Client.Refresh on any non-success response.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// AuthError is returned when the server rejects a login exchange.
// Message is the response body verbatim, or a generic text if the body was empty.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

// RequestError is a non-success API response other than the authorization boundary.
type RequestError struct {
	StatusCode int
	Status     string
}

func (e *RequestError) Error() string {
	status := e.Status
	if status == "" {
		status = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("api error: %d %s", e.StatusCode, status)
}

// IsSessionExpired reports whether err carries the session-expired signal.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}
