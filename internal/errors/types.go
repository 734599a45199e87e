package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
)

// AuthError reports an authentication failure (HTTP 401/403). The transport
// clears stored credentials and fires the session-expired hook before
// returning one of these.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed (%d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("authentication failed (%d)", e.StatusCode)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// NewAuthError builds an AuthError for a 401/403 response.
func NewAuthError(statusCode int, err error) *AuthError {
	return &AuthError{StatusCode: statusCode, Err: err}
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// TransportError reports a non-2xx response other than 401/403, or a request
// failure not caused by cancellation. StatusText carries the server's status
// line so the UI can show it verbatim.
type TransportError struct {
	StatusCode int
	StatusText string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusText != "" {
		return fmt.Sprintf("request failed: %s", e.StatusText)
	}
	if e.Err != nil {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	return "request failed"
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError builds a TransportError from an HTTP status.
func NewTransportError(statusCode int, statusText string) *TransportError {
	return &TransportError{StatusCode: statusCode, StatusText: statusText}
}

// WrapTransport wraps a request-level failure (DNS, connect, TLS, read).
func WrapTransport(err error) *TransportError {
	return &TransportError{Err: err}
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsTransient reports whether err is worth retrying. Auth failures are never
// transient; transport failures are transient for 429/5xx and network errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsAuth(err) {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		if te.StatusCode != 0 {
			return isTransientHTTPStatus(te.StatusCode)
		}
		// No status: the request itself failed, usually a network issue.
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func isTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// FromResponse maps a non-2xx response to the error taxonomy.
func FromResponse(statusCode int, status string) error {
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return NewAuthError(statusCode, nil)
	}
	return NewTransportError(statusCode, status)
}
