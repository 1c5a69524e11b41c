package provider

import (
	"errors"
	"fmt"
)

// ErrAuthFailure is returned when the token endpoint rejects the
// client-credentials grant. Fatal for the calling request.
var ErrAuthFailure = errors.New("provider authentication failed")

// ErrPermissionDenied is returned when the provider rejects a call with 403.
// Callers on the reply path treat it as a signal to fall back, not as fatal.
var ErrPermissionDenied = errors.New("provider permission denied")

// RequestError is any other non-2xx response from the provider, carrying the
// provider's error body for the caller to surface.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("provider request failed with status %d: %s", e.StatusCode, e.Body)
}

// statusError maps a non-2xx response to the right error value.
func statusError(statusCode int, body string) error {
	switch statusCode {
	case 401:
		return fmt.Errorf("%w: %s", ErrAuthFailure, body)
	case 403:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, body)
	default:
		return &RequestError{StatusCode: statusCode, Body: body}
	}
}
