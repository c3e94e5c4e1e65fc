package oura

import (
	"errors"
	"fmt"
	"time"
)

// AuthenticationError is returned when the token is empty or rejected by the API.
type AuthenticationError struct {
	Resource Resource
	Status   int
}

func (e *AuthenticationError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("oura %s: missing API token", e.Resource)
	}
	return fmt.Sprintf("oura %s: token rejected (status %d)", e.Resource, e.Status)
}

// TransportError wraps a network level failure.
type TransportError struct {
	Resource Resource
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("oura %s: transport failure: %v", e.Resource, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError is returned when a request exceeds the configured timeout.
type TimeoutError struct {
	Resource Resource
	Timeout  time.Duration
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("oura %s: no response within %s", e.Resource, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// HTTPError carries a non-2xx status returned by the API.
type HTTPError struct {
	Resource Resource
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("oura %s: unexpected status %d", e.Resource, e.Status)
	}
	return fmt.Sprintf("oura %s: unexpected status %d: %s", e.Resource, e.Status, e.Body)
}

// DecodeError is returned when a response body is not the expected JSON shape.
type DecodeError struct {
	Resource Resource
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("oura %s: failed to decode response: %v", e.Resource, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MissingFieldError reports a field that is absent from a record, or present
// with a type other than Want.
type MissingFieldError struct {
	Path string
	Want string
}

func (e *MissingFieldError) Error() string {
	if e.Want != "" {
		return fmt.Sprintf("field %q is not a %s", e.Path, e.Want)
	}
	return fmt.Sprintf("field %q is missing", e.Path)
}

// FieldFormatError reports a field whose value could not be parsed.
type FieldFormatError struct {
	Path  string
	Value string
	Err   error
}

func (e *FieldFormatError) Error() string {
	return fmt.Sprintf("field %q has malformed value %q: %v", e.Path, e.Value, e.Err)
}

func (e *FieldFormatError) Unwrap() error { return e.Err }

// ErrorKind returns a short label for err, suitable for metrics and logs.
func ErrorKind(err error) string {
	var (
		authErr    *AuthenticationError
		timeoutErr *TimeoutError
		transErr   *TransportError
		httpErr    *HTTPError
		decodeErr  *DecodeError
		missingErr *MissingFieldError
		formatErr  *FieldFormatError
	)

	switch {
	case err == nil:
		return "none"
	case errors.As(err, &authErr):
		return "authentication"
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &transErr):
		return "transport"
	case errors.As(err, &httpErr):
		return "http"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.As(err, &missingErr):
		return "missing_field"
	case errors.As(err, &formatErr):
		return "field_format"
	default:
		return "other"
	}
}
