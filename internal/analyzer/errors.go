package analyzer

import (
	"errors"
	"fmt"
)

// ErrNoInput is returned by Summarize when neither a file nor a URL is set,
// or when both are.
var ErrNoInput = errors.New("exactly one of file or url is required")

// TransportError means the request never produced a usable HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseError means the service answered with a body that does not follow
// the contract.
type ResponseError struct {
	StatusCode int
	Reason     string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("invalid response (status %d): %s", e.StatusCode, e.Reason)
}

// ServiceError is an application-level failure reported through the
// response's error field.
type ServiceError struct {
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// IsServiceError reports whether err carries a service-reported message.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}
