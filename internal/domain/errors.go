package domain

import (
	"errors"
	"fmt"
)

// ErrExtractionDegraded signals that extraction fell back to built-in defaults.
var ErrExtractionDegraded = errors.New("extraction degraded to default values")

// BackendError is an application-level rejection from a collaboration platform.
// It is never retried.
type BackendError struct {
	Platform   Platform
	Op         string
	StatusCode int
	Code       int
	Payload    string
}

func (e *BackendError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s %s: backend code %d (http %d): %s", e.Platform, e.Op, e.Code, e.StatusCode, e.Payload)
	}
	return fmt.Sprintf("%s %s: http %d: %s", e.Platform, e.Op, e.StatusCode, e.Payload)
}

// ConfigurationError reports an unknown platform or a missing setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration %s: %s", e.Field, e.Reason)
}

// TransientNetworkError wraps failures worth retrying (connection errors,
// throttling, upstream 5xx).
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s: transient failure: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err carries a TransientNetworkError.
func IsTransient(err error) bool {
	var transient *TransientNetworkError
	return errors.As(err, &transient)
}
