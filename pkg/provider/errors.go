package provider

import (
	"errors"
	"fmt"
)

// UpstreamError is returned when the backend answers with a non-success
// status. Message carries the backend's error.message when it sent one,
// otherwise the HTTP status text.
type UpstreamError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("OpenAI API error: %s", e.Message)
}

// AsUpstreamError reports whether err wraps an *UpstreamError and returns it.
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
