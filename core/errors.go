package core

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks a malformed request: bad URL, missing fields.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a video the metadata provider does not know.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable marks any failure of an external service.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrNoActiveContext is returned when chat is asked with nothing ingested.
	ErrNoActiveContext = errors.New("no video context has been set")

	// ErrContextMismatch is returned when the client asks about a video that
	// is not the active context.
	ErrContextMismatch = errors.New("video is not the active context")

	// ErrNotConfigured marks a service whose credentials are missing.
	ErrNotConfigured = fmt.Errorf("%w: not configured", ErrUpstreamUnavailable)
)

// UpstreamError wraps a failure returned by an external service.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return e.Service + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is reports every UpstreamError as ErrUpstreamUnavailable.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

// Upstream wraps err as an UpstreamError unless it is nil or already
// classified (invalid input, not found, or another UpstreamError).
func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoActiveContext) {
		return err
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Service: service, Err: fmt.Errorf("timed out: %w", err)}
	}
	return &UpstreamError{Service: service, Err: err}
}

// InvalidInput returns an error matching ErrInvalidInput with a message.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
