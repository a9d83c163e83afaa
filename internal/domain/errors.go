package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrValidation          = errors.New("invalid request")
	ErrDimension           = errors.New("embedding dimension mismatch")
	ErrMalformedCursor     = errors.New("malformed cursor")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidationError reports a request that failed shape or range checks. It is
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

// Validationf builds a ValidationError for field with a formatted reason.
func Validationf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// Is makes errors.Is(err, ErrValidation) hold for every ValidationError.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// DimensionError reports an embedding provider that returned a vector with
// fewer components than the store requires.
type DimensionError struct {
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding has %d dimensions, need at least %d", e.Got, e.Want)
}

func (e *DimensionError) Is(target error) bool { return target == ErrDimension }

// MalformedCursorError reports a pagination token that does not decode.
type MalformedCursorError struct {
	Cursor string
	Reason string
}

func (e *MalformedCursorError) Error() string {
	return fmt.Sprintf("malformed cursor %q: %s", e.Cursor, e.Reason)
}

func (e *MalformedCursorError) Is(target error) bool { return target == ErrMalformedCursor }

// UpstreamError wraps a failure of the embedding provider or the vector
// store. Callers may retry with backoff; the search engine itself never does.
type UpstreamError struct {
	Service string
	Err     error
}

func (e *UpstreamError) Error() string {
	return e.Service + ": " + e.Err.Error()
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstreamUnavailable }
