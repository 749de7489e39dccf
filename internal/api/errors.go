package api

import (
	"errors"
	"fmt"
)

// ValidationError reports a caller-supplied parameter outside its declared
// domain. Always surfaced synchronously, never silently coerced.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrUpstreamUnavailable signals that the forecasting model backend could
// not be reached after bounded retries. Callers fall back to the last
// cached prediction if one exists.
var ErrUpstreamUnavailable = errors.New("forecast model backend unavailable")

// ErrNoData signals that a store query returned no records for the window.
// Not a hard failure for the forecaster: it triggers the synthetic fallback
// and is surfaced as a degraded-confidence advisory.
var ErrNoData = errors.New("no historical records for requested window")
