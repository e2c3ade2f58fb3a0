package main

import (
	"errors"
	"fmt"
)

// Error kinds returned by the upload and rotation pipelines. Callers match them
// with errors.Is; the wrapped message carries the detail.
var (
	ErrValidation         = errors.New("validation error")
	ErrBusy               = errors.New("another run is active")
	ErrNotFound           = errors.New("not found")
	ErrTransient          = errors.New("transient I/O failure")
	ErrInvariantViolation = errors.New("invariant violation")
)

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// APIError is an error object returned by the MediaWiki action API
type APIError struct {
	Code string `json:"code"`
	Info string `json:"info"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wiki API error %s: %s", e.Code, e.Info)
}

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func invariantErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

// transient marks an I/O error as a per-job or per-edit failure unless it
// already carries a more specific kind.
func transient(err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
