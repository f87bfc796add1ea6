// Package chaterr defines the error taxonomy shared by the chat pipeline.
//
// Three families exist:
//   - [ValidationError]: bad outbound input, rejected before anything is sent
//   - [TransportError] and [RateLimitError]: network or provider failures
//   - [MalformedPartError]: an incoming part that could not be interpreted
//
// Only validation and transport errors ever reach callers as failures. A
// malformed part is diagnostic: the part is kept as unknown content and the
// stream carries on.
package chaterr

import (
	"errors"
	"fmt"
	"time"
)

// ValidationError reports outbound input that must not be submitted, such as
// an empty message or an oversized attachment.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidation returns a ValidationError for the given field.
func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransportError wraps a network or provider failure that happened before or
// during a stream. StatusCode is zero when no HTTP response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransport wraps err as a TransportError for op.
func NewTransport(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// RateLimitError is returned when the API responds with HTTP 429 (Too Many Requests).
// It carries an optional RetryAfter duration parsed from the Retry-After header.
type RateLimitError struct {
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Body)
	}
	return fmt.Sprintf("rate limited: %s", e.Body)
}

// MalformedPartError describes a part whose type was recognised but whose
// shape was not.
type MalformedPartError struct {
	Type   string
	Reason string
}

func (e *MalformedPartError) Error() string {
	return fmt.Sprintf("malformed part %q: %s", e.Type, e.Reason)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransport reports whether err is or wraps a TransportError or a RateLimitError.
func IsTransport(err error) bool {
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var re *RateLimitError
	return errors.As(err, &re)
}

// Message returns the text a user should see for err. Transport errors are
// reduced to their cause so the UI does not show the internal operation name.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var te *TransportError
	if errors.As(err, &te) && te.Err != nil {
		return te.Err.Error()
	}

	return err.Error()
}
