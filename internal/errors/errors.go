// Package errors provides the structured error type used across the
// pipeline. Every failure is classified into a Kind; the Kind decides
// whether a processor retries locally, rotates an API key, escalates to
// chunked parsing, or parks the object in Failed/.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline error.
type Kind string

const (
	// KindTransport covers network failures and non-2xx (non-429)
	// responses from the LLM or the accounting API.
	KindTransport Kind = "transport"

	// KindRateLimit is a 429 from the LLM; it forces immediate key
	// rotation but still counts toward the attempt budget.
	KindRateLimit Kind = "rate_limit"

	// KindTimeout is a per-call deadline exceeded; handled like transport.
	KindTimeout Kind = "timeout"

	// KindSchema means the LLM reply violated the column contract after
	// normalization, beyond the dropped-row threshold.
	KindSchema Kind = "schema"

	// KindExhausted means the attempt budget was used up.
	KindExhausted Kind = "exhausted"

	// KindDuplicate is the accounting API's duplicate-invoice signal.
	KindDuplicate Kind = "duplicate"

	KindNotFound     Kind = "not_found"
	KindAccessDenied Kind = "access_denied"
	KindValidation   Kind = "validation"

	// KindConfiguration is a missing key pool or dimension snapshot;
	// processors fail fast at cold start on these.
	KindConfiguration Kind = "configuration"

	KindInternal Kind = "internal"
)

// Error is a structured pipeline error.
type Error struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Cause   error          `json:"-"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithContext attaches a key/value pair for diagnostics.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Retryable reports whether a processor should retry locally. Rate-limit
// errors are retryable but additionally force key rotation.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport, KindRateLimit, KindTimeout, KindSchema:
		return true
	}
	return false
}

// New creates an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with a kind and message.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors
// report KindInternal.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// IsRetryable reports whether err should be retried within the current
// invocation. Unclassified errors are not retried.
func IsRetryable(err error) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// As is a passthrough to the standard library so callers do not need a
// second errors import.
func As(err error, target any) bool { return errors.As(err, target) }

