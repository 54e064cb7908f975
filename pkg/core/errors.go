// Package core defines the canonical error taxonomy shared by every
// component that talks to the remote AI service.
//
// Remote failures are classified once, at the gateway boundary, into a
// closed set of kinds. Callers switch on Kind instead of inspecting
// error text.
package core

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes remote and local failures.
type ErrorKind string

const (
	ErrRateLimited      ErrorKind = "rate_limited"
	ErrContextTooLarge  ErrorKind = "context_too_large"
	ErrContentRefused   ErrorKind = "content_refused"
	ErrPermissionDenied ErrorKind = "permission_denied"
	ErrTransport        ErrorKind = "transport"
	ErrUnknown          ErrorKind = "unknown"
)

// Error is the canonical error produced at the gateway boundary.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`

	// RetryAfter is the server-suggested cooldown in seconds.
	// Only set for rate-limit errors.
	RetryAfter *int `json:"retry_after,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NewRateLimitError creates a rate-limit error with a suggested cooldown.
func NewRateLimitError(message string, retryAfter int) *Error {
	return &Error{Kind: ErrRateLimited, Message: message, RetryAfter: &retryAfter}
}

// NewContextTooLargeError creates a context-overflow error.
func NewContextTooLargeError(message string) *Error {
	return &Error{Kind: ErrContextTooLarge, Message: message}
}

// NewContentRefusedError creates a content-refusal error carrying the
// remote service's explanation verbatim.
func NewContentRefusedError(message string) *Error {
	return &Error{Kind: ErrContentRefused, Message: message}
}

// NewPermissionDeniedError creates a permission error (e.g. microphone).
func NewPermissionDeniedError(message string) *Error {
	return &Error{Kind: ErrPermissionDenied, Message: message}
}

// NewUnknownError wraps an unclassified failure.
func NewUnknownError(message string) *Error {
	return &Error{Kind: ErrUnknown, Message: message}
}

// KindOf extracts the canonical kind from any error. Errors that are not
// *Error (or TransportError) report ErrUnknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	var te *TransportError
	if errors.As(err, &te) {
		return ErrTransport
	}
	return ErrUnknown
}

// RetryAfterSeconds returns the cooldown attached to a rate-limit error,
// or fallback when the error carries none.
func RetryAfterSeconds(err error, fallback int) int {
	var ce *Error
	if errors.As(err, &ce) && ce.RetryAfter != nil && *ce.RetryAfter > 0 {
		return *ce.RetryAfter
	}
	return fallback
}

// TransportError represents connection-level failures (DNS, timeouts,
// connection reset, TLS handshake) while talking to the remote service.
//
// Use errors.As(err, &TransportError{}) to distinguish transport failures
// from canonical remote errors (*core.Error).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
