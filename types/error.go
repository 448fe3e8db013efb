package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the relay.
type ErrorCode string

// Request error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrPayloadTooBig  ErrorCode = "PAYLOAD_TOO_LARGE"
)

// Upstream and transport error codes
const (
	ErrTransport           ErrorCode = "TRANSPORT_ERROR"
	ErrUpstreamError       ErrorCode = "UPSTREAM_ERROR"
	ErrUpstreamTimeout     ErrorCode = "UPSTREAM_TIMEOUT"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrInternalError       ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable  ErrorCode = "SERVICE_UNAVAILABLE"
)

// Session error codes
const (
	ErrProtocol     ErrorCode = "PROTOCOL_ERROR"
	ErrDisconnected ErrorCode = "DISCONNECTED"
	ErrTranscribe   ErrorCode = "TRANSCRIPTION_FAILED"
	ErrSynthesize   ErrorCode = "SYNTHESIS_FAILED"
	ErrNoReply      ErrorCode = "NO_REPLY"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// TransportError wraps a network failure towards an upstream engine or the client.
func TransportError(provider string, cause error) *Error {
	return NewError(ErrTransport, provider+" request failed").
		WithCause(cause).
		WithProvider(provider).
		WithRetryable(true)
}

// UpstreamError reports a non-success status returned by an upstream engine.
func UpstreamError(provider string, status int, body string) *Error {
	msg := fmt.Sprintf("%s returned status %d", provider, status)
	if body != "" {
		msg += ": " + body
	}
	return NewError(ErrUpstreamError, msg).
		WithHTTPStatus(status).
		WithProvider(provider).
		WithRetryable(status >= 500)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether any error in err's chain carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}
