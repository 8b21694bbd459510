// Package domain provides canonical error types for the filter.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of an error crossing a context boundary.
type ErrorType string

const (
	// ErrorTypeProtocolDecode indicates a malformed wire message.
	ErrorTypeProtocolDecode ErrorType = "protocol_decode"

	// ErrorTypeCapabilityUnavailable indicates the model cannot be used at all.
	ErrorTypeCapabilityUnavailable ErrorType = "capability_unavailable"

	// ErrorTypeSessionCreateFailed indicates the host refused to create a session.
	ErrorTypeSessionCreateFailed ErrorType = "session_create_failed"

	// ErrorTypeNotInitialized indicates no base session exists yet.
	ErrorTypeNotInitialized ErrorType = "not_initialized"

	// ErrorTypeStorage indicates a backing store read or write failed.
	ErrorTypeStorage ErrorType = "storage"

	// ErrorTypeStorageCorruption indicates a stored structure could not be decoded.
	ErrorTypeStorageCorruption ErrorType = "storage_corruption"

	// ErrorTypeTimeout indicates a host call exceeded its bound.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeUnexpectedResponse indicates a well-formed response of the wrong variant.
	ErrorTypeUnexpectedResponse ErrorType = "unexpected_response"

	// ErrorTypeTransport indicates the cross-context send itself failed.
	ErrorTypeTransport ErrorType = "transport"

	// ErrorTypeRemote indicates the peer answered with an ErrorMessage.
	ErrorTypeRemote ErrorType = "remote"

	// ErrorTypeInvalidRequest indicates a request the handler cannot serve.
	ErrorTypeInvalidRequest ErrorType = "invalid_request"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeTextModelUnavailable    ErrorCode = "text_model_unavailable"
	ErrorCodeTextSessionCreateFailed ErrorCode = "text_session_create_failed"
	ErrorCodeNoResponse              ErrorCode = "no_response"
	ErrorCodeContextInvalidated      ErrorCode = "context_invalidated"
	ErrorCodeDroppedByClear          ErrorCode = "dropped_by_clear"
	ErrorCodeAlreadyExists           ErrorCode = "already_exists"
	ErrorCodeNoCriteria              ErrorCode = "no_criteria"
)

// Error is the canonical error of the filter. Handlers return it, the router
// server turns it into an ErrorMessage, and clients rebuild it from one.
type Error struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Code is an optional specific error code
	Code ErrorCode `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Field names the offending wire field for decode errors
	Field string `json:"field,omitempty"`

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap exposes the wrapped cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches on Type and Code so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Type != e.Type {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// HTTPStatusCode returns the status code used by the HTTP binding.
func (e *Error) HTTPStatusCode() int {
	switch e.Type {
	case ErrorTypeProtocolDecode, ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case ErrorTypeCapabilityUnavailable, ErrorTypeNotInitialized:
		return http.StatusServiceUnavailable
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	case ErrorTypeTransport, ErrorTypeRemote, ErrorTypeUnexpectedResponse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new error.
func NewError(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *Error) WithCode(code ErrorCode) *Error {
	e.Code = code
	return e
}

// WithField records the wire field that caused the error.
func (e *Error) WithField(field string) *Error {
	e.Field = field
	return e
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// Sentinels for errors.Is.
var (
	ErrNotInitialized          = NewError(ErrorTypeNotInitialized, "session not initialized")
	ErrTextModelUnavailable    = NewError(ErrorTypeCapabilityUnavailable, "text model unavailable").WithCode(ErrorCodeTextModelUnavailable)
	ErrTextSessionCreateFailed = NewError(ErrorTypeSessionCreateFailed, "text session creation failed").WithCode(ErrorCodeTextSessionCreateFailed)
	ErrDroppedByClear          = NewError(ErrorTypeInvalidRequest, "dropped by queue clear").WithCode(ErrorCodeDroppedByClear)
	ErrContextInvalidated      = NewError(ErrorTypeTransport, "extension context invalidated").WithCode(ErrorCodeContextInvalidated)
	ErrAlreadyExists           = NewError(ErrorTypeInvalidRequest, "document already exists").WithCode(ErrorCodeAlreadyExists)
	ErrNoCriteria              = NewError(ErrorTypeNotInitialized, "no filter criteria configured").WithCode(ErrorCodeNoCriteria)
)

// Convenience constructors for common errors

// ErrDecode creates a protocol decode error for a wire field.
func ErrDecode(field, message string) *Error {
	return NewError(ErrorTypeProtocolDecode, message).WithField(field)
}

// ErrStorage creates a storage error.
func ErrStorage(message string, cause error) *Error {
	return NewError(ErrorTypeStorage, message).WithCause(cause)
}

// ErrCorruption creates a storage corruption error.
func ErrCorruption(message string, cause error) *Error {
	return NewError(ErrorTypeStorageCorruption, message).WithCause(cause)
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *Error {
	return NewError(ErrorTypeTimeout, message)
}

// ErrUnexpectedResponse creates an unexpected response type error.
func ErrUnexpectedResponse(want, got MessageType) *Error {
	return NewError(ErrorTypeUnexpectedResponse,
		fmt.Sprintf("expected %s, got %s", want, got))
}

// ErrRemote creates an error from a peer's ErrorMessage text.
func ErrRemote(message string) *Error {
	return NewError(ErrorTypeRemote, message)
}

// ErrTransport creates a transport error.
func ErrTransport(message string, cause error) *Error {
	return NewError(ErrorTypeTransport, message).WithCause(cause)
}

// AsError converts any error to a *Error. Errors that are already
// canonical pass through; others become invalid_request wrappers.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(ErrorTypeInvalidRequest, err.Error()).WithCause(err)
}
