package api

import (
	"errors"
	"fmt"
)

// Kind is the category of an engine error.
type Kind string

const (
	// KindNotConfigured means no API key is set.
	KindNotConfigured Kind = "not_configured"

	// KindAlreadyProcessing means a message was sent while an exchange
	// was still active.
	KindAlreadyProcessing Kind = "already_processing"

	// KindTransport is a network or connection failure reported by the
	// transport.
	KindTransport Kind = "transport_error"

	// KindAPI is a structured error returned by the remote service.
	KindAPI Kind = "api_error"

	// KindNoResponse is an exchange that produced neither content nor
	// tool calls. The engine degrades it to a silent return to idle.
	KindNoResponse Kind = "no_response"

	// KindToolFault is a tool that failed unexpectedly. It is converted
	// into a failed tool result and never leaves the sequencer.
	KindToolFault Kind = "tool_execution_fault"
)

// Error is a structured engine error.
type Error struct {
	Kind    Kind
	Message string

	// Status is the HTTP status code for API errors, or zero.
	Status int

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case KindTransport:
		return "network error: " + e.Message
	case KindAPI:
		return "API error: " + e.Message
	default:
		return e.Message
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind, so errors.Is(err, ErrNotConfigured)
// holds for any NotConfigured error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinel errors returned synchronously by the engine.
var (
	ErrNotConfigured     = &Error{Kind: KindNotConfigured, Message: "api key not set, configure an api key first"}
	ErrAlreadyProcessing = &Error{Kind: KindAlreadyProcessing, Message: "already processing a request, please wait"}
)

// NewTransportError creates an Error for a connection-level failure.
func NewTransportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: err.Error(), Err: err}
}

// NewAPIError creates an Error for a structured error from the backend.
func NewAPIError(status int, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("unexpected backend response (HTTP %d)", status)
	}
	return &Error{Kind: KindAPI, Status: status, Message: message}
}

// NewToolFault creates an Error for an unexpected tool failure.
func NewToolFault(cause any) *Error {
	return &Error{Kind: KindToolFault, Message: fmt.Sprintf("tool execution error: %v", cause)}
}

// KindOf returns the Kind of err, or the empty string if err is not an
// *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
