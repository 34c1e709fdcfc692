// Package errors provides the structured error taxonomy shared by the CLI,
// the protocol client, the OAuth subsystem, and the daemon. Every top-level
// outcome resolves to exactly one of these codes.
package errors

import (
	goerrors "errors"
	"fmt"
)

// Error codes
const (
	// CodeTimeout is returned when an outbound call exceeds its deadline
	CodeTimeout = "TIMEOUT"

	// CodeTransport is returned on connection, DNS, or TLS failures
	CodeTransport = "TRANSPORT"

	// CodeParseError is returned when a response does not match the expected JSON-RPC shape
	CodeParseError = "PARSE_ERROR"

	// CodeMCPError is returned when the server replied with a JSON-RPC error object
	CodeMCPError = "MCP_ERROR"

	// CodeNotFound is returned when a referenced server name is not configured
	CodeNotFound = "NOT_FOUND"

	// CodeUnknownAction is returned when the daemon receives an unrecognized command
	CodeUnknownAction = "UNKNOWN_ACTION"

	// CodeInvalidArgs is returned when a daemon command is missing required fields
	CodeInvalidArgs = "INVALID_ARGS"

	// CodeInvalidJSON is returned when CLI tool arguments are not valid JSON
	CodeInvalidJSON = "INVALID_JSON"

	// CodeDaemonNotRunning is returned when the IPC layer could not reach the daemon
	CodeDaemonNotRunning = "DAEMON_NOT_RUNNING"

	// CodeDaemonError is returned when the IPC layer could not understand the daemon
	CodeDaemonError = "DAEMON_ERROR"

	// CodeOAuthDiscoveryFailed is returned when OAuth endpoint discovery fails
	CodeOAuthDiscoveryFailed = "OAUTH_DISCOVERY_FAILED"

	// CodeOAuthRegistrationFailed is returned when dynamic client registration fails
	CodeOAuthRegistrationFailed = "OAUTH_REGISTRATION_FAILED"

	// CodeOAuthCSRFMismatch is returned when the callback state does not match
	CodeOAuthCSRFMismatch = "OAUTH_CSRF_MISMATCH"

	// CodeOAuthTimeout is returned when the authorization callback never arrives
	CodeOAuthTimeout = "OAUTH_TIMEOUT"

	// CodeOAuthTokenExchangeFailed is returned when the token endpoint rejects the exchange
	CodeOAuthTokenExchangeFailed = "OAUTH_TOKEN_EXCHANGE_FAILED"

	// CodeInternal is returned for unexpected internal failures
	CodeInternal = "INTERNAL"
)

// Error represents a structured error in the application
type Error struct {
	// Code is the error code
	Code string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given code and message
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new error with the given code and a formatted message
func Newf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new error with the given code and message wrapping cause
func Wrap(cause error, code, message string) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the error code from err. Errors outside this taxonomy map
// to CodeInternal.
func CodeOf(err error) string {
	var e *Error
	if goerrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf extracts the human-readable message from err without the code
// prefix that Error() adds.
func MessageOf(err error) string {
	var e *Error
	if goerrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Is reports whether err carries the given code
func Is(err error, code string) bool {
	var e *Error
	return goerrors.As(err, &e) && e.Code == code
}
