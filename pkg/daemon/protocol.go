// Package daemon implements the persistent mcpx background process: a unix
// socket command loop holding warm HTTP connections, sessions, tokens, and a
// tools cache per configured server, plus the client stub the CLI uses to
// reach it.
package daemon

import (
	"github.com/stacklok/mcpx/pkg/errors"
)

// Command is the request document sent over the socket.
type Command struct {
	Action    string         `json:"action"`
	Server    string         `json:"server,omitempty"`
	Tool      string         `json:"tool,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ErrorBody carries a structured error in a response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the reply document, exactly one per connection.
type Response struct {
	OK    bool       `json:"ok"`
	Data  any        `json:"data,omitempty"`
	Error *ErrorBody `json:"error,omitempty"`
}

// OKResponse wraps data in a success response.
func OKResponse(data any) Response {
	return Response{OK: true, Data: data}
}

// ErrResponse builds an error response from a code and message.
func ErrResponse(code, message string) Response {
	return Response{OK: false, Error: &ErrorBody{Code: code, Message: message}}
}

// ErrResponseFrom builds an error response from a structured error value.
func ErrResponseFrom(err error) Response {
	return ErrResponse(errors.CodeOf(err), errors.MessageOf(err))
}
