package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/stacklok/mcpx/pkg/daemon"
	"github.com/stacklok/mcpx/pkg/errors"
)

// envelope is the single JSON document every command prints: success with
// data, or an error with a code and message. The exit status mirrors it.
type envelope struct {
	OK    bool           `json:"ok"`
	Data  any            `json:"data,omitempty"`
	Error *envelopeError `json:"error,omitempty"`
}

type envelopeError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func printEnvelope(env envelope) {
	out, err := json.Marshal(env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode output: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

// emit prints a success envelope and exits 0.
func emit(data any) {
	printEnvelope(envelope{OK: true, Data: data})
	os.Exit(0)
}

// fail prints an error envelope and exits 1.
func fail(err error) {
	printEnvelope(envelope{OK: false, Error: &envelopeError{
		Code:    errors.CodeOf(err),
		Message: errors.MessageOf(err),
	}})
	os.Exit(1)
}

// emitResponse relays a daemon response as the command's own envelope.
func emitResponse(resp daemon.Response) {
	env := envelope{OK: resp.OK, Data: resp.Data}
	if resp.Error != nil {
		env.Error = &envelopeError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	printEnvelope(env)
	if resp.OK {
		os.Exit(0)
	}
	os.Exit(1)
}
