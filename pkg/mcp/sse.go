package mcp

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"

	"github.com/stacklok/mcpx/pkg/errors"
)

// extractPayload pulls the JSON-RPC response document out of an HTTP response
// body. Servers answer either with a plain JSON body or with an SSE stream
// whose first non-empty data line carries the response.
func extractPayload(body []byte, contentType string) (json.RawMessage, error) {
	if strings.Contains(contentType, "text/event-stream") {
		if payload, ok := firstDataLine(body); ok {
			return payload, nil
		}
		// Some servers label a plain JSON body as an event stream.
		if json.Valid(bytes.TrimSpace(body)) {
			return json.RawMessage(bytes.TrimSpace(body)), nil
		}
		return nil, errors.New(errors.CodeParseError, "no JSON payload found in event stream")
	}

	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, errors.New(errors.CodeParseError, "response body is not valid JSON")
	}
	return json.RawMessage(trimmed), nil
}

// firstDataLine scans SSE lines for the first data field whose payload parses
// as JSON.
func firstDataLine(body []byte) (json.RawMessage, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		if json.Valid([]byte(payload)) {
			return json.RawMessage(payload), true
		}
	}
	return nil, false
}
