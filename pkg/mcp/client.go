// Package mcp implements the client side of the MCP JSON-RPC-over-HTTP
// protocol: envelope construction, session bootstrap, and demultiplexing of
// plain-JSON and SSE response bodies.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	goerrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/google/uuid"
	mcpspec "github.com/mark3labs/mcp-go/mcp"
	"github.com/tidwall/gjson"

	"github.com/stacklok/mcpx/pkg/config"
	"github.com/stacklok/mcpx/pkg/errors"
	"github.com/stacklok/mcpx/pkg/logger"
	"github.com/stacklok/mcpx/pkg/networking"
	"github.com/stacklok/mcpx/pkg/versions"
)

const (
	// ProtocolVersion is the MCP protocol revision this client speaks.
	ProtocolVersion = "2024-11-05"

	// ClientName identifies this client to servers and authorization servers.
	ClientName = "mcp-cli"

	// SessionHeader carries the server-issued session ID in both directions.
	SessionHeader = "Mcp-Session-Id"
)

// SessionStore persists session IDs across calls. The durable store satisfies
// this in direct mode; the daemon uses an in-memory map.
type SessionStore interface {
	Session(server string) (string, bool)
	SetSession(server, sessionID string) error
}

// MemorySessionStore is a non-durable SessionStore for daemon use.
type MemorySessionStore struct {
	sessions map[string]string
}

// NewMemorySessionStore returns an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]string)}
}

// Session returns the stored session ID for a server, if any.
func (m *MemorySessionStore) Session(server string) (string, bool) {
	id, ok := m.sessions[server]
	return id, ok && id != ""
}

// SetSession records a session ID for a server.
func (m *MemorySessionStore) SetSession(server, sessionID string) error {
	m.sessions[server] = sessionID
	return nil
}

// Client issues MCP requests to a single server over one HTTP client,
// reusing connections across calls.
type Client struct {
	httpClient networking.HTTPClient
}

// NewClient returns a client backed by a persistent HTTP client suitable for
// session-affine MCP servers.
func NewClient() *Client {
	return &Client{httpClient: networking.NewPersistentHTTPClient(networking.DefaultTimeout)}
}

// NewClientWithHTTP returns a client using the given HTTP client. Intended
// for tests.
func NewClientWithHTTP(httpClient networking.HTTPClient) *Client {
	return &Client{httpClient: httpClient}
}

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	ID      string `json:"id,omitempty"`
	Params  any    `json:"params,omitempty"`
}

// Request issues a single JSON-RPC method call and returns the parsed
// response document plus the session ID from the response header, if any.
func (c *Client) Request(
	ctx context.Context,
	cfg *config.ServerConfig,
	method string,
	params any,
	sessionID string,
	token string,
) (json.RawMessage, string, error) {
	return c.send(ctx, cfg, rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
		ID:      uuid.NewString(),
		Params:  params,
	}, sessionID, token)
}

// Notify issues a JSON-RPC notification (no id, no response expected beyond
// the HTTP status).
func (c *Client) Notify(
	ctx context.Context,
	cfg *config.ServerConfig,
	method string,
	sessionID string,
	token string,
) error {
	_, _, err := c.send(ctx, cfg, rpcRequest{
		JSONRPC: "2.0",
		Method:  method,
	}, sessionID, token)
	return err
}

func (c *Client) send(
	ctx context.Context,
	cfg *config.ServerConfig,
	envelope rpcRequest,
	sessionID string,
	token string,
) (json.RawMessage, string, error) {
	body, err := json.Marshal(envelope)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.CodeInternal, "failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, "", errors.Wrap(err, errors.CodeTransport, "failed to build request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		return nil, "", transportError(err)
	}

	newSession := resp.Header.Get(SessionHeader)

	if envelope.ID == "" {
		// Notification; the body, if any, is not a response to us.
		return nil, newSession, nil
	}

	payload, err := extractPayload(respBody, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, newSession, err
	}
	return payload, newSession, nil
}

// transportError classifies an outbound HTTP failure as a timeout or a
// generic transport error.
func transportError(err error) error {
	var nerr net.Error
	if goerrors.As(err, &nerr) && nerr.Timeout() {
		return errors.Wrap(err, errors.CodeTimeout, "request timed out after 30s")
	}
	if goerrors.Is(err, context.DeadlineExceeded) {
		return errors.Wrap(err, errors.CodeTimeout, "request timed out after 30s")
	}
	return errors.Wrap(err, errors.CodeTransport, fmt.Sprintf("request failed: %v", err))
}

// InitializeSession ensures a session exists for the server, reusing a stored
// session without a network call when one is known. A server that issues no
// session header yields an empty session; session-less calls still proceed.
func (c *Client) InitializeSession(
	ctx context.Context,
	name string,
	cfg *config.ServerConfig,
	store SessionStore,
	token string,
) (string, error) {
	if id, ok := store.Session(name); ok {
		return id, nil
	}

	params := map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    ClientName,
			"version": versions.GetVersionInfo().Version,
		},
	}

	payload, newSession, err := c.Request(ctx, cfg, "initialize", params, "", token)
	if err != nil {
		return "", err
	}
	if errMsg := gjson.GetBytes(payload, "error"); errMsg.Exists() {
		return "", errors.New(errors.CodeMCPError, mcpErrorMessage(payload))
	}
	if newSession == "" {
		logger.Debugf("server %s issued no session header", name)
		return "", nil
	}

	if err := store.SetSession(name, newSession); err != nil {
		logger.Warnf("failed to persist session for %s: %v", name, err)
	}

	// Per-protocol handshake completion; failures are not fatal to the session.
	if err := c.Notify(ctx, cfg, "notifications/initialized", newSession, token); err != nil {
		logger.Debugf("initialized notification to %s failed: %v", name, err)
	}

	return newSession, nil
}

// unwrapResult validates a JSON-RPC response document and returns its result
// field.
func unwrapResult(payload json.RawMessage) (json.RawMessage, error) {
	if gjson.GetBytes(payload, "error").Exists() {
		return nil, errors.New(errors.CodeMCPError, mcpErrorMessage(payload))
	}
	result := gjson.GetBytes(payload, "result")
	if !result.Exists() {
		return nil, errors.New(errors.CodeParseError, "response has neither result nor error")
	}
	return json.RawMessage(result.Raw), nil
}

func mcpErrorMessage(payload json.RawMessage) string {
	if msg := gjson.GetBytes(payload, "error.message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	return "Unknown error"
}

// ToolSummary is the flattened tool shape surfaced to callers: the tool's
// input schema is presented under "parameters".
type ToolSummary struct {
	Name        string                  `json:"name"`
	Description string                  `json:"description"`
	Parameters  mcpspec.ToolInputSchema `json:"parameters"`
}

// SummarizeTools flattens a tool list into the surfaced shape.
func SummarizeTools(tools []mcpspec.Tool) []ToolSummary {
	summaries := make([]ToolSummary, 0, len(tools))
	for _, t := range tools {
		summaries = append(summaries, ToolSummary{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.InputSchema,
		})
	}
	return summaries
}

// ListTools fetches the server's tool list.
func (c *Client) ListTools(
	ctx context.Context,
	cfg *config.ServerConfig,
	sessionID string,
	token string,
) ([]mcpspec.Tool, error) {
	payload, _, err := c.Request(ctx, cfg, "tools/list", nil, sessionID, token)
	if err != nil {
		return nil, err
	}
	result, err := unwrapResult(payload)
	if err != nil {
		return nil, err
	}
	var listed struct {
		Tools []mcpspec.Tool `json:"tools"`
	}
	if err := json.Unmarshal(result, &listed); err != nil {
		return nil, errors.Wrap(err, errors.CodeParseError, "malformed tools/list result")
	}
	return listed.Tools, nil
}

// CallTool invokes a tool and returns the unwrapped result document.
func (c *Client) CallTool(
	ctx context.Context,
	cfg *config.ServerConfig,
	tool string,
	arguments map[string]any,
	sessionID string,
	token string,
) (json.RawMessage, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	params := map[string]any{
		"name":      tool,
		"arguments": arguments,
	}
	payload, _, err := c.Request(ctx, cfg, "tools/call", params, sessionID, token)
	if err != nil {
		return nil, err
	}
	return unwrapResult(payload)
}
