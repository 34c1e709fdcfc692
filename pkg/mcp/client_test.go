package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/stacklok/mcpx/pkg/config"
	"github.com/stacklok/mcpx/pkg/errors"
)

func testClient() *Client {
	return NewClientWithHTTP(&http.Client{})
}

func TestCallToolSuccess(t *testing.T) {
	t.Parallel()

	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = json.Marshal(decodeBody(t, r))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","result":{"x":1}}`))
	}))
	defer server.Close()

	cfg := &config.ServerConfig{URL: server.URL}
	result, err := testClient().CallTool(context.Background(), cfg, "echo", map[string]any{"x": 1}, "", "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, string(result))

	assert.Equal(t, "tools/call", gjson.GetBytes(gotBody, "method").String())
	assert.Equal(t, "echo", gjson.GetBytes(gotBody, "params.name").String())
	assert.Equal(t, "2.0", gjson.GetBytes(gotBody, "jsonrpc").String())
	assert.NotEmpty(t, gjson.GetBytes(gotBody, "id").String())
}

func TestCallToolMCPError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","error":{"message":"bad args"}}`))
	}))
	defer server.Close()

	cfg := &config.ServerConfig{URL: server.URL}
	_, err := testClient().CallTool(context.Background(), cfg, "echo", nil, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeMCPError))
	assert.Equal(t, "bad args", errors.MessageOf(err))
}

func TestCallToolMCPErrorDefaultMessage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1","error":{}}`))
	}))
	defer server.Close()

	cfg := &config.ServerConfig{URL: server.URL}
	_, err := testClient().CallTool(context.Background(), cfg, "echo", nil, "", "")
	require.Error(t, err)
	assert.Equal(t, "Unknown error", errors.MessageOf(err))
}

func TestCallToolNeitherResultNorError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"1"}`))
	}))
	defer server.Close()

	cfg := &config.ServerConfig{URL: server.URL}
	_, err := testClient().CallTool(context.Background(), cfg, "echo", nil, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeParseError))
}

func TestCallToolTransportError(t *testing.T) {
	t.Parallel()

	cfg := &config.ServerConfig{URL: "http://127.0.0.1:1/mcp"}
	_, err := testClient().CallTool(context.Background(), cfg, "echo", nil, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeTransport))
}

func TestRequestHeaders(t *testing.T) {
	t.Parallel()

	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{}}`))
	}))
	defer server.Close()

	cfg := &config.ServerConfig{
		URL: server.URL,
		Headers: map[string]string{
			"X-Team":        "platform",
			"Authorization": "Bearer static",
		},
	}
	_, _, err := testClient().Request(context.Background(), cfg, "tools/list", nil, "sess-1", "fresh-token")
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "application/json, text/event-stream", gotHeaders.Get("Accept"))
	assert.Equal(t, "platform", gotHeaders.Get("X-Team"))
	// The OAuth token wins over a static Authorization header.
	assert.Equal(t, "Bearer fresh-token", gotHeaders.Get("Authorization"))
	assert.Equal(t, "sess-1", gotHeaders.Get(SessionHeader))
}

func TestListTools(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"tools":[
			{"name":"echo","description":"echoes","inputSchema":{"type":"object"}},
			{"name":"sum","inputSchema":{"type":"object"}}
		]}}`))
	}))
	defer server.Close()

	cfg := &config.ServerConfig{URL: server.URL}
	tools, err := testClient().ListTools(context.Background(), cfg, "", "")
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "echoes", tools[0].Description)
	assert.Equal(t, "sum", tools[1].Name)

	summaries := SummarizeTools(tools)
	require.Len(t, summaries, 2)
	out, err := json.Marshal(summaries[0])
	require.NoError(t, err)
	assert.Contains(t, string(out), `"parameters"`)
	assert.NotContains(t, string(out), `"inputSchema"`)
}

func TestInitializeSessionReuse(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{}}`))
	}))
	defer server.Close()

	store := NewMemorySessionStore()
	require.NoError(t, store.SetSession("foo", "sess-known"))

	cfg := &config.ServerConfig{URL: server.URL}
	session, err := testClient().InitializeSession(context.Background(), "foo", cfg, store, "")
	require.NoError(t, err)
	assert.Equal(t, "sess-known", session)
	// A known session is reused without any network call.
	assert.Equal(t, int32(0), requests.Load())
}

func TestInitializeSessionBootstrap(t *testing.T) {
	t.Parallel()

	var methods []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		methods = append(methods, body["method"].(string))
		w.Header().Set(SessionHeader, "sess-new")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"protocolVersion":"2024-11-05"}}`))
	}))
	defer server.Close()

	store := NewMemorySessionStore()
	cfg := &config.ServerConfig{URL: server.URL}
	session, err := testClient().InitializeSession(context.Background(), "foo", cfg, store, "")
	require.NoError(t, err)
	assert.Equal(t, "sess-new", session)

	stored, ok := store.Session("foo")
	require.True(t, ok)
	assert.Equal(t, "sess-new", stored)

	require.Len(t, methods, 2)
	assert.Equal(t, "initialize", methods[0])
	assert.Equal(t, "notifications/initialized", methods[1])
}

func TestInitializeSessionNoHeader(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{}}`))
	}))
	defer server.Close()

	store := NewMemorySessionStore()
	cfg := &config.ServerConfig{URL: server.URL}
	session, err := testClient().InitializeSession(context.Background(), "foo", cfg, store, "")
	require.NoError(t, err)
	assert.Empty(t, session)

	_, ok := store.Session("foo")
	assert.False(t, ok)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}
