package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcpx/pkg/errors"
)

func TestDiscoverEndpoints(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/oauth-protected-resource/mcp", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"resource":"%s/mcp","authorization_servers":["%s"],"scopes_supported":["read"]}`,
			server.URL, server.URL)
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"issuer":"%s","authorization_endpoint":"%s/authorize","token_endpoint":"%s/token",
			"registration_endpoint":"%s/register","scopes_supported":["read","write"]}`,
			server.URL, server.URL, server.URL, server.URL)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	endpoints, err := DiscoverEndpoints(context.Background(), server.URL+"/mcp")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/authorize", endpoints.AuthURL)
	assert.Equal(t, server.URL+"/token", endpoints.TokenURL)
	assert.Equal(t, server.URL+"/register", endpoints.RegistrationURL)
	assert.Equal(t, []string{"read", "write"}, endpoints.ScopesSupported)
}

func TestDiscoverEndpointsTenantedIssuer(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	mux := http.NewServeMux()
	// The authorization server lives under a tenant path; its metadata is
	// published only at the issuer-path-suffixed location.
	mux.HandleFunc("/.well-known/oauth-protected-resource/mcp", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"resource":"%s/mcp","authorization_servers":["%s/tenant1"]}`,
			server.URL, server.URL)
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server/tenant1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"issuer":"%s/tenant1","authorization_endpoint":"%s/tenant1/authorize","token_endpoint":"%s/tenant1/token"}`,
			server.URL, server.URL, server.URL)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	endpoints, err := DiscoverEndpoints(context.Background(), server.URL+"/mcp")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/tenant1/authorize", endpoints.AuthURL)
	assert.Equal(t, server.URL+"/tenant1/token", endpoints.TokenURL)
}

func TestDiscoverEndpointsBareResourcePath(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	mux := http.NewServeMux()
	// Only the bare location exists; the path-suffixed probe must fall
	// through to it.
	mux.HandleFunc("/.well-known/oauth-protected-resource", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"resource":"%s/mcp","authorization_servers":["%s"]}`, server.URL, server.URL)
	})
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"issuer":"%s","authorization_endpoint":"%s/authorize","token_endpoint":"%s/token"}`,
			server.URL, server.URL, server.URL)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	endpoints, err := DiscoverEndpoints(context.Background(), server.URL+"/mcp")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/authorize", endpoints.AuthURL)
	assert.Empty(t, endpoints.RegistrationURL)
}

func TestDiscoverEndpointsChallengeFallback(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/metadata", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"resource":"%s/mcp","authorization_servers":["%s"]}`, server.URL, server.URL)
	})
	mux.HandleFunc("/.well-known/oauth-authorization-server", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"issuer":"%s","authorization_endpoint":"%s/authorize","token_endpoint":"%s/token"}`,
			server.URL, server.URL, server.URL)
	})
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("WWW-Authenticate",
			fmt.Sprintf(`Bearer realm="mcp", resource_metadata="%s/metadata"`, server.URL))
		w.WriteHeader(http.StatusUnauthorized)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	endpoints, err := DiscoverEndpoints(context.Background(), server.URL+"/mcp")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/token", endpoints.TokenURL)
}

func TestDiscoverEndpointsNoMetadata(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	_, err := DiscoverEndpoints(context.Background(), server.URL+"/mcp")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeOAuthDiscoveryFailed))
}

func TestDiscoverEndpointsNoAuthServers(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("WWW-Authenticate",
			fmt.Sprintf(`Bearer resource_metadata="%s/metadata"`, server.URL))
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/metadata", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `{"resource":"%s/mcp","authorization_servers":[]}`, server.URL)
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	_, err := DiscoverEndpoints(context.Background(), server.URL+"/mcp")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeOAuthDiscoveryFailed))
}

func TestExtractParameter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header string
		param  string
		want   string
	}{
		{
			name:   "quoted value",
			header: `Bearer realm="mcp", resource_metadata="https://x/meta"`,
			param:  "resource_metadata",
			want:   "https://x/meta",
		},
		{
			name:   "unquoted value",
			header: `Bearer realm=mcp, error=invalid_token`,
			param:  "error",
			want:   "invalid_token",
		},
		{
			name:   "escaped quote",
			header: `Bearer realm="a \"b\" c"`,
			param:  "realm",
			want:   `a "b" c`,
		},
		{
			name:   "missing parameter",
			header: `Bearer realm="mcp"`,
			param:  "resource_metadata",
			want:   "",
		},
		{
			name:   "unterminated quote",
			header: `Bearer realm="mcp`,
			param:  "realm",
			want:   "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExtractParameter(tt.header, tt.param))
		})
	}
}
