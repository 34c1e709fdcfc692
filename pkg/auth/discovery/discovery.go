// Package discovery locates OAuth endpoints for an MCP server using RFC 9728
// protected-resource metadata and RFC 8414 / OIDC authorization-server
// metadata, with a WWW-Authenticate fallback for servers that only advertise
// metadata on a 401.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/stacklok/mcpx/pkg/errors"
	"github.com/stacklok/mcpx/pkg/logger"
	"github.com/stacklok/mcpx/pkg/networking"
)

// ResourceMetadata is the RFC 9728 protected-resource metadata document.
type ResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported,omitempty"`
}

// AuthServerMetadata is the RFC 8414 (or OIDC) authorization-server metadata
// document, reduced to the fields the flow consumes.
type AuthServerMetadata struct {
	Issuer                string   `json:"issuer"`
	AuthorizationEndpoint string   `json:"authorization_endpoint"`
	TokenEndpoint         string   `json:"token_endpoint"`
	RegistrationEndpoint  string   `json:"registration_endpoint,omitempty"`
	ScopesSupported       []string `json:"scopes_supported,omitempty"`
}

// Endpoints is the outcome of a successful discovery run.
type Endpoints struct {
	AuthURL         string
	TokenURL        string
	RegistrationURL string
	ScopesSupported []string
}

// DiscoverEndpoints resolves the OAuth endpoints for an MCP server URL. It
// fails with OAUTH_DISCOVERY_FAILED when no resource metadata can be located,
// no authorization server is listed, or the issuer publishes no usable
// metadata.
func DiscoverEndpoints(ctx context.Context, serverURL string) (*Endpoints, error) {
	httpClient := networking.NewHTTPClient(networking.DefaultTimeout)

	resource, err := discoverResourceMetadata(ctx, httpClient, serverURL)
	if err != nil {
		return nil, err
	}
	if len(resource.AuthorizationServers) == 0 {
		return nil, errors.New(errors.CodeOAuthDiscoveryFailed,
			"resource metadata lists no authorization servers")
	}
	issuer := resource.AuthorizationServers[0]
	logger.Debugf("discovered authorization server %s for %s", issuer, serverURL)

	as, err := discoverAuthServer(ctx, httpClient, issuer)
	if err != nil {
		return nil, err
	}

	return &Endpoints{
		AuthURL:         as.AuthorizationEndpoint,
		TokenURL:        as.TokenEndpoint,
		RegistrationURL: as.RegistrationEndpoint,
		ScopesSupported: unionScopes(resource.ScopesSupported, as.ScopesSupported),
	}, nil
}

// discoverResourceMetadata probes the well-known protected-resource locations
// and falls back to parsing a 401 WWW-Authenticate header.
func discoverResourceMetadata(
	ctx context.Context,
	httpClient networking.HTTPClient,
	serverURL string,
) (*ResourceMetadata, error) {
	for _, candidate := range wellKnownURLs(serverURL, "oauth-protected-resource") {
		var meta ResourceMetadata
		if fetchJSON(ctx, httpClient, candidate, &meta) == nil && len(meta.AuthorizationServers) > 0 {
			return &meta, nil
		}
	}

	metadataURL, err := resourceMetadataFromChallenge(ctx, httpClient, serverURL)
	if err != nil {
		return nil, err
	}
	var meta ResourceMetadata
	if err := fetchJSON(ctx, httpClient, metadataURL, &meta); err != nil {
		return nil, errors.Wrap(err, errors.CodeOAuthDiscoveryFailed,
			fmt.Sprintf("failed to fetch resource metadata from %s", metadataURL))
	}
	return &meta, nil
}

// resourceMetadataFromChallenge issues a bare initialize POST expecting a 401
// whose WWW-Authenticate header names the resource metadata URL.
func resourceMetadataFromChallenge(
	ctx context.Context,
	httpClient networking.HTTPClient,
	serverURL string,
) (string, error) {
	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, body)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeOAuthDiscoveryFailed, "failed to build probe request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.CodeOAuthDiscoveryFailed, "probe request failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusUnauthorized {
		return "", errors.New(errors.CodeOAuthDiscoveryFailed,
			fmt.Sprintf("no resource metadata found for %s (probe returned %d)", serverURL, resp.StatusCode))
	}
	challenge := resp.Header.Get("WWW-Authenticate")
	metadataURL := ExtractParameter(challenge, "resource_metadata")
	if metadataURL == "" {
		return "", errors.New(errors.CodeOAuthDiscoveryFailed,
			"401 challenge carries no resource_metadata parameter")
	}
	return metadataURL, nil
}

// discoverAuthServer probes the issuer's metadata locations in order:
// oauth-authorization-server with the issuer's own path, without it, then
// the origin-level OIDC configuration document. A tenanted issuer like
// https://as.example/tenant1 publishes its RFC 8414 document at
// /.well-known/oauth-authorization-server/tenant1.
func discoverAuthServer(
	ctx context.Context,
	httpClient networking.HTTPClient,
	issuer string,
) (*AuthServerMetadata, error) {
	candidates := wellKnownURLs(issuer, "oauth-authorization-server")
	if origin := originOf(issuer); origin != "" {
		candidates = append(candidates, origin+"/.well-known/openid-configuration")
	}

	for _, candidate := range candidates {
		var meta AuthServerMetadata
		if fetchJSON(ctx, httpClient, candidate, &meta) == nil &&
			meta.AuthorizationEndpoint != "" && meta.TokenEndpoint != "" {
			logger.Debugf("using authorization server metadata from %s", candidate)
			return &meta, nil
		}
	}
	return nil, errors.New(errors.CodeOAuthDiscoveryFailed,
		fmt.Sprintf("no authorization server metadata found for issuer %s", issuer))
}

// wellKnownURLs builds the well-known locations for rawURL's origin, first
// suffixed with rawURL's own path, then bare.
func wellKnownURLs(rawURL, doc string) []string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil
	}
	origin := parsed.Scheme + "://" + parsed.Host
	bare := origin + "/.well-known/" + doc

	suffix := strings.TrimSuffix(parsed.Path, "/")
	if suffix == "" || suffix == "/" {
		return []string{bare}
	}
	return []string{bare + suffix, bare}
}

func originOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

func fetchJSON(ctx context.Context, httpClient networking.HTTPClient, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1024*1024)).Decode(out)
}

func unionScopes(lists ...[]string) []string {
	seen := make(map[string]bool)
	var union []string
	for _, list := range lists {
		for _, s := range list {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			union = append(union, s)
		}
	}
	return union
}

// ExtractParameter pulls a parameter value out of an authentication
// challenge, handling both quoted and unquoted forms.
func ExtractParameter(params, name string) string {
	idx := strings.Index(params, name+"=")
	if idx == -1 {
		return ""
	}
	remainder := params[idx+len(name)+1:]
	if remainder == "" {
		return ""
	}

	if strings.HasPrefix(remainder, `"`) {
		for end := 1; end < len(remainder); end++ {
			if remainder[end] == '"' && remainder[end-1] != '\\' {
				return strings.ReplaceAll(remainder[1:end], `\"`, `"`)
			}
		}
		return ""
	}

	end := strings.IndexAny(remainder, ", ")
	if end == -1 {
		end = len(remainder)
	}
	return strings.TrimSpace(remainder[:end])
}
