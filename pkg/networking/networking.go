// Package networking provides utilities for creating outbound HTTP clients
// and validating endpoints.
package networking

import (
	"net"
	"net/http"
	"strings"
	"time"
)

// HttpsScheme is the scheme used for secure connections
const HttpsScheme = "https"

// DefaultTimeout is the fixed per-call timeout for all outbound HTTP operations
const DefaultTimeout = 30 * time.Second

// HTTPClient is the interface mcpx components depend on instead of a concrete
// *http.Client, so tests can substitute their own transport.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewHTTPClient creates an HTTP client with the given total timeout and
// conservative transport-level timeouts.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
		},
	}
}

// NewPersistentHTTPClient creates an HTTP client that maintains a single
// persistent connection per host. The daemon uses one of these per server for
// session affinity with Streamable HTTP servers.
func NewPersistentHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          1,
		MaxIdleConnsPerHost:   1,
		MaxConnsPerHost:       1,
		IdleConnTimeout:       0, // Never time out idle connections
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// IsLocalhost checks if the given host (optionally with port) refers to the
// local machine.
func IsLocalhost(host string) bool {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(host)
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
