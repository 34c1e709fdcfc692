package oauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcpx/pkg/errors"
)

func testFlowConfig() *Config {
	return &Config{
		ClientID: "client-1",
		AuthURL:  "https://as.example/authorize",
		TokenURL: "https://as.example/token",
		Scope:    "read write",
		Resource: "https://x/mcp",
	}
}

func TestChallengeS256Deterministic(t *testing.T) {
	t.Parallel()

	verifier := "some-fixed-verifier-value-for-testing"
	hash := sha256.Sum256([]byte(verifier))
	want := base64.RawURLEncoding.EncodeToString(hash[:])

	assert.Equal(t, want, ChallengeS256(verifier))
	// Re-deriving from the same verifier matches.
	assert.Equal(t, ChallengeS256(verifier), ChallengeS256(verifier))
}

func TestNewFlowGeneratesFreshSecrets(t *testing.T) {
	t.Parallel()

	f1, err := NewFlow(testFlowConfig())
	require.NoError(t, err)
	f2, err := NewFlow(testFlowConfig())
	require.NoError(t, err)

	// 32 bytes of entropy encode to 43 URL-safe characters.
	assert.Len(t, f1.codeVerifier, 43)
	assert.NotEqual(t, f1.codeVerifier, f2.codeVerifier)
	assert.NotEqual(t, f1.state, f2.state)
	assert.Equal(t, ChallengeS256(f1.codeVerifier), f1.codeChallenge)
}

func TestNewFlowValidation(t *testing.T) {
	t.Parallel()

	_, err := NewFlow(nil)
	require.Error(t, err)

	cfg := testFlowConfig()
	cfg.ClientID = ""
	_, err = NewFlow(cfg)
	require.Error(t, err)

	cfg = testFlowConfig()
	cfg.TokenURL = ""
	_, err = NewFlow(cfg)
	require.Error(t, err)
}

func TestAuthURLParameters(t *testing.T) {
	t.Parallel()

	flow, err := NewFlow(testFlowConfig())
	require.NoError(t, err)

	parsed, err := url.Parse(flow.AuthURL())
	require.NoError(t, err)
	q := parsed.Query()

	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-1", q.Get("client_id"))
	assert.Equal(t, RedirectURI(), q.Get("redirect_uri"))
	assert.Equal(t, flow.state, q.Get("state"))
	assert.Equal(t, flow.codeChallenge, q.Get("code_challenge"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "https://x/mcp", q.Get("resource"))
	assert.Equal(t, "read write", q.Get("scope"))
}

// waitForListener polls until the callback server accepts requests.
func waitForListener(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("http://localhost:%d/", CallbackPort))
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("callback listener never came up")
}

func TestRunRejectsStateMismatch(t *testing.T) {
	flow, err := NewFlow(testFlowConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		_, err := flow.Run(ctx, true)
		errChan <- err
	}()

	waitForListener(t)
	resp, err := http.Get(fmt.Sprintf(
		"http://localhost:%d%s?code=valid-code&state=wrong-state", CallbackPort, CallbackPath))
	require.NoError(t, err)
	resp.Body.Close()

	flowErr := <-errChan
	require.Error(t, flowErr)
	// A valid code does not save a flow whose state failed to round-trip.
	assert.True(t, errors.Is(flowErr, errors.CodeOAuthCSRFMismatch))
}

func TestRunSurfacesProviderError(t *testing.T) {
	flow, err := NewFlow(testFlowConfig())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		_, err := flow.Run(ctx, true)
		errChan <- err
	}()

	waitForListener(t)
	resp, err := http.Get(fmt.Sprintf(
		"http://localhost:%d%s?error=access_denied", CallbackPort, CallbackPath))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	flowErr := <-errChan
	require.Error(t, flowErr)
	assert.True(t, errors.Is(flowErr, errors.CodeOAuthTokenExchangeFailed))
}

func TestRunTimesOutWithoutCallback(t *testing.T) {
	flow, err := NewFlow(testFlowConfig())
	require.NoError(t, err)
	flow.timeout = 200 * time.Millisecond

	result, err := flow.Run(context.Background(), true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeOAuthTimeout))
	// No callback means no code, no exchange, and nothing to store.
	assert.Nil(t, result)
}

func TestRegisterClient(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"client_id":"issued-id","client_secret":"issued-secret"}`))
	}))
	defer server.Close()

	reg, err := RegisterClient(context.Background(), server.URL, "mcp-cli", RedirectURI(), "read")
	require.NoError(t, err)
	assert.Equal(t, "issued-id", reg.ClientID)
	assert.Equal(t, "issued-secret", reg.ClientSecret)
}

func TestRegisterClientRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"access_denied"}`))
	}))
	defer server.Close()

	_, err := RegisterClient(context.Background(), server.URL, "mcp-cli", RedirectURI(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeOAuthRegistrationFailed))
}

func TestRegisterClientMissingClientID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := RegisterClient(context.Background(), server.URL, "mcp-cli", RedirectURI(), "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeOAuthRegistrationFailed))
}
