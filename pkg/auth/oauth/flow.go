// Package oauth runs the OAuth 2.0 authorization-code flow with PKCE against
// MCP authorization servers, including dynamic client registration and the
// one-shot local callback listener.
package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	goerrors "errors"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/browser"
	"golang.org/x/oauth2"

	"github.com/stacklok/mcpx/pkg/errors"
	"github.com/stacklok/mcpx/pkg/logger"
	"github.com/stacklok/mcpx/pkg/networking"
)

const (
	// CallbackPort is the fixed loopback port the authorization server
	// redirects back to. Registered redirect URIs must match it exactly.
	CallbackPort = 8085

	// CallbackPath is the redirect path on the local listener.
	CallbackPath = "/callback"

	// FlowTimeout bounds the whole authorization wait.
	FlowTimeout = 120 * time.Second

	// defaultExpiresIn is assumed when the token response omits expires_in.
	defaultExpiresIn = time.Hour
)

// RedirectURI returns the full local redirect URI.
func RedirectURI() string {
	return fmt.Sprintf("http://localhost:%d%s", CallbackPort, CallbackPath)
}

// Config describes one authorization attempt.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	Scope        string
	// Resource is the MCP server URL, sent as the RFC 8707 resource
	// indicator.
	Resource string
}

// TokenResult is the outcome of a successful flow.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	Claims       jwt.MapClaims
}

// Flow holds the per-attempt secrets. Each Flow runs at most once.
type Flow struct {
	config        *Config
	oauth2Config  *oauth2.Config
	codeVerifier  string
	codeChallenge string
	state         string
	timeout       time.Duration
}

// callbackResult is what the one-shot listener hands back to the flow. It is
// owned by the listener goroutine until delivered, never shared.
type callbackResult struct {
	code  string
	state string
	err   string
}

// NewFlow creates a flow with fresh PKCE and CSRF material.
func NewFlow(config *Config) (*Flow, error) {
	if config == nil || config.ClientID == "" {
		return nil, goerrors.New("client ID is required")
	}
	if config.AuthURL == "" || config.TokenURL == "" {
		return nil, goerrors.New("authorization and token URLs are required")
	}

	f := &Flow{
		config:  config,
		timeout: FlowTimeout,
		oauth2Config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  RedirectURI(),
			Endpoint: oauth2.Endpoint{
				AuthURL:  config.AuthURL,
				TokenURL: config.TokenURL,
			},
		},
	}
	if err := f.generatePKCEParams(); err != nil {
		return nil, err
	}
	if err := f.generateState(); err != nil {
		return nil, err
	}
	return f, nil
}

// generatePKCEParams generates the RFC 7636 verifier and S256 challenge.
func (f *Flow) generatePKCEParams() error {
	verifierBytes := make([]byte, 32)
	if _, err := rand.Read(verifierBytes); err != nil {
		return fmt.Errorf("failed to generate code verifier: %w", err)
	}
	f.codeVerifier = base64.RawURLEncoding.EncodeToString(verifierBytes)
	f.codeChallenge = ChallengeS256(f.codeVerifier)
	return nil
}

// ChallengeS256 derives the PKCE S256 challenge from a verifier.
func ChallengeS256(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

func (f *Flow) generateState() error {
	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return fmt.Errorf("failed to generate state: %w", err)
	}
	f.state = base64.RawURLEncoding.EncodeToString(stateBytes)
	return nil
}

// AuthURL builds the full authorization URL for the browser.
func (f *Flow) AuthURL() string {
	opts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", f.codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}
	if f.config.Resource != "" {
		opts = append(opts, oauth2.SetAuthURLParam("resource", f.config.Resource))
	}
	if f.config.Scope != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", f.config.Scope))
	}
	return f.oauth2Config.AuthCodeURL(f.state, opts...)
}

// Run opens the browser at the authorization URL, waits for the one-shot
// callback, validates CSRF state, and exchanges the code for a token.
func (f *Flow) Run(ctx context.Context, skipBrowser bool) (*TokenResult, error) {
	resultChan := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		switch {
		case query.Get("error") != "":
			writeErrorPage(w, fmt.Sprintf("%s: %s", query.Get("error"), query.Get("error_description")))
			resultChan <- callbackResult{err: query.Get("error")}
		case query.Get("code") != "":
			writeSuccessPage(w)
			resultChan <- callbackResult{code: query.Get("code"), state: query.Get("state")}
		default:
			// Favicons and stray probes; keep waiting for the real redirect.
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("localhost:%d", CallbackPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !goerrors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("failed to shut down callback server: %v", err)
		}
	}()

	authURL := f.AuthURL()
	if skipBrowser {
		logger.Infof("Open this URL in your browser: %s", authURL)
	} else {
		logger.Infof("Opening browser for authorization")
		if err := browser.OpenURL(authURL); err != nil {
			logger.Warnf("failed to open browser: %v", err)
			logger.Infof("Open this URL in your browser: %s", authURL)
		}
	}

	timeout := time.NewTimer(f.timeout)
	defer timeout.Stop()

	var result callbackResult
	select {
	case result = <-resultChan:
	case err := <-serverErr:
		return nil, errors.Wrap(err, errors.CodeOAuthTimeout,
			fmt.Sprintf("callback listener failed on port %d", CallbackPort))
	case <-timeout.C:
		return nil, errors.New(errors.CodeOAuthTimeout, "authorization timed out or was cancelled")
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.CodeOAuthTimeout, "authorization cancelled")
	}

	if result.err != "" {
		return nil, errors.New(errors.CodeOAuthTokenExchangeFailed,
			fmt.Sprintf("authorization server returned error: %s", result.err))
	}
	// State must round-trip unchanged; a mismatch discards the code.
	if result.state != f.state {
		return nil, errors.New(errors.CodeOAuthCSRFMismatch, "state parameter mismatch in callback")
	}

	return f.exchange(ctx, result.code)
}

// exchange trades the authorization code for a token at the token endpoint.
func (f *Flow) exchange(ctx context.Context, code string) (*TokenResult, error) {
	exchangeCtx, cancel := context.WithTimeout(ctx, networking.DefaultTimeout)
	defer cancel()
	exchangeCtx = context.WithValue(exchangeCtx, oauth2.HTTPClient,
		&http.Client{Timeout: networking.DefaultTimeout})

	token, err := f.oauth2Config.Exchange(exchangeCtx, code,
		oauth2.SetAuthURLParam("code_verifier", f.codeVerifier))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeOAuthTokenExchangeFailed,
			fmt.Sprintf("token exchange failed: %v", err))
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(defaultExpiresIn)
	}

	result := &TokenResult{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.TokenType,
		ExpiresAt:    expiresAt,
	}
	if claims, err := extractJWTClaims(token.AccessToken); err == nil {
		result.Claims = claims
	}
	return result, nil
}

// extractJWTClaims decodes claims for display without verifying the
// signature. Opaque tokens simply yield no claims.
func extractJWTClaims(tokenString string) (jwt.MapClaims, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func writeSuccessPage(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Authentication Successful</title><meta charset="utf-8"></head>
<body style="font-family: sans-serif; text-align: center; margin: 40px;">
<h1>Authentication successful</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`)
}

func writeErrorPage(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusBadRequest)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Authentication Failed</title><meta charset="utf-8"></head>
<body style="font-family: sans-serif; text-align: center; margin: 40px;">
<h1>Authentication failed</h1>
<p>%s</p>
</body>
</html>`, html.EscapeString(msg))
}
