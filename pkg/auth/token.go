// Package auth provides bearer-token access for MCP servers: reading cached
// OAuth tokens and refreshing them before they go stale.
package auth

import (
	"context"
	goerrors "errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/stacklok/mcpx/pkg/config"
	"github.com/stacklok/mcpx/pkg/logger"
	"github.com/stacklok/mcpx/pkg/networking"
	"github.com/stacklok/mcpx/pkg/state"
)

// RefreshBuffer is how close to expiry a token may get before a read
// triggers a refresh.
const RefreshBuffer = 60 * time.Second

// defaultClientID is used for refresh grants when neither the config nor a
// stored registration supplies a client ID.
const defaultClientID = "mcp-cli"

var (
	errNoRefresh  = goerrors.New("token has no refresh token")
	errNoTokenURL = goerrors.New("no token endpoint configured")
)

// AccessToken returns a usable bearer token for the server, or empty when no
// usable token exists. A token within RefreshBuffer of expiry is refreshed
// and the result persisted; any refresh failure degrades to no token so the
// caller proceeds unauthenticated.
func AccessToken(ctx context.Context, name string, cfg *config.ServerConfig, store *state.Store) string {
	token, ok := store.Token(name)
	if !ok || token.AccessToken == "" {
		return ""
	}
	if !token.Expired(time.Now(), RefreshBuffer) {
		return token.AccessToken
	}

	refreshed, err := refresh(ctx, name, cfg, store, token)
	if err != nil {
		logger.Debugf("token refresh for %s failed: %v", name, err)
		return ""
	}
	return refreshed.AccessToken
}

// Cache keeps each server's token in memory after the first read, so a
// long-lived process touches the token file once per server while
// refresh-on-read still applies. Not safe for concurrent use; the daemon
// owns one from its single-threaded loop.
type Cache struct {
	store  *state.Store
	tokens map[string]state.TokenData
}

// NewCache builds a token cache backed by the durable store.
func NewCache(store *state.Store) *Cache {
	return &Cache{store: store, tokens: make(map[string]state.TokenData)}
}

// AccessToken behaves like the package-level AccessToken but serves repeat
// reads from memory. Refreshed tokens update both the cache and the store.
func (c *Cache) AccessToken(ctx context.Context, name string, cfg *config.ServerConfig) string {
	token, ok := c.tokens[name]
	if !ok {
		token, ok = c.store.Token(name)
		if !ok || token.AccessToken == "" {
			return ""
		}
		c.tokens[name] = token
	}

	if !token.Expired(time.Now(), RefreshBuffer) {
		return token.AccessToken
	}

	refreshed, err := refresh(ctx, name, cfg, c.store, token)
	if err != nil {
		logger.Debugf("token refresh for %s failed: %v", name, err)
		return ""
	}
	c.tokens[name] = refreshed
	return refreshed.AccessToken
}

// Invalidate drops the cached token for a server, forcing the next read to
// hit the store again.
func (c *Cache) Invalidate(name string) {
	delete(c.tokens, name)
}

// refresh exchanges the refresh token at the configured token endpoint and
// persists the merged result.
func refresh(
	ctx context.Context,
	name string,
	cfg *config.ServerConfig,
	store *state.Store,
	old state.TokenData,
) (state.TokenData, error) {
	if old.RefreshToken == "" {
		return state.TokenData{}, errNoRefresh
	}
	tokenURL := ""
	if cfg != nil && cfg.OAuth != nil {
		tokenURL = cfg.OAuth.TokenURL
	}
	if tokenURL == "" {
		return state.TokenData{}, errNoTokenURL
	}

	oc := &oauth2.Config{
		ClientID: refreshClientID(name, cfg, store),
		Endpoint: oauth2.Endpoint{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, networking.DefaultTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: networking.DefaultTimeout})

	fresh, err := oc.TokenSource(ctx, &oauth2.Token{RefreshToken: old.RefreshToken}).Token()
	if err != nil {
		return state.TokenData{}, err
	}

	merged := old
	merged.AccessToken = fresh.AccessToken
	if fresh.TokenType != "" {
		merged.TokenType = fresh.TokenType
	}
	// A server that omits refresh_token in the refresh response keeps the
	// old one valid.
	if fresh.RefreshToken != "" {
		merged.RefreshToken = fresh.RefreshToken
	}
	if fresh.Expiry.IsZero() {
		merged.ExpiresAt = time.Now().Add(time.Hour).Unix()
	} else {
		merged.ExpiresAt = fresh.Expiry.Unix()
	}

	if err := store.SetToken(name, merged); err != nil {
		logger.Warnf("failed to persist refreshed token for %s: %v", name, err)
	}
	return merged, nil
}

func refreshClientID(name string, cfg *config.ServerConfig, store *state.Store) string {
	if cfg != nil && cfg.OAuth != nil && cfg.OAuth.ClientID != "" {
		return cfg.OAuth.ClientID
	}
	if reg, ok := store.Registration(name); ok {
		return reg.ClientID
	}
	return defaultClientID
}
