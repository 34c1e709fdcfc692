package oauth

import (
	"context"
	"strings"

	"github.com/stacklok/mcpx/pkg/auth/discovery"
	"github.com/stacklok/mcpx/pkg/config"
	"github.com/stacklok/mcpx/pkg/errors"
	"github.com/stacklok/mcpx/pkg/logger"
	"github.com/stacklok/mcpx/pkg/state"
)

// clientName is the client_name used for dynamic registration.
const clientName = "mcp-cli"

// Authorize runs the complete authorization sequence for a configured
// server: endpoint discovery when the config supplies none, dynamic client
// registration when no client ID is known, then the PKCE flow. The resulting
// token is persisted keyed by server name.
func Authorize(
	ctx context.Context,
	name string,
	cfg *config.ServerConfig,
	store *state.Store,
	skipBrowser bool,
) (*TokenResult, error) {
	flowConfig, err := resolveFlowConfig(ctx, name, cfg, store)
	if err != nil {
		return nil, err
	}

	flow, err := NewFlow(flowConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to set up authorization flow")
	}

	result, err := flow.Run(ctx, skipBrowser)
	if err != nil {
		return nil, err
	}

	token := state.TokenData{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    result.TokenType,
		ExpiresAt:    result.ExpiresAt.Unix(),
	}
	if err := store.SetToken(name, token); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to persist token")
	}
	logger.Infof("stored token for %s (expires %s)", name, result.ExpiresAt.Format("2006-01-02 15:04:05"))
	return result, nil
}

// resolveFlowConfig assembles the endpoints, scope, and client credentials
// for one authorization attempt.
func resolveFlowConfig(
	ctx context.Context,
	name string,
	cfg *config.ServerConfig,
	store *state.Store,
) (*Config, error) {
	oc := cfg.OAuth
	if oc == nil {
		oc = &config.OAuthConfig{}
	}

	authURL := oc.AuthURL
	tokenURL := oc.TokenURL
	registrationURL := oc.RegistrationURL
	scope := firstNonEmpty(oc.Scope, cfg.Scope, strings.Join(oc.Scopes, " "))

	if authURL == "" || tokenURL == "" {
		endpoints, err := discovery.DiscoverEndpoints(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		authURL = endpoints.AuthURL
		tokenURL = endpoints.TokenURL
		if registrationURL == "" {
			registrationURL = endpoints.RegistrationURL
		}
		if scope == "" {
			scope = strings.Join(endpoints.ScopesSupported, " ")
		}
	}

	clientID := oc.ClientID
	clientSecret := oc.ClientSecret
	if clientID == "" {
		// An explicitly configured client ID takes precedence and is never
		// persisted; registrations are reused indefinitely.
		if reg, ok := store.Registration(name); ok {
			clientID = reg.ClientID
			clientSecret = reg.ClientSecret
		} else {
			if registrationURL == "" {
				return nil, errors.New(errors.CodeOAuthRegistrationFailed,
					"no client_id configured and no registration endpoint available")
			}
			reg, err := RegisterClient(ctx, registrationURL, clientName, RedirectURI(), scope)
			if err != nil {
				return nil, err
			}
			if err := store.SetRegistration(name, state.ClientRegistration{
				ClientID:     reg.ClientID,
				ClientSecret: reg.ClientSecret,
			}); err != nil {
				return nil, errors.Wrap(err, errors.CodeInternal, "failed to persist client registration")
			}
			logger.Infof("registered client %s for %s", reg.ClientID, name)
			clientID = reg.ClientID
			clientSecret = reg.ClientSecret
		}
	}

	return &Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      authURL,
		TokenURL:     tokenURL,
		Scope:        scope,
		Resource:     firstNonEmpty(oc.Resource, cfg.URL),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
