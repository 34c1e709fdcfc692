package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stacklok/mcpx/pkg/errors"
	"github.com/stacklok/mcpx/pkg/networking"
)

const (
	grantAuthorizationCode = "authorization_code"
	grantRefreshToken      = "refresh_token"
	responseTypeCode       = "code"
)

// RegistrationRequest is the RFC 7591 dynamic client registration request.
type RegistrationRequest struct {
	ClientName    string   `json:"client_name"`
	RedirectURIs  []string `json:"redirect_uris"`
	GrantTypes    []string `json:"grant_types"`
	ResponseTypes []string `json:"response_types"`
	Scope         string   `json:"scope,omitempty"`
}

// RegistrationResponse carries the credentials issued by the authorization
// server.
type RegistrationResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// RegisterClient performs dynamic client registration at the given endpoint.
// Any status other than 200 or 201 aborts with OAUTH_REGISTRATION_FAILED.
func RegisterClient(
	ctx context.Context,
	registrationURL string,
	clientName string,
	redirectURI string,
	scope string,
) (*RegistrationResponse, error) {
	reqBody := RegistrationRequest{
		ClientName:    clientName,
		RedirectURIs:  []string{redirectURI},
		GrantTypes:    []string{grantAuthorizationCode, grantRefreshToken},
		ResponseTypes: []string{responseTypeCode},
		Scope:         scope,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to encode registration request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationURL, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeOAuthRegistrationFailed, "failed to build registration request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := networking.NewHTTPClient(networking.DefaultTimeout).Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeOAuthRegistrationFailed, "registration request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeOAuthRegistrationFailed, "failed to read registration response")
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, errors.New(errors.CodeOAuthRegistrationFailed,
			fmt.Sprintf("registration endpoint returned %d: %s", resp.StatusCode, truncate(respBody, 512)))
	}

	var reg RegistrationResponse
	if err := json.Unmarshal(respBody, &reg); err != nil {
		return nil, errors.Wrap(err, errors.CodeOAuthRegistrationFailed, "malformed registration response")
	}
	if reg.ClientID == "" {
		return nil, errors.New(errors.CodeOAuthRegistrationFailed, "registration response missing client_id")
	}
	return &reg, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
