package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/siteray/siteray-agent/models"
)

// OAuthClientID identifies the agent to the service's OAuth endpoints.
const OAuthClientID = "siteray-extension"

// OAuthProviders lists the identity providers the service offers.
func (c *Client) OAuthProviders(ctx context.Context) ([]models.OAuthProvider, error) {
	status, b, err := c.send(ctx, http.MethodGet, "/api/ext/oauth/providers", nil, "")
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, newError(status, b, "Failed to load providers")
	}
	var out struct {
		Success   bool                   `json:"success"`
		Providers []models.OAuthProvider `json:"providers"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decoding providers: %w", err)
	}
	return out.Providers, nil
}

// OAuthConfig describes the service's authorization flow for one provider.
// Authorization starts at /api/ext/oauth/{provider}/start and returns to
// redirectURL.
func (c *Client) OAuthConfig(provider, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    OAuthClientID,
		RedirectURL: redirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.baseURL + "/api/ext/oauth/" + url.PathEscape(provider) + "/start",
			TokenURL: c.baseURL + "/api/ext/oauth/exchange",
		},
	}
}

// OAuthAuthURL returns the URL that starts the provider's login, bound to
// state and to the PKCE verifier.
func (c *Client) OAuthAuthURL(provider, redirectURL, state, verifier string) string {
	return c.OAuthConfig(provider, redirectURL).AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// OAuthExchange trades an authorization code for a session. The service
// answers with the same shape as Login rather than a bare OAuth token.
func (c *Client) OAuthExchange(ctx context.Context, provider, code, verifier string) (*models.LoginResponse, error) {
	body, err := json.Marshal(map[string]string{
		"provider":     provider,
		"code":         code,
		"codeVerifier": verifier,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	status, b, err := c.send(ctx, http.MethodPost, "/api/ext/oauth/exchange", body, "")
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, newError(status, b, "OAuth login failed")
	}
	var out models.LoginResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decoding exchange response: %w", err)
	}
	if !out.Success || out.User == nil || out.Tokens == nil {
		return nil, &Error{Status: status, Message: "OAuth login failed"}
	}
	return &out, nil
}
