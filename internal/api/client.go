// Package api is the client for the remote trust-scoring service. Calls made
// on behalf of the user carry the stored access token; a 401 triggers one
// shared token refresh and a single retry.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/siteray/siteray-agent/internal/config"
	"github.com/siteray/siteray-agent/models"
)

const (
	defaultURL     = "https://siteray.io"
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 1 << 20
)

// TokenStore is the session storage the client reads and renews.
// *auth.Store satisfies it.
type TokenStore interface {
	Get(ctx context.Context) (*models.StoredAuth, error)
	UpdateTokens(ctx context.Context, accessToken, refreshToken string) error
	Clear(ctx context.Context) error
}

// Client talks to the remote service. It is safe for concurrent use.
type Client struct {
	baseURL string
	tokens  TokenStore
	http    *http.Client
	// stream has no overall timeout; progress streams are long-lived.
	stream  *http.Client
	refresh singleflight.Group
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for request/response calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New returns a Client configured from cfg.
// baseURL defaults to https://siteray.io when cfg.BaseURL is empty.
func New(cfg config.APIConfig, tokens TokenStore, opts ...Option) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		baseURL: base,
		tokens:  tokens,
		http:    &http.Client{Timeout: timeout},
		stream:  &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the API origin.
func (c *Client) BaseURL() string { return c.baseURL }

// Login exchanges credentials for a session. It does not store the session.
func (c *Client) Login(ctx context.Context, email, password string) (*models.LoginResponse, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	status, b, err := c.send(ctx, http.MethodPost, "/api/ext/login", body, "")
	if err != nil {
		return nil, err
	}
	if !ok(status) {
		return nil, newError(status, b, "Login failed")
	}
	var out models.LoginResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decoding login response: %w", err)
	}
	return &out, nil
}

// Lookup returns the latest known scan state of a domain.
func (c *Client) Lookup(ctx context.Context, domain string) (*models.LookupResponse, error) {
	var out models.LookupResponse
	if err := c.getJSON(ctx, "/api/ext/lookup?domain="+url.QueryEscape(domain), "Lookup failed", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TriggerScan requests a new scan of a domain and returns the scan id. A
// bare domain is scanned over https.
func (c *Client) TriggerScan(ctx context.Context, domain string) (string, error) {
	target := domain
	if !strings.Contains(target, "://") {
		target = "https://" + target
	}
	body, err := json.Marshal(map[string]string{"url": target})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}
	b, err := c.authed(ctx, http.MethodPost, "/api/scans", body, "Scan trigger failed")
	if err != nil {
		return "", err
	}
	var out models.ScanTriggerResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("decoding scan response: %w", err)
	}
	if out.ID() == "" {
		return "", fmt.Errorf("scan response carried no scan id")
	}
	return out.ID(), nil
}

// RescanEligibility reports whether the scan may be repeated now.
func (c *Client) RescanEligibility(ctx context.Context, scanID string) (*models.RescanEligibility, error) {
	var out models.RescanEligibility
	if err := c.getJSON(ctx, "/api/scans/"+url.PathEscape(scanID)+"/rescan-eligibility", "Rescan check failed", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamToken returns a short-lived token for the scan's progress stream.
func (c *Client) StreamToken(ctx context.Context, scanID string) (*models.StreamTokenResponse, error) {
	var out models.StreamTokenResponse
	if err := c.getJSON(ctx, "/api/scans/"+url.PathEscape(scanID)+"/stream-token", "Stream token failed", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WebLoginURL returns a one-time URL that signs the user into the website.
// When redirect is non-empty it is passed along as the redirect parameter.
func (c *Client) WebLoginURL(ctx context.Context, redirect string) (string, error) {
	var out models.WebLoginURL
	if err := c.getJSON(ctx, "/api/ext/web-login-token", "Failed to get login token", &out); err != nil {
		return "", err
	}
	if !out.Success || out.URL == "" {
		return "", fmt.Errorf("web login token response carried no url")
	}
	if redirect == "" {
		return out.URL, nil
	}
	u, err := url.Parse(out.URL)
	if err != nil {
		return "", fmt.Errorf("parsing web login url: %w", err)
	}
	q := u.Query()
	q.Set("redirect", redirect)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) getJSON(ctx context.Context, path, def string, dest any) error {
	b, err := c.authed(ctx, http.MethodGet, path, nil, def)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, dest); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

// authed performs a request with the stored access token. On 401 it renews
// the session once and retries; a second 401 clears the session.
func (c *Client) authed(ctx context.Context, method, path string, body []byte, def string) ([]byte, error) {
	stored, err := c.tokens.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if stored == nil || stored.AccessToken == "" {
		return nil, ErrNotAuthenticated
	}

	status, b, err := c.send(ctx, method, path, body, stored.AccessToken)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		slog.Debug("api: got 401, refreshing session", "path", path)
		token, rerr := c.refreshTokens(ctx)
		if rerr == nil {
			status, b, err = c.send(ctx, method, path, body, token)
			if err != nil {
				return nil, err
			}
		}
		if rerr != nil || status == http.StatusUnauthorized {
			if cerr := c.tokens.Clear(ctx); cerr != nil {
				slog.Warn("api: clearing session failed", "error", cerr)
			}
			return nil, ErrSessionExpired
		}
	}
	if !ok(status) {
		return nil, newError(status, b, def)
	}
	return b, nil
}

// refreshTokens renews the session and returns the new access token.
// Concurrent callers share one refresh request. A failed refresh clears the
// stored session and every waiter receives ErrSessionExpired.
func (c *Client) refreshTokens(ctx context.Context) (string, error) {
	// Detach so a caller giving up does not fail the refresh for the others;
	// the HTTP client timeout still bounds it.
	rctx := context.WithoutCancel(ctx)
	v, err, _ := c.refresh.Do("refresh", func() (any, error) {
		token, err := c.doRefresh(rctx)
		if err != nil {
			slog.Info("api: session refresh failed", "error", err)
			if cerr := c.tokens.Clear(rctx); cerr != nil {
				slog.Warn("api: clearing session failed", "error", cerr)
			}
			return "", ErrSessionExpired
		}
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) doRefresh(ctx context.Context) (string, error) {
	stored, err := c.tokens.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("loading session: %w", err)
	}
	if stored == nil || stored.RefreshToken == "" {
		return "", ErrNotAuthenticated
	}
	body, err := json.Marshal(map[string]string{"refreshToken": stored.RefreshToken})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}
	status, b, err := c.send(ctx, http.MethodPost, "/api/ext/refresh", body, "")
	if err != nil {
		return "", err
	}
	if !ok(status) {
		return "", newError(status, b, "Refresh failed")
	}
	var out models.RefreshResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("decoding refresh response: %w", err)
	}
	if !out.Success || out.Tokens == nil || out.Tokens.AccessToken == "" {
		return "", fmt.Errorf("refresh rejected")
	}
	if err := c.tokens.UpdateTokens(ctx, out.Tokens.AccessToken, out.Tokens.RefreshToken); err != nil {
		return "", fmt.Errorf("storing tokens: %w", err)
	}
	return out.Tokens.AccessToken, nil
}

// send executes one request and returns the status and body. Only transport
// failures are returned as errors.
func (c *Client) send(ctx context.Context, method, path string, body []byte, token string) (int, []byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req) // #nosec G107 -- base URL is user configuration
	if err != nil {
		return 0, nil, fmt.Errorf("request to %s failed: %w", c.baseURL+path, err)
	}
	defer res.Body.Close() //nolint:errcheck

	b, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}
	slog.Debug("api: request", "method", method, "path", path, "status", res.StatusCode)
	return res.StatusCode, b, nil
}

func ok(status int) bool { return status >= 200 && status < 300 }
