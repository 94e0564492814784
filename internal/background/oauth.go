package background

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/siteray/siteray-agent/internal/messages"
	"github.com/siteray/siteray-agent/internal/storage"
)

// pendingOAuth is persisted between START_OAUTH and the callback so a
// restart in between does not lose the PKCE verifier.
type pendingOAuth struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
	Verifier string `json:"verifier"`
}

func (c *Coordinator) callbackURL() string {
	return c.webBaseURL() + OAuthCallbackPath
}

func (c *Coordinator) isOAuthCallback(rawURL string) bool {
	return strings.HasPrefix(rawURL, c.callbackURL()+"?")
}

// startOAuth opens the provider's login page in a new tab.
func (c *Coordinator) startOAuth(ctx context.Context, provider string) messages.Result {
	p := pendingOAuth{
		Provider: provider,
		State:    uuid.NewString(),
		Verifier: oauth2.GenerateVerifier(),
	}
	if err := c.kv.Set(ctx, storage.KeyPendingOAuth, p); err != nil {
		slog.Error("background: storing oauth state failed", "error", err)
		return messages.Fail("Failed to start login")
	}
	authURL := c.api.OAuthAuthURL(provider, c.callbackURL(), p.State, p.Verifier)
	if _, err := c.host.CreateTab(ctx, authURL); err != nil {
		slog.Warn("background: opening oauth tab failed", "provider", provider, "error", err)
		return messages.Fail("Failed to open login page")
	}
	slog.Info("background: oauth started", "provider", provider)
	return messages.OK()
}

// handleOAuthCallback completes an OAuth login off the event loop. Further
// updates of the same tab while the exchange runs are ignored.
func (c *Coordinator) handleOAuthCallback(ctx context.Context, tabID int, rawURL string) {
	c.mu.Lock()
	if _, busy := c.processing[tabID]; busy {
		c.mu.Unlock()
		return
	}
	c.processing[tabID] = struct{}{}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.processing, tabID)
			c.mu.Unlock()
		}()
		c.completeOAuth(ctx, tabID, rawURL)
	}()
}

// completeOAuth exchanges the code from a callback URL for a session and
// closes the callback tab.
func (c *Coordinator) completeOAuth(ctx context.Context, tabID int, rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	q := u.Query()
	code, state := q.Get("code"), q.Get("state")
	if code == "" {
		slog.Warn("background: oauth callback without code", "error", q.Get("error"))
		return
	}

	var p pendingOAuth
	ok, err := c.kv.Get(ctx, storage.KeyPendingOAuth, &p)
	if err != nil || !ok {
		slog.Warn("background: oauth callback without pending login", "error", err)
		return
	}
	if p.State != state {
		slog.Warn("background: oauth state mismatch, ignoring callback")
		return
	}

	res, err := c.api.OAuthExchange(ctx, p.Provider, code, p.Verifier)
	if err != nil {
		slog.Warn("background: oauth exchange failed", "provider", p.Provider, "error", err)
		return
	}
	if err := c.kv.Remove(ctx, storage.KeyPendingOAuth); err != nil {
		slog.Warn("background: clearing oauth state failed", "error", err)
	}
	if err := c.host.RemoveTab(ctx, tabID); err != nil {
		slog.Debug("background: closing oauth tab failed", "tab", tabID, "error", err)
	}
	if err := c.storeSession(ctx, res); err != nil {
		slog.Error("background: storing session failed", "error", err)
	}
}

// Processing reports whether an OAuth callback is being handled for the tab.
func (c *Coordinator) Processing(tabID int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.processing[tabID]
	return ok
}
