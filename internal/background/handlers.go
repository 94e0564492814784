package background

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siteray/siteray-agent/internal/browser"
	"github.com/siteray/siteray-agent/internal/domain"
	"github.com/siteray/siteray-agent/internal/messages"
	"github.com/siteray/siteray-agent/internal/settings"
	"github.com/siteray/siteray-agent/models"
)

// errLocalHost answers lookups and scans for hosts that are never sent to
// the remote API.
const errLocalHost = "Local addresses cannot be scanned"

// HandleRaw decodes and answers one message. Malformed messages get the
// "Invalid message" failure result.
func (c *Coordinator) HandleRaw(ctx context.Context, raw []byte) any {
	msg, err := messages.Decode(raw)
	if err != nil {
		slog.Debug("background: rejected message", "error", err)
		return messages.Invalid()
	}
	return c.Handle(ctx, msg)
}

// Handle answers one message. It never fails: every outcome, including
// errors, is a result value the caller can serialise as-is. A nil result
// stands for JSON null.
func (c *Coordinator) Handle(ctx context.Context, msg messages.Message) any {
	switch m := msg.(type) {
	case messages.Login:
		return c.handleLogin(ctx, m)
	case messages.Logout:
		return c.handleLogout(ctx)
	case messages.GetAuth:
		a, err := c.auth.Get(ctx)
		if err != nil || a == nil {
			return nil
		}
		return a
	case messages.GetLookup:
		return c.handleGetLookup(ctx, m)
	case messages.TriggerScan:
		return c.handleTriggerScan(ctx, m.Domain)
	case messages.TriggerRescan:
		return c.handleTriggerScan(ctx, m.Domain)
	case messages.CheckRescan:
		res, err := c.api.RescanEligibility(ctx, m.ScanID)
		if err != nil {
			slog.Warn("background: rescan check failed", "scan_id", m.ScanID, "error", err)
			return models.RescanEligibility{Eligible: true}
		}
		return res
	case messages.GetStreamToken:
		res, err := c.api.StreamToken(ctx, m.ScanID)
		if err != nil {
			slog.Warn("background: stream token failed", "scan_id", m.ScanID, "error", err)
			return messages.StreamTokenResult{Success: false}
		}
		return messages.StreamTokenResult{Success: res.Success, Token: res.Token}
	case messages.InvalidateCache:
		c.cache.Invalidate(m.Domain)
		return messages.OK()
	case messages.GetWebLoginURL:
		u, err := c.api.WebLoginURL(ctx, m.Redirect)
		if err != nil {
			slog.Warn("background: web login url failed", "error", err)
			return messages.URLResult{Success: false, Error: userError(err)}
		}
		return messages.URLResult{Success: true, URL: u}
	case messages.GetSettings:
		return c.currentSettings(ctx)
	case messages.SetSettings:
		return c.handleSetSettings(ctx, m)
	case messages.GetBarData:
		return c.handleGetBarData(ctx, m.Domain)
	case messages.BarSettingsChanged:
		c.pushBarToAllTabs(ctx)
		return messages.OK()
	case messages.GetOAuthProviders:
		providers, err := c.api.OAuthProviders(ctx)
		if err != nil {
			slog.Warn("background: listing oauth providers failed", "error", err)
			return messages.ProvidersResult{Success: false, Providers: []models.OAuthProvider{}, Error: userError(err)}
		}
		if providers == nil {
			providers = []models.OAuthProvider{}
		}
		return messages.ProvidersResult{Success: true, Providers: providers}
	case messages.StartOAuth:
		return c.startOAuth(ctx, m.Provider)
	}
	slog.Warn("background: unhandled message", "type", fmt.Sprintf("%T", msg))
	return messages.Invalid()
}

func (c *Coordinator) handleLogin(ctx context.Context, m messages.Login) messages.LoginResult {
	res, err := c.api.Login(ctx, m.Email, m.Password)
	if err != nil {
		slog.Info("background: login failed", "error", err)
		return messages.LoginResult{Success: false, Error: userError(err)}
	}
	if !res.Success || res.User == nil || res.Tokens == nil {
		return messages.LoginResult{Success: false, Error: "Login failed"}
	}
	if err := c.storeSession(ctx, res); err != nil {
		slog.Error("background: storing session failed", "error", err)
		return messages.LoginResult{Success: false, Error: "Login failed"}
	}
	return messages.LoginResult{Success: true, User: res.User, Tokens: res.Tokens}
}

// storeSession persists a login and repaints the active tab with it.
func (c *Coordinator) storeSession(ctx context.Context, res *models.LoginResponse) error {
	err := c.auth.Put(ctx, models.StoredAuth{
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
		User:         *res.User,
	})
	if err != nil {
		return err
	}
	slog.Info("background: logged in", "user", res.User.ID)
	c.refreshActiveTab(ctx)
	return nil
}

func (c *Coordinator) handleLogout(ctx context.Context) messages.Result {
	if err := c.auth.Clear(ctx); err != nil {
		slog.Error("background: clearing session failed", "error", err)
	}
	c.cache.Clear()
	c.badge.StopAll()
	if err := c.poller.Clear(ctx); err != nil {
		slog.Warn("background: clearing poll state failed", "error", err)
	}

	tabs, err := c.host.QueryTabs(ctx, browser.TabQuery{})
	if err != nil {
		slog.Warn("background: listing tabs failed", "error", err)
	}
	for _, tab := range tabs {
		c.badge.Clear(ctx, tab.ID)
		if domain.Extract(tab.URL) != "" {
			c.send(ctx, tab.ID, browser.NewUpdateBar(nil))
		}
	}
	slog.Info("background: logged out")
	return messages.OK()
}

// handleGetLookup answers with the LookupResponse itself on success.
func (c *Coordinator) handleGetLookup(ctx context.Context, m messages.GetLookup) any {
	if domain.IsLocal(m.Domain) {
		return messages.Fail(errLocalHost)
	}
	lookup, err := c.lookup(ctx, m.Domain)
	if err != nil {
		slog.Warn("background: lookup failed", "domain", m.Domain, "error", err)
		return messages.Fail(userError(err))
	}
	c.repaintActiveFor(ctx, m.Domain, lookup)
	return lookup
}

func (c *Coordinator) handleTriggerScan(ctx context.Context, d string) messages.ScanResult {
	if domain.IsLocal(d) {
		slog.Debug("background: refusing scan of local host", "domain", d)
		return messages.ScanResult{Success: false, Error: errLocalHost}
	}
	id, err := c.api.TriggerScan(ctx, d)
	if err != nil {
		slog.Warn("background: triggering scan failed", "domain", d, "error", err)
		return messages.ScanResult{Success: false, Error: userError(err)}
	}
	c.cache.Invalidate(d)
	if err := c.poller.Track(ctx, d); err != nil {
		slog.Warn("background: tracking scan failed", "domain", d, "error", err)
	}
	for _, tab := range c.tabsFor(ctx, d) {
		c.badge.SetLoading(ctx, tab.ID)
	}
	slog.Info("background: scan triggered", "domain", d, "scan_id", id)
	return messages.ScanResult{Success: true, ScanID: id}
}

func (c *Coordinator) handleSetSettings(ctx context.Context, m messages.SetSettings) messages.Result {
	merged, err := settings.Merge(m.Settings)
	if err != nil {
		return messages.Invalid()
	}
	if err := messages.ValidatePayload(messages.TypeSetSettings, merged); err != nil {
		slog.Debug("background: rejected settings", "error", err)
		return messages.Invalid()
	}
	if err := c.settings.Save(ctx, merged); err != nil {
		slog.Error("background: saving settings failed", "error", err)
		return messages.Fail("Failed to save settings")
	}
	if c.loggedIn(ctx) {
		c.repaintCached(ctx)
		c.pushBarToAllTabs(ctx)
	}
	return messages.OK()
}

// handleGetBarData returns nil (JSON null) when there is no bar to show.
func (c *Coordinator) handleGetBarData(ctx context.Context, d string) any {
	if domain.IsLocal(d) || !c.loggedIn(ctx) {
		return nil
	}
	s := c.currentSettings(ctx)
	if !s.TrustBarEnabled {
		return nil
	}
	lookup, err := c.lookup(ctx, d)
	if err != nil {
		slog.Debug("background: bar lookup failed", "domain", d, "error", err)
		return nil
	}
	if bar := models.BuildBarData(lookup, s); bar != nil {
		return bar
	}
	return nil
}
