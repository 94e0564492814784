package background

import (
	"context"
	"errors"
	"log/slog"

	"github.com/siteray/siteray-agent/internal/api"
	"github.com/siteray/siteray-agent/internal/browser"
	"github.com/siteray/siteray-agent/internal/domain"
	"github.com/siteray/siteray-agent/internal/notify"
	"github.com/siteray/siteray-agent/internal/poller"
	"github.com/siteray/siteray-agent/models"
)

// paintTab brings a tab's badge up to date for the page it shows.
func (c *Coordinator) paintTab(ctx context.Context, tabID int, rawURL string) *models.LookupResponse {
	d := domain.Extract(rawURL)
	if d == "" {
		c.badge.Clear(ctx, tabID)
		return nil
	}
	return c.updateTabBadge(ctx, tabID, d)
}

// updateTabBadge paints from the cache, or shows the loading badge while a
// fresh lookup runs. Logged-out users always see the idle badge.
func (c *Coordinator) updateTabBadge(ctx context.Context, tabID int, d string) *models.LookupResponse {
	if !c.loggedIn(ctx) {
		c.badge.Clear(ctx, tabID)
		return nil
	}
	if cached, ok := c.cache.Get(d); ok {
		c.applyBadge(ctx, tabID, cached)
		return cached
	}

	c.badge.SetLoading(ctx, tabID)
	lookup, err := c.fetchLookup(ctx, d)
	if err != nil {
		slog.Warn("background: lookup failed", "domain", d, "error", err)
		c.badge.Clear(ctx, tabID)
		return nil
	}
	c.applyBadge(ctx, tabID, lookup)
	return lookup
}

// applyBadge shows the state a lookup describes.
func (c *Coordinator) applyBadge(ctx context.Context, tabID int, lookup *models.LookupResponse) {
	switch {
	case lookup == nil:
		c.badge.Clear(ctx, tabID)
	case lookup.RunningScan != nil:
		c.badge.SetLoading(ctx, tabID)
	case lookup.Scan.HasScore():
		s := c.currentSettings(ctx)
		c.badge.SetScore(ctx, tabID, *lookup.Scan.TrustScore, lookup.Scan.RiskLevel, s.IconDisplayMode)
	case lookup.Failed():
		c.badge.SetFailed(ctx, tabID)
	default:
		c.badge.Clear(ctx, tabID)
	}
}

// lookup returns the cached result for a domain or fetches one.
func (c *Coordinator) lookup(ctx context.Context, d string) (*models.LookupResponse, error) {
	if cached, ok := c.cache.Get(d); ok {
		return cached, nil
	}
	return c.fetchLookup(ctx, d)
}

// fetchLookup queries the service, caches the answer and starts tracking a
// scan found running.
func (c *Coordinator) fetchLookup(ctx context.Context, d string) (*models.LookupResponse, error) {
	lookup, err := c.api.Lookup(ctx, d)
	if err != nil {
		return nil, err
	}
	c.cache.Set(d, *lookup)
	if lookup.RunningScan != nil {
		if err := c.poller.Track(ctx, d); err != nil {
			slog.Warn("background: tracking running scan failed", "domain", d, "error", err)
		}
	}
	return lookup, nil
}

// FreshLookup drops the cached result and fetches a new one. The poller
// calls it on every tick.
func (c *Coordinator) FreshLookup(ctx context.Context, d string) (*models.LookupResponse, error) {
	c.cache.Invalidate(d)
	return c.fetchLookup(ctx, d)
}

// ScanCompleted paints the finished scan on every tab showing the domain and
// updates their trust bars.
func (c *Coordinator) ScanCompleted(ctx context.Context, d string, lookup *models.LookupResponse) {
	s := c.currentSettings(ctx)
	bar := models.BuildBarData(lookup, s)
	for _, tab := range c.tabsFor(ctx, d) {
		c.applyBadge(ctx, tab.ID, lookup)
		c.send(ctx, tab.ID, browser.NewUpdateBar(bar))
	}
	if c.notifier != nil {
		var url string
		if lookup != nil && lookup.Scan != nil {
			url = c.scanURL(lookup.Scan.ID)
		}
		c.notifier.Notify(ctx, notify.ScanCompleted(d, lookup, url))
	}
}

// ScanFailed shows the failed badge on every tab showing the domain.
func (c *Coordinator) ScanFailed(ctx context.Context, d string, reason poller.Reason) {
	slog.Info("background: scan did not complete", "domain", d, "reason", reason)
	for _, tab := range c.tabsFor(ctx, d) {
		c.badge.SetFailed(ctx, tab.ID)
	}
	if c.notifier != nil {
		c.notifier.Notify(ctx, notify.ScanFailed(d, reason == poller.ReasonTimeout))
	}
}

// refreshActiveTab repaints the active tab and pushes its trust bar.
func (c *Coordinator) refreshActiveTab(ctx context.Context) {
	tabs, err := c.host.QueryTabs(ctx, browser.TabQuery{Active: true})
	if err != nil || len(tabs) == 0 {
		return
	}
	tab := tabs[0]
	lookup := c.paintTab(ctx, tab.ID, tab.URL)
	if lookup != nil {
		c.send(ctx, tab.ID, browser.NewUpdateBar(models.BuildBarData(lookup, c.currentSettings(ctx))))
	}
}

// repaintActiveFor repaints the active tab if it shows domain d.
func (c *Coordinator) repaintActiveFor(ctx context.Context, d string, lookup *models.LookupResponse) {
	tabs, err := c.host.QueryTabs(ctx, browser.TabQuery{Active: true})
	if err != nil {
		return
	}
	for _, tab := range tabs {
		if domain.Extract(tab.URL) == d {
			c.applyBadge(ctx, tab.ID, lookup)
		}
	}
}

// repaintCached repaints every tab whose domain has a cached lookup.
func (c *Coordinator) repaintCached(ctx context.Context) {
	tabs, err := c.host.QueryTabs(ctx, browser.TabQuery{})
	if err != nil {
		slog.Warn("background: listing tabs failed", "error", err)
		return
	}
	for _, tab := range tabs {
		d := domain.Extract(tab.URL)
		if d == "" {
			continue
		}
		if cached, ok := c.cache.Get(d); ok {
			c.applyBadge(ctx, tab.ID, cached)
		}
	}
}

// pushBarToAllTabs sends every tab its trust bar from cached lookups only.
// Tabs without a cached lookup, or every tab when logged out or the bar is
// disabled, get a nil bar.
func (c *Coordinator) pushBarToAllTabs(ctx context.Context) {
	loggedIn := c.loggedIn(ctx)
	s := c.currentSettings(ctx)
	tabs, err := c.host.QueryTabs(ctx, browser.TabQuery{})
	if err != nil {
		slog.Warn("background: listing tabs failed", "error", err)
		return
	}
	for _, tab := range tabs {
		d := domain.Extract(tab.URL)
		if d == "" {
			continue
		}
		var bar *models.TrustBarData
		if loggedIn && s.TrustBarEnabled {
			if cached, ok := c.cache.Get(d); ok {
				bar = models.BuildBarData(cached, s)
			}
		}
		c.send(ctx, tab.ID, browser.NewUpdateBar(bar))
	}
}

func (c *Coordinator) tabsFor(ctx context.Context, d string) []browser.Tab {
	tabs, err := c.host.QueryTabs(ctx, browser.TabQuery{})
	if err != nil {
		slog.Warn("background: listing tabs failed", "error", err)
		return nil
	}
	var out []browser.Tab
	for _, tab := range tabs {
		if domain.Extract(tab.URL) == d {
			out = append(out, tab)
		}
	}
	return out
}

// send delivers a content message. Tabs without a content script or that
// have closed are ignored.
func (c *Coordinator) send(ctx context.Context, tabID int, msg browser.ContentMessage) {
	if err := c.host.SendToTab(ctx, tabID, msg); err != nil && !errors.Is(err, browser.ErrTabGone) {
		slog.Debug("background: content message not delivered", "tab", tabID, "error", err)
	}
}

func (c *Coordinator) loggedIn(ctx context.Context) bool {
	a, err := c.auth.Get(ctx)
	if err != nil {
		slog.Warn("background: loading session failed", "error", err)
		return false
	}
	return a != nil
}

func (c *Coordinator) currentSettings(ctx context.Context) models.ExtensionSettings {
	s, err := c.settings.Get(ctx)
	if err != nil {
		slog.Warn("background: loading settings failed, using defaults", "error", err)
	}
	return s
}

// userError turns an API error into the text returned to the popup.
func userError(err error) string {
	return api.UserMessage(err)
}
