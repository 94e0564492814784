// Package background is the coordinator behind the toolbar icon, popup and
// trust bar. It owns the lookup cache, badge renderer and scan poller,
// reacts to tab lifecycle events and answers popup/content messages.
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/siteray/siteray-agent/internal/api"
	"github.com/siteray/siteray-agent/internal/auth"
	"github.com/siteray/siteray-agent/internal/badge"
	"github.com/siteray/siteray-agent/internal/browser"
	"github.com/siteray/siteray-agent/internal/config"
	"github.com/siteray/siteray-agent/internal/lookupcache"
	"github.com/siteray/siteray-agent/internal/notify"
	"github.com/siteray/siteray-agent/internal/poller"
	"github.com/siteray/siteray-agent/internal/settings"
	"github.com/siteray/siteray-agent/internal/storage"
)

// OAuthCallbackPath is where the service sends the browser after an OAuth
// login, relative to the web base URL.
const OAuthCallbackPath = "/ext/oauth/callback"

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Config config.Config
	Host   browser.Host
	KV     storage.KV
	// API is built from Config and KV when nil.
	API *api.Client
	// Notifier is told how tracked scans end. Optional.
	Notifier Notifier
	// BadgeOptions and PollerOptions are passed through, mostly for tests.
	BadgeOptions  []badge.Option
	PollerOptions []poller.Option
	CacheOptions  []lookupcache.Option
}

// Notifier receives scan outcomes; *notify.Dispatcher implements it.
type Notifier interface {
	Notify(ctx context.Context, evt notify.Event)
}

// Coordinator is created once per process. Host events are processed one at
// a time by Run; Handle may be called concurrently.
type Coordinator struct {
	cfg      config.Config
	host     browser.Host
	kv       storage.KV
	api      *api.Client
	auth     *auth.Store
	settings *settings.Store
	cache    *lookupcache.Cache
	badge    *badge.Renderer
	poller   *poller.Poller
	notifier Notifier
	started  time.Time

	wg sync.WaitGroup
	mu sync.Mutex
	// processing holds tabs whose OAuth callback is being handled.
	processing map[int]struct{}
}

// New wires a Coordinator.
func New(d Deps) (*Coordinator, error) {
	if d.Host == nil || d.KV == nil {
		return nil, errors.New("background: host and kv are required")
	}
	authStore := auth.NewStore(d.KV)
	c := &Coordinator{
		cfg:        d.Config,
		host:       d.Host,
		kv:         d.KV,
		api:        d.API,
		auth:       authStore,
		settings:   settings.NewStore(d.KV),
		cache:      lookupcache.New(d.Config.Cache.TTL, d.Config.Cache.MaxEntries, d.CacheOptions...),
		badge:      badge.NewRenderer(d.Host, d.BadgeOptions...),
		notifier:   d.Notifier,
		processing: make(map[int]struct{}),
		started:    time.Now(),
	}
	if c.api == nil {
		c.api = api.New(d.Config.API, authStore)
	}
	popts := append([]poller.Option{
		poller.WithSchedule(d.Config.Poller.Schedule),
		poller.WithMaxAttempts(d.Config.Poller.MaxAttempts),
	}, d.PollerOptions...)
	p, err := poller.New(d.KV, c, c, popts...)
	if err != nil {
		return nil, fmt.Errorf("creating poller: %w", err)
	}
	c.poller = p
	return c, nil
}

// API returns the remote service client.
func (c *Coordinator) API() *api.Client { return c.api }

// Poller returns the scan poller.
func (c *Coordinator) Poller() *poller.Poller { return c.poller }

// Run resumes interrupted polling and processes host events until ctx is
// cancelled or the event channel closes.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.poller.Start(ctx); err != nil {
		return fmt.Errorf("starting poller: %w", err)
	}
	defer func() {
		c.wg.Wait()
		c.poller.Stop()
		c.badge.StopAll()
		slog.Info("background: stopped")
	}()
	slog.Info("background: started")

	events := c.host.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			c.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent reacts to one host event.
func (c *Coordinator) HandleEvent(ctx context.Context, ev browser.Event) {
	switch ev := ev.(type) {
	case browser.TabUpdated:
		c.onTabUpdated(ctx, ev)
	case browser.TabActivated:
		c.onTabActivated(ctx, ev)
	case browser.TabRemoved:
		c.badge.Forget(ev.TabID)
		c.mu.Lock()
		delete(c.processing, ev.TabID)
		c.mu.Unlock()
	case browser.Installed:
		if ev.Reason == browser.InstallReasonInstall {
			if _, err := c.host.CreateTab(ctx, c.onboardingURL()); err != nil {
				slog.Warn("background: opening onboarding failed", "error", err)
			}
		}
	default:
		slog.Debug("background: ignoring unknown event", "event", fmt.Sprintf("%T", ev))
	}
}

func (c *Coordinator) onTabUpdated(ctx context.Context, ev browser.TabUpdated) {
	if ev.URL != "" && c.isOAuthCallback(ev.URL) {
		c.handleOAuthCallback(ctx, ev.TabID, ev.URL)
		return
	}
	if ev.Status != browser.TabStatusComplete || ev.URL == "" {
		return
	}
	c.paintTab(ctx, ev.TabID, ev.URL)
}

func (c *Coordinator) onTabActivated(ctx context.Context, ev browser.TabActivated) {
	tab, err := c.host.GetTab(ctx, ev.TabID)
	if err != nil || tab.URL == "" {
		return
	}
	c.paintTab(ctx, tab.ID, tab.URL)
}

// Status is a snapshot of the coordinator's resources.
type Status struct {
	TrackedDomains []string      `json:"trackedDomains"`
	CacheEntries   int           `json:"cacheEntries"`
	Animations     int           `json:"animations"`
	LoggedIn       bool          `json:"loggedIn"`
	Uptime         time.Duration `json:"uptime"`
}

// Status reports tracked domains, cache size and running animations.
func (c *Coordinator) Status(ctx context.Context) Status {
	st := Status{
		CacheEntries: c.cache.Len(),
		Animations:   c.badge.ActiveAnimations(),
		Uptime:       time.Since(c.started).Round(time.Second),
	}
	if state, err := c.poller.State(ctx); err == nil {
		for d := range state {
			st.TrackedDomains = append(st.TrackedDomains, d)
		}
	}
	if a, err := c.auth.Get(ctx); err == nil && a != nil {
		st.LoggedIn = true
	}
	return st
}

func (c *Coordinator) webBaseURL() string {
	base := strings.TrimRight(c.cfg.API.WebBaseURL, "/")
	if base == "" {
		base = c.api.BaseURL()
	}
	return base
}

func (c *Coordinator) scanURL(scanID string) string {
	if scanID == "" {
		return ""
	}
	return c.webBaseURL() + "/scan/" + scanID
}

func (c *Coordinator) onboardingURL() string {
	return c.webBaseURL() + "/onboarding"
}
