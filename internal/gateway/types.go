package gateway

import (
	"encoding/json"

	"github.com/siteray/siteray-agent/internal/browser"
)

// SSEEvent is serialised as JSON and pushed over the GET /events SSE stream.
type SSEEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Commands pushed to the extension shell.
const (
	EventConnected      = "connected"
	EventGatewayStarted = "gateway.started"
	EventIconSet        = "icon.set"
	EventBarUpdate      = "bar.update"
	EventTabCreate      = "tab.create"
	EventTabRemove      = "tab.remove"
)

// IconCommand replaces the toolbar icon of a tab. ImageData maps the pixel
// size ("16", "32", "48") to a PNG data URL.
type IconCommand struct {
	TabID     int               `json:"tabId"`
	ImageData map[string]string `json:"imageData"`
}

// BarCommand forwards a content message to a tab.
type BarCommand struct {
	TabID   int                    `json:"tabId"`
	Message browser.ContentMessage `json:"message"`
}

// TabCommand opens or closes a tab. RequestID correlates a tab.create with
// the tab.updated report that follows it.
type TabCommand struct {
	RequestID string `json:"requestId,omitempty"`
	TabID     int    `json:"tabId,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Host event kinds accepted by POST /api/host/events.
const (
	HostTabUpdated   = "tab.updated"
	HostTabActivated = "tab.activated"
	HostTabRemoved   = "tab.removed"
	HostInstalled    = "installed"
	HostTabsSnapshot = "tabs.snapshot"
)

// HostEvent is one report from the extension shell.
type HostEvent struct {
	Type          string        `json:"type"`
	TabID         int           `json:"tabId,omitempty"`
	Status        string        `json:"status,omitempty"`
	URL           string        `json:"url,omitempty"`
	WindowFocused *bool         `json:"windowFocused,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Tabs          []browser.Tab `json:"tabs,omitempty"`
}

// GatewayStatus is returned by GET /api/status.
type GatewayStatus struct {
	Running        bool     `json:"running"`
	TrackedDomains []string `json:"tracked_domains"`
	CacheEntries   int      `json:"cache_entries"`
	Animations     int      `json:"animations"`
	LoggedIn       bool     `json:"logged_in"`
	Tabs           int      `json:"tabs"`
	Subscribers    int      `json:"subscribers"`
	UptimeSeconds  int64    `json:"uptime_seconds"`
}

// progressFrame is written to websocket clients for every upstream progress
// event.
type progressFrame struct {
	RequestID string          `json:"requestId"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}
