// Package browser abstracts the browser the background service runs behind:
// the tab list, toolbar icons, messaging to content scripts and the tab
// lifecycle events the coordinator reacts to.
package browser

import (
	"context"
	"errors"

	"github.com/siteray/siteray-agent/internal/icon"
	"github.com/siteray/siteray-agent/models"
)

// ErrTabGone is returned when an operation targets a tab that no longer
// exists. Callers treat it as benign.
var ErrTabGone = errors.New("browser: tab no longer exists")

// Tab is a snapshot of one browser tab.
type Tab struct {
	ID            int    `json:"id"`
	URL           string `json:"url"`
	Active        bool   `json:"active"`
	WindowFocused bool   `json:"windowFocused"`
}

// TabQuery filters QueryTabs. The zero value matches every tab.
type TabQuery struct {
	// Active restricts the result to the active tab of the focused window.
	Active bool
}

// Matches reports whether t satisfies q.
func (q TabQuery) Matches(t Tab) bool {
	return !q.Active || (t.Active && t.WindowFocused)
}

// ContentMessage is pushed from the background to a tab's content script.
type ContentMessage struct {
	Type string               `json:"type"`
	Data *models.TrustBarData `json:"data"`
}

// UpdateBar is the only content message type.
const UpdateBar = "UPDATE_BAR"

// NewUpdateBar builds an UPDATE_BAR message. A nil data hides the bar.
func NewUpdateBar(data *models.TrustBarData) ContentMessage {
	return ContentMessage{Type: UpdateBar, Data: data}
}

// Host is the browser surface the coordinator drives.
type Host interface {
	QueryTabs(ctx context.Context, q TabQuery) ([]Tab, error)
	GetTab(ctx context.Context, id int) (Tab, error)
	// SetIcon replaces the toolbar icon of a tab with every size in set and
	// clears the badge text. It returns ErrTabGone for closed tabs.
	SetIcon(ctx context.Context, tabID int, set icon.Set) error
	SendToTab(ctx context.Context, tabID int, msg ContentMessage) error
	CreateTab(ctx context.Context, url string) (Tab, error)
	RemoveTab(ctx context.Context, id int) error
	// Events delivers tab lifecycle events. The channel is closed when the
	// host shuts down.
	Events() <-chan Event
}
