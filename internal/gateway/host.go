package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/siteray/siteray-agent/internal/browser"
	"github.com/siteray/siteray-agent/internal/icon"
)

// RemoteHost is the browser.Host the gateway hands to the coordinator. The
// extension shell reports tabs and tab events over POST /api/host/events;
// every icon, bar and tab command is pushed back to it over GET /events.
type RemoteHost struct {
	b *Broadcaster

	mu     sync.Mutex
	tabs   map[int]browser.Tab
	order  []int
	events chan browser.Event
	done   chan struct{}
	closed bool
}

// NewRemoteHost returns a host with no known tabs.
func NewRemoteHost(b *Broadcaster) *RemoteHost {
	return &RemoteHost{
		b:      b,
		tabs:   make(map[int]browser.Tab),
		events: make(chan browser.Event, 64),
		done:   make(chan struct{}),
	}
}

func (h *RemoteHost) Events() <-chan browser.Event { return h.events }

// Close stops event delivery. Reports received afterwards update the tab
// table but are not forwarded. The event channel itself stays open.
func (h *RemoteHost) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.done)
	}
}

// TabCount returns the number of tabs the shell has reported.
func (h *RemoteHost) TabCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tabs)
}

func (h *RemoteHost) QueryTabs(_ context.Context, q browser.TabQuery) ([]browser.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []browser.Tab
	for _, id := range h.order {
		if t := h.tabs[id]; q.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (h *RemoteHost) GetTab(_ context.Context, id int) (browser.Tab, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.tabs[id]
	if !ok {
		return browser.Tab{}, browser.ErrTabGone
	}
	return t, nil
}

func (h *RemoteHost) SetIcon(_ context.Context, tabID int, set icon.Set) error {
	if !h.known(tabID) {
		return browser.ErrTabGone
	}
	urls, err := set.DataURLs()
	if err != nil {
		return fmt.Errorf("encoding icon: %w", err)
	}
	h.b.sendLatest(fmt.Sprintf("icon:%d", tabID), SSEEvent{Type: EventIconSet, Payload: IconCommand{TabID: tabID, ImageData: urls}})
	return nil
}

func (h *RemoteHost) SendToTab(_ context.Context, tabID int, msg browser.ContentMessage) error {
	if !h.known(tabID) {
		return browser.ErrTabGone
	}
	h.b.sendLatest(fmt.Sprintf("bar:%d", tabID), SSEEvent{Type: EventBarUpdate, Payload: BarCommand{TabID: tabID, Message: msg}})
	return nil
}

// CreateTab asks the shell to open url. The shell assigns the tab id, so the
// returned Tab carries only the URL; the new tab becomes known once the shell
// reports it.
func (h *RemoteHost) CreateTab(_ context.Context, url string) (browser.Tab, error) {
	if h.b.send(SSEEvent{Type: EventTabCreate, Payload: TabCommand{RequestID: uuid.NewString(), URL: url}}) == 0 {
		return browser.Tab{}, fmt.Errorf("no extension connected to open %s", url)
	}
	return browser.Tab{URL: url}, nil
}

func (h *RemoteHost) RemoveTab(_ context.Context, id int) error {
	h.mu.Lock()
	_, ok := h.tabs[id]
	h.dropLocked(id)
	h.mu.Unlock()
	if !ok {
		return browser.ErrTabGone
	}
	h.b.send(SSEEvent{Type: EventTabRemove, Payload: TabCommand{TabID: id}})
	return nil
}

// Report applies a shell report to the tab table and forwards the matching
// browser event to the coordinator.
func (h *RemoteHost) Report(ctx context.Context, ev HostEvent) error {
	var out browser.Event
	h.mu.Lock()
	switch ev.Type {
	case HostTabsSnapshot:
		h.tabs = make(map[int]browser.Tab, len(ev.Tabs))
		h.order = h.order[:0]
		for _, t := range ev.Tabs {
			h.putLocked(t)
		}
	case HostTabUpdated:
		t := h.tabs[ev.TabID]
		t.ID = ev.TabID
		if ev.URL != "" {
			t.URL = ev.URL
		}
		h.putLocked(t)
		out = browser.TabUpdated{TabID: ev.TabID, Status: ev.Status, URL: ev.URL}
	case HostTabActivated:
		t := h.tabs[ev.TabID]
		t.ID = ev.TabID
		t.Active = true
		t.WindowFocused = ev.WindowFocused == nil || *ev.WindowFocused
		if ev.URL != "" {
			t.URL = ev.URL
		}
		for id, other := range h.tabs {
			other.Active = false
			h.tabs[id] = other
		}
		h.putLocked(t)
		out = browser.TabActivated{TabID: ev.TabID}
	case HostTabRemoved:
		h.dropLocked(ev.TabID)
		out = browser.TabRemoved{TabID: ev.TabID}
	case HostInstalled:
		out = browser.Installed{Reason: ev.Reason}
	default:
		h.mu.Unlock()
		return fmt.Errorf("unknown host event %q", ev.Type)
	}
	closed := h.closed
	h.mu.Unlock()

	if out == nil || closed {
		return nil
	}
	select {
	case h.events <- out:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		slog.Warn("gateway: host event dropped", "type", ev.Type, "tab", ev.TabID)
		return ctx.Err()
	}
}

func (h *RemoteHost) known(id int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.tabs[id]
	return ok
}

func (h *RemoteHost) putLocked(t browser.Tab) {
	if _, ok := h.tabs[t.ID]; !ok {
		h.order = append(h.order, t.ID)
	}
	h.tabs[t.ID] = t
}

func (h *RemoteHost) dropLocked(id int) {
	delete(h.tabs, id)
	for i, v := range h.order {
		if v == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}
