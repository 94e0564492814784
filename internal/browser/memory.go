package browser

import (
	"context"
	"sync"

	"github.com/siteray/siteray-agent/internal/icon"
)

// Memory is an in-process Host. It records every icon and content message
// applied per tab so callers can inspect the resulting browser state.
type Memory struct {
	mu       sync.Mutex
	tabs     map[int]Tab
	order    []int
	nextID   int
	icons    map[int]icon.Set
	iconSets map[int]int
	messages map[int][]ContentMessage
	created  []string
	events   chan Event
}

// NewMemory returns an empty host whose event channel buffers up to 64
// events.
func NewMemory() *Memory {
	return &Memory{
		tabs:     make(map[int]Tab),
		nextID:   1,
		icons:    make(map[int]icon.Set),
		iconSets: make(map[int]int),
		messages: make(map[int][]ContentMessage),
		events:   make(chan Event, 64),
	}
}

// PutTab adds or replaces a tab. When t is active, every other tab becomes
// inactive.
func (m *Memory) PutTab(t Tab) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tabs[t.ID]; !ok {
		m.order = append(m.order, t.ID)
	}
	if t.Active {
		for id, other := range m.tabs {
			other.Active = false
			m.tabs[id] = other
		}
	}
	m.tabs[t.ID] = t
	if t.ID >= m.nextID {
		m.nextID = t.ID + 1
	}
}

// DropTab forgets a tab without emitting an event.
func (m *Memory) DropTab(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropLocked(id)
}

func (m *Memory) dropLocked(id int) {
	delete(m.tabs, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Emit queues an event for the consumer of Events.
func (m *Memory) Emit(ev Event) { m.events <- ev }

// Close closes the event channel.
func (m *Memory) Close() { close(m.events) }

func (m *Memory) Events() <-chan Event { return m.events }

func (m *Memory) QueryTabs(_ context.Context, q TabQuery) ([]Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Tab
	for _, id := range m.order {
		if t := m.tabs[id]; q.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *Memory) GetTab(_ context.Context, id int) (Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[id]
	if !ok {
		return Tab{}, ErrTabGone
	}
	return t, nil
}

func (m *Memory) SetIcon(_ context.Context, tabID int, set icon.Set) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tabs[tabID]; !ok {
		return ErrTabGone
	}
	m.icons[tabID] = set
	m.iconSets[tabID]++
	return nil
}

func (m *Memory) SendToTab(_ context.Context, tabID int, msg ContentMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tabs[tabID]; !ok {
		return ErrTabGone
	}
	m.messages[tabID] = append(m.messages[tabID], msg)
	return nil
}

func (m *Memory) CreateTab(_ context.Context, url string) (Tab, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := Tab{ID: m.nextID, URL: url}
	m.nextID++
	m.tabs[t.ID] = t
	m.order = append(m.order, t.ID)
	m.created = append(m.created, url)
	return t, nil
}

func (m *Memory) RemoveTab(_ context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tabs[id]; !ok {
		return ErrTabGone
	}
	m.dropLocked(id)
	return nil
}

// Icon returns the icon most recently applied to a tab.
func (m *Memory) Icon(tabID int) icon.Set {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.icons[tabID]
}

// IconWrites returns how many times an icon was applied to a tab.
func (m *Memory) IconWrites(tabID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.iconSets[tabID]
}

// Messages returns the content messages sent to a tab, oldest first.
func (m *Memory) Messages(tabID int) []ContentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ContentMessage(nil), m.messages[tabID]...)
}

// Created returns the URLs of every tab opened through CreateTab.
func (m *Memory) Created() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.created...)
}
