// Package badge paints the per-tab toolbar icon: idle, loading, score and
// failed. Every operation supersedes whatever the tab showed before,
// including a running loading animation.
package badge

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/siteray/siteray-agent/internal/browser"
	"github.com/siteray/siteray-agent/internal/icon"
	"github.com/siteray/siteray-agent/models"
)

// FrameInterval is the delay between loading-animation frames.
const FrameInterval = 120 * time.Millisecond

// IconSetter applies an icon to a tab. browser.Host satisfies it.
type IconSetter interface {
	SetIcon(ctx context.Context, tabID int, set icon.Set) error
}

// Renderer owns the badge state of every tab. It is safe for concurrent use.
type Renderer struct {
	host     IconSetter
	interval time.Duration

	mu sync.Mutex
	// gen is bumped by every operation on a tab; an icon is only applied if
	// the generation it was rendered for is still current.
	gen   map[int]uint64
	anims map[int]context.CancelFunc
}

// Option customises a Renderer.
type Option func(*Renderer)

// WithFrameInterval overrides FrameInterval.
func WithFrameInterval(d time.Duration) Option {
	return func(r *Renderer) { r.interval = d }
}

// NewRenderer returns a renderer painting through host.
func NewRenderer(host IconSetter, opts ...Option) *Renderer {
	r := &Renderer{
		host:     host,
		interval: FrameInterval,
		gen:      make(map[int]uint64),
		anims:    make(map[int]context.CancelFunc),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetScore shows a completed scan in the given display mode.
func (r *Renderer) SetScore(ctx context.Context, tabID, score int, level models.RiskLevel, mode models.IconDisplayMode) {
	g := r.begin(tabID)
	var set icon.Set
	if mode == models.IconNumbers {
		set = icon.Render(func(size int) *icon.Canvas { return icon.Score(size, score, level) })
	} else {
		set = icon.Render(func(size int) *icon.Canvas { return icon.Symbol(size, level) })
	}
	r.apply(ctx, tabID, g, set)
}

// Clear shows the idle icon.
func (r *Renderer) Clear(ctx context.Context, tabID int) {
	g := r.begin(tabID)
	r.apply(ctx, tabID, g, icon.NeutralSet())
}

// SetFailed shows the failed-scan icon.
func (r *Renderer) SetFailed(ctx context.Context, tabID int) {
	g := r.begin(tabID)
	r.apply(ctx, tabID, g, icon.FailedSet())
}

// SetLoading applies the first spinner frame before returning, then animates
// the remaining frames until superseded, stopped or the tab disappears.
func (r *Renderer) SetLoading(ctx context.Context, tabID int) {
	g := r.begin(tabID)
	if !r.apply(ctx, tabID, g, icon.SpinnerSet(0)) {
		return
	}

	actx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	if r.gen[tabID] != g {
		r.mu.Unlock()
		cancel()
		return
	}
	r.anims[tabID] = cancel
	r.mu.Unlock()

	go r.animate(actx, tabID, g)
}

func (r *Renderer) animate(ctx context.Context, tabID int, g uint64) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	frame := 1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !r.apply(ctx, tabID, g, icon.SpinnerSet(frame)) {
			r.finish(tabID, g)
			return
		}
		frame = (frame + 1) % icon.SpinnerFrames
	}
}

// Stop cancels the tab's animation, if any, leaving the current icon.
func (r *Renderer) Stop(tabID int) {
	r.begin(tabID)
}

// Forget cancels the tab's animation and drops all state for it. Called
// when a tab is closed.
func (r *Renderer) Forget(tabID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.anims[tabID]; ok {
		cancel()
		delete(r.anims, tabID)
	}
	delete(r.gen, tabID)
}

// StopAll cancels every running animation.
func (r *Renderer) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, cancel := range r.anims {
		cancel()
		delete(r.anims, id)
		r.gen[id]++
	}
}

// Animating reports whether a loading animation is running for the tab.
func (r *Renderer) Animating(tabID int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.anims[tabID]
	return ok
}

// ActiveAnimations returns the number of running loading animations.
func (r *Renderer) ActiveAnimations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.anims)
}

// begin cancels any animation on the tab and returns a new generation.
func (r *Renderer) begin(tabID int) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cancel, ok := r.anims[tabID]; ok {
		cancel()
		delete(r.anims, tabID)
	}
	r.gen[tabID]++
	return r.gen[tabID]
}

// finish removes the animation registered for generation g, if it is still
// the tab's current one.
func (r *Renderer) finish(tabID int, g uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen[tabID] != g {
		return
	}
	if cancel, ok := r.anims[tabID]; ok {
		cancel()
		delete(r.anims, tabID)
	}
}

// apply sets the icon if g is still the tab's current generation. It
// reports false when the icon could not be applied; a vanished tab is not
// logged.
func (r *Renderer) apply(ctx context.Context, tabID int, g uint64, set icon.Set) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen[tabID] != g {
		return false
	}
	if err := r.host.SetIcon(ctx, tabID, set); err != nil {
		if !errors.Is(err, browser.ErrTabGone) && !errors.Is(err, context.Canceled) {
			slog.Debug("badge: set icon failed", "tab", tabID, "error", err)
		}
		return false
	}
	return true
}
