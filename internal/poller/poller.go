// Package poller follows running scans until they complete, fail or run out
// of attempts. Tracking state lives in a storage.KV so it survives restarts;
// the poller itself holds no authority between ticks and reloads the state
// before every change.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/siteray/siteray-agent/internal/storage"
	"github.com/siteray/siteray-agent/models"
)

const (
	// DefaultSchedule is the wake signal period.
	DefaultSchedule = "@every 1m"
	// DefaultMaxAttempts is the number of ticks a scan may stay unresolved.
	DefaultMaxAttempts = 10
)

// Reason says why tracking ended without a result.
type Reason string

const (
	// ReasonScanFailed means the service reported the scan as failed.
	ReasonScanFailed Reason = "scan_failed"
	// ReasonTimeout means the scan stayed unresolved for too many ticks.
	ReasonTimeout Reason = "timeout"
)

// Entry is the persisted tracking record of one domain.
type Entry struct {
	// StartTime is when tracking began, in Unix milliseconds.
	StartTime int64 `json:"startTime"`
	Attempts  int   `json:"attempts"`
}

// State maps tracked domains to their entries.
type State map[string]Entry

// Fetcher returns a fresh lookup for a domain, bypassing and refreshing any
// cache.
type Fetcher interface {
	FreshLookup(ctx context.Context, domain string) (*models.LookupResponse, error)
}

// Sink receives the outcome of a tracked scan.
type Sink interface {
	ScanCompleted(ctx context.Context, domain string, lookup *models.LookupResponse)
	ScanFailed(ctx context.Context, domain string, reason Reason)
}

// Poller is safe for concurrent use.
type Poller struct {
	kv          storage.KV
	fetch       Fetcher
	sink        Sink
	schedule    string
	maxAttempts int
	now         func() time.Time

	cron *cron.Cron
	// base is the context of wake-driven ticks; Stop cancels it.
	base   context.Context
	cancel context.CancelFunc

	// mu serialises state load/modify/save sequences and guards the wake
	// entry.
	mu      sync.Mutex
	armed   bool
	entryID cron.EntryID

	ticking atomic.Bool
}

// Option customises a Poller.
type Option func(*Poller)

// WithSchedule overrides DefaultSchedule.
func WithSchedule(spec string) Option {
	return func(p *Poller) {
		if spec != "" {
			p.schedule = spec
		}
	}
}

// WithMaxAttempts overrides DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// New returns a Poller. The wake runner does not fire until Start is called.
func New(kv storage.KV, fetch Fetcher, sink Sink, opts ...Option) (*Poller, error) {
	p := &Poller{
		kv:          kv,
		fetch:       fetch,
		sink:        sink,
		schedule:    DefaultSchedule,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		cron:        cron.New(),
	}
	p.base, p.cancel = context.WithCancel(context.Background())
	for _, o := range opts {
		o(p)
	}
	if _, err := cron.ParseStandard(p.schedule); err != nil {
		return nil, fmt.Errorf("invalid poll schedule %q: %w", p.schedule, err)
	}
	return p, nil
}

// Start runs the wake runner and resumes polling for any domains left
// tracked by a previous process.
func (p *Poller) Start(ctx context.Context) error {
	p.cron.Start()
	state, err := p.load(ctx)
	if err != nil {
		return err
	}
	if len(state) > 0 {
		p.mu.Lock()
		p.arm()
		p.mu.Unlock()
		slog.Info("poller: resuming", "domains", len(state))
	}
	return nil
}

// Stop halts the wake runner, cancels a running wake tick and waits for it
// to return.
func (p *Poller) Stop() {
	p.cancel()
	<-p.cron.Stop().Done()
}

// Track begins following a domain's running scan. Tracking a domain that is
// already tracked leaves its state unchanged.
func (p *Poller) Track(ctx context.Context, domain string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, err := p.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := state[domain]; ok {
		return nil
	}
	state[domain] = Entry{StartTime: p.now().UnixMilli()}
	if err := p.save(ctx, state); err != nil {
		return err
	}
	slog.Info("poller: tracking", "domain", domain)
	p.arm()
	return nil
}

// Tick polls every tracked domain once. A tick that arrives while another is
// running is dropped.
func (p *Poller) Tick(ctx context.Context) {
	if !p.ticking.CompareAndSwap(false, true) {
		slog.Debug("poller: tick already running, dropping wake")
		return
	}
	defer p.ticking.Store(false)

	state, err := p.load(ctx)
	if err != nil {
		slog.Warn("poller: loading state failed", "error", err)
		return
	}
	for _, domain := range sortedDomains(state) {
		p.poll(ctx, domain)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if state, err := p.load(ctx); err == nil && len(state) == 0 {
		p.disarm()
	}
}

func (p *Poller) poll(ctx context.Context, domain string) {
	attempts, tracked, err := p.bump(ctx, domain)
	if err != nil {
		slog.Warn("poller: updating state failed", "domain", domain, "error", err)
		return
	}
	if !tracked {
		return
	}
	if attempts > p.maxAttempts {
		if p.untrack(ctx, domain) {
			slog.Info("poller: giving up", "domain", domain, "attempts", attempts-1)
			p.sink.ScanFailed(ctx, domain, ReasonTimeout)
		}
		return
	}

	lookup, err := p.fetch.FreshLookup(ctx, domain)
	if err != nil {
		slog.Warn("poller: lookup failed", "domain", domain, "attempt", attempts, "error", err)
		return
	}
	switch {
	case lookup.Completed():
		if p.untrack(ctx, domain) {
			slog.Info("poller: scan complete", "domain", domain, "attempts", attempts)
			p.sink.ScanCompleted(ctx, domain, lookup)
		}
	case lookup.Failed():
		if p.untrack(ctx, domain) {
			slog.Info("poller: scan failed", "domain", domain, "scan_id", lookup.FailedScan.ScanID)
			p.sink.ScanFailed(ctx, domain, ReasonScanFailed)
		}
	default:
		slog.Debug("poller: scan still running", "domain", domain, "attempt", attempts)
	}
}

// bump increments a domain's attempt counter and returns the new value.
func (p *Poller) bump(ctx context.Context, domain string) (int, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, err := p.load(ctx)
	if err != nil {
		return 0, false, err
	}
	e, ok := state[domain]
	if !ok {
		return 0, false, nil
	}
	e.Attempts++
	state[domain] = e
	return e.Attempts, true, p.save(ctx, state)
}

// untrack removes a domain and reports whether it was still tracked, so a
// concurrent Clear cannot produce a stale outcome.
func (p *Poller) untrack(ctx context.Context, domain string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	state, err := p.load(ctx)
	if err != nil {
		slog.Warn("poller: loading state failed", "error", err)
		return false
	}
	if _, ok := state[domain]; !ok {
		return false
	}
	delete(state, domain)
	if err := p.save(ctx, state); err != nil {
		slog.Warn("poller: saving state failed", "domain", domain, "error", err)
		return false
	}
	if len(state) == 0 {
		p.disarm()
	}
	return true
}

// Clear stops tracking every domain.
func (p *Poller) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disarm()
	if err := p.kv.Remove(ctx, storage.KeyPollingState); err != nil {
		return fmt.Errorf("clearing polling state: %w", err)
	}
	return nil
}

// State returns a copy of the persisted tracking state.
func (p *Poller) State(ctx context.Context) (State, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load(ctx)
}

// Armed reports whether the wake signal is scheduled.
func (p *Poller) Armed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.armed
}

// arm schedules the wake signal if it is not already. Callers hold mu.
func (p *Poller) arm() {
	if p.armed {
		return
	}
	id, err := p.cron.AddFunc(p.schedule, func() { p.Tick(p.base) })
	if err != nil {
		// The schedule was validated in New.
		slog.Error("poller: scheduling wake failed", "schedule", p.schedule, "error", err)
		return
	}
	p.entryID = id
	p.armed = true
	slog.Debug("poller: wake armed", "schedule", p.schedule)
}

// disarm cancels the wake signal. Callers hold mu.
func (p *Poller) disarm() {
	if !p.armed {
		return
	}
	p.cron.Remove(p.entryID)
	p.armed = false
	slog.Debug("poller: wake disarmed")
}

func (p *Poller) load(ctx context.Context) (State, error) {
	state := State{}
	if _, err := p.kv.Get(ctx, storage.KeyPollingState, &state); err != nil {
		return nil, fmt.Errorf("loading polling state: %w", err)
	}
	if state == nil {
		state = State{}
	}
	return state, nil
}

func (p *Poller) save(ctx context.Context, state State) error {
	if err := p.kv.Set(ctx, storage.KeyPollingState, state); err != nil {
		return fmt.Errorf("saving polling state: %w", err)
	}
	return nil
}

func sortedDomains(state State) []string {
	out := make([]string, 0, len(state))
	for d := range state {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
