package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/siteray/siteray-agent/internal/storage"
	"github.com/siteray/siteray-agent/models"
)

type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]*models.LookupResponse
	err     error
	calls   int
	block   chan struct{}
}

func (f *fakeFetcher) FreshLookup(ctx context.Context, domain string) (*models.LookupResponse, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.results[domain]; ok {
		return r, nil
	}
	return running(), nil
}

func (f *fakeFetcher) set(domain string, r *models.LookupResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = map[string]*models.LookupResponse{}
	}
	f.results[domain] = r
}

type outcome struct {
	domain string
	reason Reason
	lookup *models.LookupResponse
}

type fakeSink struct {
	mu        sync.Mutex
	completed []outcome
	failed    []outcome
}

func (s *fakeSink) ScanCompleted(_ context.Context, domain string, lookup *models.LookupResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, outcome{domain: domain, lookup: lookup})
}

func (s *fakeSink) ScanFailed(_ context.Context, domain string, reason Reason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, outcome{domain: domain, reason: reason})
}

func running() *models.LookupResponse {
	return &models.LookupResponse{Success: true, RunningScan: &models.RunningScan{ScanID: "s1", Status: models.ScanRunning}}
}

func completed() *models.LookupResponse {
	score := 91
	return &models.LookupResponse{Success: true, Scan: &models.ScanSummary{ID: "s1", TrustScore: &score, RiskLevel: models.RiskGreen}}
}

func newTestPoller(t *testing.T, kv storage.KV, f *fakeFetcher, s *fakeSink, opts ...Option) *Poller {
	t.Helper()
	p, err := New(kv, f, s, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestTrackIsIdempotent(t *testing.T) {
	ctx := context.Background()
	now := time.UnixMilli(1_000)
	p := newTestPoller(t, storage.NewMemory(), &fakeFetcher{}, &fakeSink{}, WithClock(func() time.Time { return now }))

	if err := p.Track(ctx, "example.com"); err != nil {
		t.Fatalf("Track: %v", err)
	}
	p.Tick(ctx)
	now = time.UnixMilli(9_000)
	if err := p.Track(ctx, "example.com"); err != nil {
		t.Fatalf("second Track: %v", err)
	}
	state, _ := p.State(ctx)
	if got := state["example.com"]; got != (Entry{StartTime: 1_000, Attempts: 1}) {
		t.Fatalf("entry = %+v, want unchanged", got)
	}
	if !p.Armed() {
		t.Fatal("wake not armed while tracking")
	}
}

func TestGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	f := &fakeFetcher{}
	p := newTestPoller(t, storage.NewMemory(), f, sink)
	if err := p.Track(ctx, "slow.com"); err != nil {
		t.Fatalf("Track: %v", err)
	}

	for range DefaultMaxAttempts {
		p.Tick(ctx)
	}
	state, _ := p.State(ctx)
	if state["slow.com"].Attempts != DefaultMaxAttempts {
		t.Fatalf("attempts = %d, want %d", state["slow.com"].Attempts, DefaultMaxAttempts)
	}
	if len(sink.failed) != 0 {
		t.Fatal("failure reported too early")
	}

	p.Tick(ctx)
	state, _ = p.State(ctx)
	if _, ok := state["slow.com"]; ok {
		t.Fatal("domain still tracked after exceeding max attempts")
	}
	if len(sink.failed) != 1 || sink.failed[0].reason != ReasonTimeout {
		t.Fatalf("failures = %+v", sink.failed)
	}
	if f.calls != DefaultMaxAttempts {
		t.Fatalf("lookups = %d, want %d", f.calls, DefaultMaxAttempts)
	}
	if p.Armed() {
		t.Fatal("wake still armed with nothing tracked")
	}
}

func TestCompletedScanIsReported(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	f := &fakeFetcher{}
	p := newTestPoller(t, storage.NewMemory(), f, sink)
	_ = p.Track(ctx, "a.com")
	_ = p.Track(ctx, "b.com")

	f.set("a.com", completed())
	p.Tick(ctx)

	if len(sink.completed) != 1 || sink.completed[0].domain != "a.com" {
		t.Fatalf("completed = %+v", sink.completed)
	}
	if *sink.completed[0].lookup.Scan.TrustScore != 91 {
		t.Fatal("completion did not carry the lookup")
	}
	state, _ := p.State(ctx)
	if _, ok := state["a.com"]; ok {
		t.Fatal("completed domain still tracked")
	}
	if _, ok := state["b.com"]; !ok {
		t.Fatal("running domain no longer tracked")
	}
	if !p.Armed() {
		t.Fatal("wake disarmed while b.com is tracked")
	}
}

func TestExplicitFailure(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSink{}
	f := &fakeFetcher{}
	f.set("bad.com", &models.LookupResponse{Success: true, FailedScan: &models.FailedScan{ScanID: "s9"}})
	p := newTestPoller(t, storage.NewMemory(), f, sink)
	_ = p.Track(ctx, "bad.com")
	p.Tick(ctx)
	if len(sink.failed) != 1 || sink.failed[0].reason != ReasonScanFailed {
		t.Fatalf("failures = %+v", sink.failed)
	}
}

func TestLookupErrorKeepsTracking(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{err: errors.New("network down")}
	p := newTestPoller(t, storage.NewMemory(), f, &fakeSink{})
	_ = p.Track(ctx, "x.com")
	p.Tick(ctx)
	state, _ := p.State(ctx)
	if state["x.com"].Attempts != 1 {
		t.Fatalf("state = %+v", state)
	}
}

func TestConcurrentTickIsDropped(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{block: make(chan struct{})}
	p := newTestPoller(t, storage.NewMemory(), f, &fakeSink{})
	_ = p.Track(ctx, "x.com")

	done := make(chan struct{})
	go func() {
		p.Tick(ctx)
		close(done)
	}()
	// Wait until the first tick is inside the lookup.
	deadline := time.Now().Add(2 * time.Second)
	for {
		f.mu.Lock()
		calls := f.calls
		f.mu.Unlock()
		if calls == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first tick never reached the lookup")
		}
		time.Sleep(time.Millisecond)
	}

	p.Tick(ctx)
	close(f.block)
	<-done

	state, _ := p.State(ctx)
	if state["x.com"].Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", state["x.com"].Attempts)
	}
}

func TestStopCancelsWakeTick(t *testing.T) {
	ctx := context.Background()
	f := &fakeFetcher{block: make(chan struct{})}
	p := newTestPoller(t, storage.NewMemory(), f, &fakeSink{}, WithSchedule("@every 1s"))
	if err := p.Track(ctx, "x.com"); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		f.mu.Lock()
		calls := f.calls
		f.mu.Unlock()
		if calls > 0 {
			break
		}
		if time.Now().After(deadline) {
			p.Stop()
			t.Fatal("wake never reached the lookup")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		close(f.block)
		t.Fatal("Stop waited on a blocked lookup")
	}

	state, _ := p.State(ctx)
	if _, ok := state["x.com"]; !ok {
		t.Fatal("cancelled lookup untracked the domain")
	}
}

func TestStartResumesPersistedState(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	if err := kv.Set(ctx, storage.KeyPollingState, State{"x.com": {StartTime: 5, Attempts: 3}}); err != nil {
		t.Fatalf("seeding state: %v", err)
	}
	p := newTestPoller(t, kv, &fakeFetcher{}, &fakeSink{})
	if p.Armed() {
		t.Fatal("armed before Start")
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	if !p.Armed() {
		t.Fatal("persisted state did not re-arm the wake signal")
	}
}

func TestStartWithNothingTracked(t *testing.T) {
	p := newTestPoller(t, storage.NewMemory(), &fakeFetcher{}, &fakeSink{})
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()
	if p.Armed() {
		t.Fatal("armed with empty state")
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	p := newTestPoller(t, storage.NewMemory(), &fakeFetcher{}, &fakeSink{})
	_ = p.Track(ctx, "x.com")
	if err := p.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	state, _ := p.State(ctx)
	if len(state) != 0 || p.Armed() {
		t.Fatalf("state = %+v armed = %v", state, p.Armed())
	}
}

func TestInvalidSchedule(t *testing.T) {
	if _, err := New(storage.NewMemory(), &fakeFetcher{}, &fakeSink{}, WithSchedule("every minute")); err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}
