package background

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/siteray/siteray-agent/internal/badge"
	"github.com/siteray/siteray-agent/internal/browser"
	"github.com/siteray/siteray-agent/internal/config"
	"github.com/siteray/siteray-agent/internal/icon"
	"github.com/siteray/siteray-agent/internal/messages"
	"github.com/siteray/siteray-agent/internal/notify"
	"github.com/siteray/siteray-agent/internal/poller"
	"github.com/siteray/siteray-agent/internal/storage"
	"github.com/siteray/siteray-agent/models"
)

// fakeService is an in-process stand-in for the remote API.
type fakeService struct {
	mu      sync.Mutex
	lookups map[string]*models.LookupResponse
	scans   int
	queries int
}

// requests reports how many lookups and scan triggers reached the service.
func (f *fakeService) requests() (lookups, scans int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries, f.scans
}

func (f *fakeService) complete(d string, score int, level models.RiskLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups[d] = &models.LookupResponse{
		Success: true,
		Scan:    &models.ScanSummary{ID: "scan-1", NormalizedDomain: d, TrustScore: &score, RiskLevel: level},
	}
}

func (f *fakeService) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	session := map[string]any{
		"success": true,
		"user":    map[string]any{"id": "u1", "email": "a@b.c", "tier": "pro"},
		"tokens":  map[string]string{"accessToken": "tok", "refreshToken": "ref"},
	}
	mux.HandleFunc("POST /api/ext/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["password"] != "pw" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid email or password"})
			return
		}
		writeJSON(w, http.StatusOK, session)
	})
	mux.HandleFunc("POST /api/ext/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("GET /api/ext/lookup", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		f.queries++
		res, ok := f.lookups[r.URL.Query().Get("domain")]
		f.mu.Unlock()
		if !ok {
			_, _ = w.Write([]byte(`{"success":true,"scan":null,"runningScan":null,"failedScan":null}`))
			return
		}
		writeJSON(w, http.StatusOK, res)
	})
	mux.HandleFunc("POST /api/scans", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		u, err := url.Parse(in["url"])
		if err != nil || u.Scheme != "https" {
			t.Errorf("scan url = %q", in["url"])
		}
		f.mu.Lock()
		f.scans++
		f.lookups[u.Hostname()] = &models.LookupResponse{
			Success:     true,
			RunningScan: &models.RunningScan{ScanID: "scan-1", Status: models.ScanQueued},
		}
		f.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "scanId": "scan-1"})
	})
	mux.HandleFunc("GET /api/scans/{id}/rescan-eligibility", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("GET /api/ext/oauth/providers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "providers": []map[string]string{{"id": "github", "name": "GitHub"}}})
	})
	mux.HandleFunc("POST /api/ext/oauth/exchange", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["code"] != "abc" || in["codeVerifier"] == "" || in["provider"] != "github" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, session)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingNotifier) Notify(_ context.Context, evt notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingNotifier) sent() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

type harness struct {
	c     *Coordinator
	host  *browser.Memory
	kv    *storage.Memory
	svc   *fakeService
	notes *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	svc := &fakeService{lookups: map[string]*models.LookupResponse{}}
	srv := httptest.NewServer(svc.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.API.BaseURL = srv.URL
	cfg.API.WebBaseURL = "https://siteray.test"
	host := browser.NewMemory()
	kv := storage.NewMemory()
	notes := &recordingNotifier{}
	c, err := New(Deps{
		Config:       *cfg,
		Host:         host,
		KV:           kv,
		Notifier:     notes,
		BadgeOptions: []badge.Option{badge.WithFrameInterval(time.Hour)},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.badge.StopAll)
	return &harness{c: c, host: host, kv: kv, svc: svc, notes: notes}
}

func (h *harness) send(t *testing.T, raw string) any {
	t.Helper()
	return h.c.HandleRaw(context.Background(), []byte(raw))
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	res, ok := h.send(t, `{"type":"LOGIN","email":"a@b.c","password":"pw"}`).(messages.LoginResult)
	if !ok || !res.Success {
		t.Fatalf("login = %+v", res)
	}
}

func sameIcon(a, b icon.Set) bool {
	for _, size := range icon.Sizes {
		if a[size] == nil || b[size] == nil || string(a[size].Pix) != string(b[size].Pix) {
			return false
		}
	}
	return true
}

func TestScanLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.host.PutTab(browser.Tab{ID: 1, URL: "https://example.com/page", Active: true, WindowFocused: true})
	h.login(t)

	got := h.send(t, `{"type":"GET_LOOKUP","domain":"example.com"}`)
	lookup, ok := got.(*models.LookupResponse)
	if !ok {
		t.Fatalf("GET_LOOKUP = %#v", got)
	}
	if !lookup.Success || lookup.Scan != nil || lookup.RunningScan != nil || lookup.FailedScan != nil {
		t.Fatalf("lookup = %+v, want not scanned", lookup)
	}
	if !sameIcon(h.host.Icon(1), icon.NeutralSet()) {
		t.Fatal("unscanned domain should show the idle badge")
	}

	scan, ok := h.send(t, `{"type":"TRIGGER_SCAN","domain":"example.com"}`).(messages.ScanResult)
	if !ok || !scan.Success || scan.ScanID != "scan-1" {
		t.Fatalf("TRIGGER_SCAN = %+v", scan)
	}
	state, _ := h.c.poller.State(ctx)
	if _, tracked := state["example.com"]; !tracked {
		t.Fatal("triggered scan is not tracked")
	}
	if !h.c.badge.Animating(1) {
		t.Fatal("tab showing the scanned domain is not loading")
	}

	// Still running: nothing changes.
	h.c.poller.Tick(ctx)
	state, _ = h.c.poller.State(ctx)
	if state["example.com"].Attempts != 1 {
		t.Fatalf("state = %+v", state)
	}

	h.svc.complete("example.com", 88, models.RiskGreen)
	h.c.poller.Tick(ctx)

	state, _ = h.c.poller.State(ctx)
	if len(state) != 0 {
		t.Fatalf("tracking not removed: %+v", state)
	}
	want := icon.Render(func(size int) *icon.Canvas { return icon.Symbol(size, models.RiskGreen) })
	if !sameIcon(h.host.Icon(1), want) {
		t.Fatal("completed scan did not paint the score badge")
	}
	if h.c.badge.Animating(1) {
		t.Fatal("loading animation survived completion")
	}
	msgs := h.host.Messages(1)
	last := msgs[len(msgs)-1]
	if last.Type != browser.UpdateBar || last.Data == nil || last.Data.RiskLevel != models.RiskGreen {
		t.Fatalf("last content message = %+v", last)
	}
	if h.c.poller.Armed() {
		t.Fatal("wake still armed after the last scan resolved")
	}
	events := h.notes.sent()
	if len(events) != 1 {
		t.Fatalf("notifications = %+v, want one", events)
	}
	evt := events[0]
	if evt.Type != notify.EventScanCompleted || evt.Domain != "example.com" || evt.Risk != models.RiskGreen {
		t.Fatalf("notification = %+v", evt)
	}
	if evt.URL != "https://siteray.test/scan/scan-1" {
		t.Fatalf("notification URL = %q", evt.URL)
	}
}

func TestScanFailedPaintsAndNotifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.host.PutTab(browser.Tab{ID: 1, URL: "https://slow.example/", Active: true, WindowFocused: true})
	h.host.PutTab(browser.Tab{ID: 2, URL: "https://other.example/"})

	h.c.ScanFailed(ctx, "slow.example", poller.ReasonTimeout)

	if !sameIcon(h.host.Icon(1), icon.FailedSet()) {
		t.Fatal("tab showing the domain did not get the failed badge")
	}
	if h.host.Icon(2) != nil {
		t.Fatal("unrelated tab was repainted")
	}
	events := h.notes.sent()
	if len(events) != 1 || events[0].Type != notify.EventScanTimedOut || events[0].Domain != "slow.example" {
		t.Fatalf("notifications = %+v", events)
	}
}

func TestInvalidMessage(t *testing.T) {
	h := newHarness(t)
	for _, raw := range []string{`{"type":"GET_LOOKUP"}`, `{"type":"WHAT"}`, `nope`} {
		if got := h.send(t, raw); got != messages.Invalid() {
			t.Fatalf("%s -> %#v", raw, got)
		}
	}
}

func TestLoginFailureMessage(t *testing.T) {
	h := newHarness(t)
	res := h.send(t, `{"type":"LOGIN","email":"a@b.c","password":"nope"}`).(messages.LoginResult)
	if res.Success || res.Error != "Invalid email or password" {
		t.Fatalf("login = %+v", res)
	}
	if got := h.send(t, `{"type":"GET_AUTH"}`); got != nil {
		t.Fatalf("GET_AUTH after failed login = %#v", got)
	}
}

func TestLogoutClearsEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.host.PutTab(browser.Tab{ID: 1, URL: "https://a.com", Active: true, WindowFocused: true})
	h.host.PutTab(browser.Tab{ID: 2, URL: "https://b.com"})
	h.login(t)
	h.send(t, `{"type":"TRIGGER_SCAN","domain":"b.com"}`)
	h.send(t, `{"type":"GET_LOOKUP","domain":"b.com"}`)
	if h.c.cache.Len() == 0 || !h.c.badge.Animating(2) {
		t.Fatal("setup did not cache or animate")
	}

	if res := h.send(t, `{"type":"LOGOUT"}`); res != messages.OK() {
		t.Fatalf("LOGOUT = %#v", res)
	}
	if got := h.send(t, `{"type":"GET_AUTH"}`); got != nil {
		t.Fatalf("GET_AUTH after logout = %#v", got)
	}
	if h.c.cache.Len() != 0 {
		t.Fatal("cache not cleared")
	}
	if h.c.badge.ActiveAnimations() != 0 {
		t.Fatal("animations not stopped")
	}
	if state, _ := h.c.poller.State(ctx); len(state) != 0 {
		t.Fatalf("poll state = %+v", state)
	}
	for _, id := range []int{1, 2} {
		if !sameIcon(h.host.Icon(id), icon.NeutralSet()) {
			t.Fatalf("tab %d not repainted idle", id)
		}
		msgs := h.host.Messages(id)
		if len(msgs) == 0 || msgs[len(msgs)-1].Data != nil {
			t.Fatalf("tab %d bar not hidden: %+v", id, msgs)
		}
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	h := newHarness(t)
	if got := h.send(t, `{"type":"GET_SETTINGS"}`); got != models.DefaultSettings() {
		t.Fatalf("default settings = %#v", got)
	}
	if res := h.send(t, `{"type":"SET_SETTINGS","settings":{"iconDisplayMode":"numbers","trustBarSize":4}}`); res != messages.OK() {
		t.Fatalf("SET_SETTINGS = %#v", res)
	}
	want := models.ExtensionSettings{
		IconDisplayMode:  models.IconNumbers,
		TrustBarEnabled:  true,
		TrustBarPosition: models.BarTop,
		TrustBarSize:     4,
	}
	if got := h.send(t, `{"type":"GET_SETTINGS"}`); got != want {
		t.Fatalf("settings = %#v, want %#v", got, want)
	}
	if res := h.send(t, `{"type":"SET_SETTINGS","settings":{"trustBarPosition":"left"}}`); res != messages.Invalid() {
		t.Fatalf("invalid settings accepted: %#v", res)
	}
}

func TestSetSettingsRepaintsInNumbersMode(t *testing.T) {
	h := newHarness(t)
	h.host.PutTab(browser.Tab{ID: 1, URL: "https://example.com", Active: true, WindowFocused: true})
	h.svc.complete("example.com", 42, models.RiskYellow)
	h.login(t)

	h.send(t, `{"type":"SET_SETTINGS","settings":{"iconDisplayMode":"numbers"}}`)
	want := icon.Render(func(size int) *icon.Canvas { return icon.Score(size, 42, models.RiskYellow) })
	if !sameIcon(h.host.Icon(1), want) {
		t.Fatal("settings change did not repaint the numeric badge")
	}
}

func TestGetBarData(t *testing.T) {
	h := newHarness(t)
	if got := h.send(t, `{"type":"GET_BAR_DATA","domain":"example.com"}`); got != nil {
		t.Fatalf("logged out bar = %#v", got)
	}
	h.login(t)
	if got := h.send(t, `{"type":"GET_BAR_DATA","domain":"example.com"}`); got != nil {
		t.Fatalf("unscanned bar = %#v", got)
	}
	h.svc.complete("red.com", 12, models.RiskRed)
	bar, ok := h.send(t, `{"type":"GET_BAR_DATA","domain":"red.com"}`).(*models.TrustBarData)
	if !ok || bar.RiskLevel != models.RiskRed || bar.Position != models.BarTop || bar.Size != 2 {
		t.Fatalf("bar = %#v", bar)
	}
	h.send(t, `{"type":"SET_SETTINGS","settings":{"trustBarEnabled":false}}`)
	if got := h.send(t, `{"type":"GET_BAR_DATA","domain":"red.com"}`); got != nil {
		t.Fatalf("disabled bar = %#v", got)
	}
}

func TestCheckRescanFallback(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	got := h.send(t, `{"type":"CHECK_RESCAN","scanId":"scan-1"}`)
	if got != (models.RescanEligibility{Eligible: true}) {
		t.Fatalf("CHECK_RESCAN = %#v", got)
	}
}

func TestLookupWhenLoggedOut(t *testing.T) {
	h := newHarness(t)
	res, ok := h.send(t, `{"type":"GET_LOOKUP","domain":"example.com"}`).(messages.Result)
	if !ok || res.Success || res.Error != "Not authenticated" {
		t.Fatalf("GET_LOOKUP = %#v", res)
	}
}

func TestTabEvents(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.host.PutTab(browser.Tab{ID: 1, URL: "http://192.168.1.5/admin"})
	h.host.PutTab(browser.Tab{ID: 2, URL: "https://example.com"})

	h.c.HandleEvent(ctx, browser.TabUpdated{TabID: 1, Status: browser.TabStatusComplete, URL: "http://192.168.1.5/admin"})
	if !sameIcon(h.host.Icon(1), icon.NeutralSet()) {
		t.Fatal("local page should show the idle badge")
	}

	// Logged out: idle, no lookup.
	h.c.HandleEvent(ctx, browser.TabActivated{TabID: 2})
	if !sameIcon(h.host.Icon(2), icon.NeutralSet()) {
		t.Fatal("logged-out tab should show the idle badge")
	}

	h.login(t)
	h.svc.mu.Lock()
	h.svc.lookups["example.com"] = &models.LookupResponse{Success: true, RunningScan: &models.RunningScan{ScanID: "s", Status: models.ScanRunning}}
	h.svc.mu.Unlock()
	h.c.HandleEvent(ctx, browser.TabUpdated{TabID: 2, Status: "loading", URL: "https://example.com"})
	if h.c.badge.Animating(2) {
		t.Fatal("loading status should be ignored")
	}
	h.c.HandleEvent(ctx, browser.TabUpdated{TabID: 2, Status: browser.TabStatusComplete, URL: "https://example.com"})
	if !h.c.badge.Animating(2) {
		t.Fatal("running scan should animate the badge")
	}
	state, _ := h.c.poller.State(ctx)
	if _, ok := state["example.com"]; !ok {
		t.Fatal("discovered running scan is not tracked")
	}

	h.c.HandleEvent(ctx, browser.TabRemoved{TabID: 2})
	if h.c.badge.Animating(2) {
		t.Fatal("animation survived tab removal")
	}
}

func TestInstallOpensOnboarding(t *testing.T) {
	h := newHarness(t)
	h.c.HandleEvent(context.Background(), browser.Installed{Reason: "update"})
	h.c.HandleEvent(context.Background(), browser.Installed{Reason: browser.InstallReasonInstall})
	if got := h.host.Created(); len(got) != 1 || got[0] != "https://siteray.test/onboarding" {
		t.Fatalf("created tabs = %v", got)
	}
}

func TestOAuthFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	providers := h.send(t, `{"type":"GET_OAUTH_PROVIDERS"}`).(messages.ProvidersResult)
	if !providers.Success || len(providers.Providers) != 1 || providers.Providers[0].ID != "github" {
		t.Fatalf("providers = %+v", providers)
	}

	if res := h.send(t, `{"type":"START_OAUTH","provider":"github"}`); res != messages.OK() {
		t.Fatalf("START_OAUTH = %#v", res)
	}
	created := h.host.Created()
	if len(created) != 1 || !strings.Contains(created[0], "/api/ext/oauth/github/start?") {
		t.Fatalf("created = %v", created)
	}
	authURL, _ := url.Parse(created[0])
	state := authURL.Query().Get("state")
	if state == "" || authURL.Query().Get("code_challenge") == "" {
		t.Fatalf("auth url = %s", created[0])
	}
	tabs, _ := h.host.QueryTabs(ctx, browser.TabQuery{})
	tabID := tabs[len(tabs)-1].ID

	// A callback with the wrong state is ignored.
	h.c.HandleEvent(ctx, browser.TabUpdated{TabID: tabID, URL: "https://siteray.test/ext/oauth/callback?code=abc&state=forged"})
	h.c.wg.Wait()
	if got := h.send(t, `{"type":"GET_AUTH"}`); got != nil {
		t.Fatal("forged callback logged the user in")
	}

	cb := "https://siteray.test/ext/oauth/callback?code=abc&state=" + url.QueryEscape(state)
	h.c.HandleEvent(ctx, browser.TabUpdated{TabID: tabID, URL: cb})
	h.c.wg.Wait()

	a, ok := h.send(t, `{"type":"GET_AUTH"}`).(*models.StoredAuth)
	if !ok || a.AccessToken != "tok" || a.User.Email != "a@b.c" {
		t.Fatalf("GET_AUTH = %#v", a)
	}
	if _, err := h.host.GetTab(ctx, tabID); err == nil {
		t.Fatal("oauth tab was not closed")
	}
	if ok, _ := h.kv.Get(ctx, storage.KeyPendingOAuth, &pendingOAuth{}); ok {
		t.Fatal("pending oauth state not cleared")
	}
	if h.c.Processing(tabID) {
		t.Fatal("tab still marked as processing")
	}
}

func TestRunProcessesEvents(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.c.Run(ctx) }()

	h.host.Emit(browser.Installed{Reason: browser.InstallReasonInstall})
	deadline := time.Now().Add(2 * time.Second)
	for len(h.host.Created()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("event was not processed")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.send(t, `{"type":"TRIGGER_SCAN","domain":"example.com"}`)
	st := h.c.Status(context.Background())
	if !st.LoggedIn || len(st.TrackedDomains) != 1 || st.TrackedDomains[0] != "example.com" {
		t.Fatalf("status = %+v", st)
	}
}

func TestLocalHostsStayLocal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.host.PutTab(browser.Tab{ID: 1, URL: "http://localhost:3000/", Active: true, WindowFocused: true})
	h.login(t)

	for _, d := range []string{"192.168.1.5", "localhost", "10.0.0.1", "127.0.0.1", "app.localhost"} {
		got := h.send(t, `{"type":"GET_LOOKUP","domain":"`+d+`"}`)
		if res, ok := got.(messages.Result); !ok || res.Success {
			t.Fatalf("GET_LOOKUP %s = %#v, want failure", d, got)
		}
		if got := h.send(t, `{"type":"GET_BAR_DATA","domain":"`+d+`"}`); got != nil {
			t.Fatalf("GET_BAR_DATA %s = %#v, want nil", d, got)
		}
	}
	for _, typ := range []string{"TRIGGER_SCAN", "TRIGGER_RESCAN"} {
		got := h.send(t, `{"type":"`+typ+`","domain":"localhost"}`)
		res, ok := got.(messages.ScanResult)
		if !ok || res.Success || res.ScanID != "" {
			t.Fatalf("%s localhost = %#v, want refusal", typ, got)
		}
	}

	if lookups, scans := h.svc.requests(); lookups != 0 || scans != 0 {
		t.Fatalf("remote saw %d lookups and %d scans for local hosts", lookups, scans)
	}
	state, err := h.c.poller.State(ctx)
	if err != nil || len(state) != 0 {
		t.Fatalf("poll state = %v, %v; want nothing tracked", state, err)
	}
	if h.c.poller.Armed() {
		t.Fatal("poller armed for a local host")
	}
}
