package tui

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/siteray/siteray-agent/models"
)

func intPtr(v int) *int { return &v }

func TestViewFor(t *testing.T) {
	tests := []struct {
		name   string
		lookup *models.LookupResponse
		want   View
	}{
		{"nil", nil, ViewLoading},
		{"not scanned", &models.LookupResponse{Success: true}, ViewNotScanned},
		{"running", &models.LookupResponse{Success: true, RunningScan: &models.RunningScan{ScanID: "s"}}, ViewProgress},
		{"running wins over old scan", &models.LookupResponse{
			Success:     true,
			Scan:        &models.ScanSummary{ID: "old"},
			RunningScan: &models.RunningScan{ScanID: "new"},
		}, ViewProgress},
		{"score", &models.LookupResponse{Success: true, Scan: &models.ScanSummary{ID: "s", TrustScore: intPtr(80)}}, ViewScore},
		{"failed", &models.LookupResponse{Success: true, FailedScan: &models.FailedScan{ScanID: "s"}}, ViewFailed},
	}
	for _, tt := range tests {
		if got := ViewFor(tt.lookup); got != tt.want {
			t.Fatalf("%s: ViewFor = %d, want %d", tt.name, got, tt.want)
		}
	}
}

// fakeGateway answers /api/messages from a table keyed by message type and
// records every request body.
func fakeGateway(t *testing.T, replies map[string]string) (*Client, func() []map[string]any) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/messages" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var msg map[string]any
		_ = json.Unmarshal(body, &msg)
		mu.Lock()
		seen = append(seen, msg)
		mu.Unlock()
		reply, ok := replies[msg["type"].(string)]
		if !ok {
			reply = `{"success":false,"error":"Invalid message"}`
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/"), func() []map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return append([]map[string]any(nil), seen...)
	}
}

func TestClientLookup(t *testing.T) {
	c, seen := fakeGateway(t, map[string]string{
		"GET_LOOKUP": `{"success":true,"scan":{"id":"s1","trustScore":91,"riskLevel":"green"},"runningScan":null,"failedScan":null}`,
	})

	l, err := c.Lookup(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !l.Scan.HasScore() || *l.Scan.TrustScore != 91 {
		t.Fatalf("lookup = %+v", l.Scan)
	}
	if got := seen()[0]; got["type"] != "GET_LOOKUP" || got["domain"] != "example.com" {
		t.Fatalf("request = %v", got)
	}
}

func TestClientErrors(t *testing.T) {
	c, _ := fakeGateway(t, map[string]string{
		"GET_LOOKUP":   `{"success":false,"error":"Not authenticated"}`,
		"LOGIN":        `{"success":false}`,
		"TRIGGER_SCAN": `{"success":false,"error":"Rate limited"}`,
		"GET_AUTH":     `null`,
	})
	ctx := context.Background()

	if _, err := c.Lookup(ctx, "example.com"); err == nil || err.Error() != "Not authenticated" {
		t.Fatalf("Lookup error = %v", err)
	}
	if err := c.Login(ctx, "a@b.c", "pw"); err == nil || err.Error() != "Login failed" {
		t.Fatalf("Login error = %v", err)
	}
	if _, err := c.Scan(ctx, "example.com", false); err == nil || err.Error() != "Rate limited" {
		t.Fatalf("Scan error = %v", err)
	}
	a, err := c.Auth(ctx)
	if err != nil || a != nil {
		t.Fatalf("Auth = %v, %v", a, err)
	}
}

func TestClientRescanUsesRescanMessage(t *testing.T) {
	c, seen := fakeGateway(t, map[string]string{
		"TRIGGER_RESCAN": `{"success":true,"scanId":"s9"}`,
	})
	id, err := c.Scan(context.Background(), "example.com", true)
	if err != nil || id != "s9" {
		t.Fatalf("Scan = %q, %v", id, err)
	}
	if seen()[0]["type"] != "TRIGGER_RESCAN" {
		t.Fatalf("request = %v", seen()[0])
	}
}

func TestClientGatewayDown(t *testing.T) {
	c := NewClient("http://127.0.0.1:1")
	if _, err := c.Settings(context.Background()); err == nil || !strings.Contains(err.Error(), "gateway unreachable") {
		t.Fatalf("err = %v", err)
	}
}

func TestAppScanFlow(t *testing.T) {
	a := NewApp(nil, "example.com", "a@b.c")

	a.Update(lookupMsg{lookup: &models.LookupResponse{Success: true}})
	if ViewFor(a.lookup) != ViewNotScanned || a.busy {
		t.Fatalf("after lookup: view %d busy %v", ViewFor(a.lookup), a.busy)
	}
	if !strings.Contains(a.View(), "not been scanned") {
		t.Fatalf("view = %q", a.View())
	}

	if cmd := a.handleKey("s"); cmd == nil || !a.busy {
		t.Fatal("s should start a scan")
	}
	_, cmd := a.Update(scanMsg{id: "s1"})
	if cmd == nil {
		t.Fatal("expected poll after scan started")
	}
	if ViewFor(a.lookup) != ViewProgress || a.lookup.RunningScan.ScanID != "s1" {
		t.Fatalf("lookup = %+v", a.lookup)
	}
	if !strings.Contains(a.View(), "Scan in progress") {
		t.Fatalf("view = %q", a.View())
	}

	a.Update(lookupMsg{lookup: &models.LookupResponse{
		Success: true,
		Scan:    &models.ScanSummary{ID: "s1", TrustScore: intPtr(42), RiskLevel: models.RiskRed},
	}})
	out := a.View()
	if !strings.Contains(out, "42") || !strings.Contains(out, "High risk") {
		t.Fatalf("view = %q", out)
	}
}

func TestAppRescanNotEligible(t *testing.T) {
	a := NewApp(nil, "example.com", "")
	a.Update(lookupMsg{lookup: &models.LookupResponse{
		Success: true,
		Scan:    &models.ScanSummary{ID: "s1", TrustScore: intPtr(70), RiskLevel: models.RiskYellow},
	}})

	if cmd := a.handleKey("r"); cmd == nil {
		t.Fatal("r should check eligibility")
	}
	next := "2026-01-01T00:00:00Z"
	_, cmd := a.Update(eligibilityMsg{res: models.RescanEligibility{Eligible: false, NextAvailableAt: &next}})
	if cmd != nil {
		t.Fatal("no scan expected when not eligible")
	}
	if !strings.Contains(a.notice, next) || a.busy {
		t.Fatalf("notice = %q busy %v", a.notice, a.busy)
	}
}

func TestAppIgnoresKeysWhileBusy(t *testing.T) {
	a := NewApp(nil, "example.com", "")
	if cmd := a.handleKey("f"); cmd != nil {
		t.Fatal("refresh accepted while the first lookup is in flight")
	}
}
