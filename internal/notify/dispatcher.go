package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siteray/siteray-agent/internal/config"
	"github.com/siteray/siteray-agent/models"
)

// Dispatcher fans out events to all configured channels.
type Dispatcher struct {
	channels []Channel
	minRisk  models.RiskLevel
	events   map[string]bool // empty sends every event type
}

// NewDispatcher creates a Dispatcher from cfg. Only channels with
// IsConfigured() == true are active.
func NewDispatcher(cfg config.NotifyConfig) *Dispatcher {
	d := &Dispatcher{minRisk: models.MapRiskLevel(cfg.MinRisk)}
	if len(cfg.Events) > 0 {
		d.events = make(map[string]bool, len(cfg.Events))
		for _, e := range cfg.Events {
			d.events[e] = true
		}
	}
	for _, ch := range []Channel{NewSlack(cfg.Slack), NewWebhook(cfg.Webhook)} {
		if ch.IsConfigured() {
			d.channels = append(d.channels, ch)
		}
	}
	return d
}

// IsAnyConfigured returns true if at least one channel is ready to send.
func (d *Dispatcher) IsAnyConfigured() bool {
	return len(d.channels) > 0
}

// Notify sends evt to all configured channels. Errors are logged but never returned.
func (d *Dispatcher) Notify(ctx context.Context, evt Event) {
	if !d.shouldSend(evt) {
		return
	}
	for _, ch := range d.channels {
		if err := ch.Send(ctx, evt); err != nil {
			slog.Warn("notify: channel send failed", "channel", ch.Name(), "event", evt.Type, "domain", evt.Domain, "error", err)
		}
	}
}

func (d *Dispatcher) shouldSend(evt Event) bool {
	if len(d.events) > 0 && !d.events[evt.Type] {
		return false
	}
	if evt.Type == EventScanCompleted && d.minRisk != "" && evt.Risk.Valid() {
		return evt.Risk.Weight() >= d.minRisk.Weight()
	}
	return true
}

// ScanCompleted builds the event for a finished scan.
func ScanCompleted(domain string, lookup *models.LookupResponse, reportURL string) Event {
	evt := Event{Type: EventScanCompleted, Domain: domain, URL: reportURL}
	if lookup == nil || lookup.Scan == nil {
		evt.Title = "Scan finished for " + domain
		return evt
	}
	s := lookup.Scan
	evt.ScanID = s.ID
	evt.Score = s.TrustScore
	evt.Risk = s.RiskLevel
	if s.TrustScore != nil {
		evt.Title = fmt.Sprintf("%s scored %d/100", domain, *s.TrustScore)
	} else {
		evt.Title = "Scan finished for " + domain
	}
	if s.RiskLevel.Valid() {
		evt.Body = "Risk level: " + s.RiskLevel.String()
	}
	if s.Verdict != nil && *s.Verdict != "" {
		if evt.Body != "" {
			evt.Body += "\n"
		}
		evt.Body += *s.Verdict
	}
	return evt
}

// ScanFailed builds the event for a scan that failed or was given up on.
func ScanFailed(domain string, timedOut bool) Event {
	if timedOut {
		return Event{
			Type:   EventScanTimedOut,
			Domain: domain,
			Title:  "Scan of " + domain + " is taking too long",
			Body:   "Stopped waiting for the result.",
		}
	}
	return Event{
		Type:   EventScanFailed,
		Domain: domain,
		Title:  "Scan of " + domain + " failed",
	}
}
